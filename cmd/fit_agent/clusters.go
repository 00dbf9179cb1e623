package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Show a session's distribution and evidence clusters",
	RunE:  runClusters,
}

var (
	clustersSessionID string
	clustersJSON      bool
)

func init() {
	clustersCmd.Flags().StringVarP(&clustersSessionID, "session", "s", "", "Session ID")
	clustersCmd.Flags().BoolVar(&clustersJSON, "json", false, "Print the cluster view as JSON")

	if err := clustersCmd.MarkFlagRequired("session"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}

	rootCmd.AddCommand(clustersCmd)
}

func runClusters(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	view, err := a.manager.Clusters(clustersSessionID)
	if err != nil {
		return err
	}

	if clustersJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	a.printer.PrintDistribution(view)
	a.printer.PrintClusters(view)
	return nil
}

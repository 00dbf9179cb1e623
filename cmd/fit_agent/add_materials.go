package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-fit/internal/ingestion"
)

var addMaterialsCmd = &cobra.Command{
	Use:   "add-materials",
	Short: "Add supplemental material to a session and re-score it",
	Long: "Append project write-ups or other material to an existing session. Only new chunks are " +
		"embedded and classified; the session's distribution is recomputed over all evidence.",
	RunE: runAddMaterials,
}

var (
	addSessionID string
	addInputFile string
	addClusters  bool
)

func init() {
	addMaterialsCmd.Flags().StringVarP(&addSessionID, "session", "s", "", "Session ID returned by analyze")
	addMaterialsCmd.Flags().StringVarP(&addInputFile, "in", "i", "", "Path to material file (.txt, .md)")
	addMaterialsCmd.Flags().BoolVar(&addClusters, "clusters", false, "Also print the evidence clusters")

	if err := addMaterialsCmd.MarkFlagRequired("session"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}
	if err := addMaterialsCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}

	rootCmd.AddCommand(addMaterialsCmd)
}

func runAddMaterials(cmd *cobra.Command, _ []string) error {
	text, err := ingestion.ReadResumeFile(addInputFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	uploadID, err := a.manager.AddMaterials(ctx, addSessionID, text)
	if err != nil {
		return fmt.Errorf("failed to add materials: %w", err)
	}
	_, _ = fmt.Fprintf(os.Stdout, "Session: %s\nUpload:  %s\n", addSessionID, uploadID)

	return a.finishRun(ctx, addSessionID, uploadID, addClusters)
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-fit/internal/export"
	"github.com/jonathan/career-fit/internal/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session report as an Excel workbook",
	Long: "Write a session's distribution and evidence clusters to an .xlsx workbook, with a match " +
		"sheet when a job description is given.",
	RunE: runExport,
}

var (
	exportSessionID string
	exportJDID      string
	exportJDFile    string
	exportOutput    string
)

func init() {
	addJDFlags(exportCmd, &exportJDID, &exportJDFile)
	exportCmd.Flags().StringVarP(&exportSessionID, "session", "s", "", "Session ID")
	exportCmd.Flags().StringVarP(&exportOutput, "out", "o", "", "Path to output workbook (.xlsx)")

	if err := exportCmd.MarkFlagRequired("session"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}
	if err := exportCmd.MarkFlagRequired("out"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	view, err := a.manager.Clusters(exportSessionID)
	if err != nil {
		return err
	}

	var match *types.MatchResult
	if exportJDID != "" || exportJDFile != "" {
		req, err := matchRequest(exportJDID, exportJDFile)
		if err != nil {
			return err
		}
		if match, err = a.manager.Match(ctx, exportSessionID, req); err != nil {
			return err
		}
	}

	path, err := export.WriteWorkbook(exportOutput, export.Report{View: view, Match: match, Generated: time.Now()})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Wrote %s\n", path)
	return nil
}

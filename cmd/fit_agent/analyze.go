package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-fit/internal/ingestion"
	"github.com/jonathan/career-fit/internal/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Upload a resume and compute its role-fit distribution",
	Long: "Start a new session from a resume text or markdown file. The resume is chunked, embedded, " +
		"indexed and classified, and the session's role-fit distribution is printed when the run finishes.",
	RunE: runAnalyze,
}

var (
	analyzeInputFile string
	analyzeClusters  bool
)

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeInputFile, "in", "i", "", "Path to resume file (.txt, .md)")
	analyzeCmd.Flags().BoolVar(&analyzeClusters, "clusters", false, "Also print the evidence clusters")

	if err := analyzeCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	text, err := ingestion.ReadResumeFile(analyzeInputFile)
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

	sessionID, uploadID, err := a.manager.Upload(ctx, text, types.SourceResume)
	if err != nil {
		return fmt.Errorf("failed to start upload: %w", err)
	}
	_, _ = fmt.Fprintf(os.Stdout, "Session: %s\nUpload:  %s\n", sessionID, uploadID)

	return a.finishRun(ctx, sessionID, uploadID, analyzeClusters)
}

// finishRun waits for a run in this process and prints the resulting session.
func (a *app) finishRun(ctx context.Context, sessionID, uploadID string, clusters bool) error {
	st, err := a.waitForRun(ctx, uploadID)
	if cfg.Verbose || err != nil {
		a.printer.PrintUploadStatus(st)
	}
	if err != nil {
		return err
	}

	view, err := a.manager.Clusters(sessionID)
	if err != nil {
		return err
	}
	a.printer.PrintDistribution(view)
	if clusters {
		a.printer.PrintClusters(view)
	}
	return nil
}

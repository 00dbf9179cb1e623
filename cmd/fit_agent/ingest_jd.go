package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-fit/internal/catalog"
)

var ingestJDCmd = &cobra.Command{
	Use:   "ingest-jd",
	Short: "Add job descriptions to the global catalog",
	Long: "Chunk, embed and index job descriptions from a JSON array file or a directory. In a " +
		"directory each .txt, .md or .html file becomes one job description named after the file.",
	RunE: runIngestJD,
}

var (
	ingestJDInput   string
	ingestJDReplace bool
)

func init() {
	ingestJDCmd.Flags().StringVarP(&ingestJDInput, "in", "i", "", "Path to job description JSON file or directory")
	ingestJDCmd.Flags().BoolVar(&ingestJDReplace, "replace", false, "Replace previously indexed chunks of the same job description ids")

	if err := ingestJDCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}

	rootCmd.AddCommand(ingestJDCmd)
}

func runIngestJD(cmd *cobra.Command, _ []string) error {
	items, err := catalog.LoadItems(ingestJDInput)
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

	result, err := a.catalog.Ingest(ctx, items, ingestJDReplace)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "Ingested %d job descriptions (%d chunks)\n", result.Documents, result.Chunks)
	_, _ = fmt.Fprintf(os.Stdout, "Catalog now holds %d chunks\n", result.Total)
	return nil
}

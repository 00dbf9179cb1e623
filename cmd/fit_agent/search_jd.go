package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-fit/internal/types"
)

var searchJDCmd = &cobra.Command{
	Use:   "search-jd",
	Short: "Search the job description catalog",
	RunE:  runSearchJD,
}

var (
	searchQuery string
	searchRole  string
	searchK     int
)

func init() {
	searchJDCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Search text")
	searchJDCmd.Flags().StringVar(&searchRole, "role", "", "Only return chunks of job descriptions tagged with this role (e.g. MLE)")
	searchJDCmd.Flags().IntVarP(&searchK, "k", "k", 5, "Maximum number of chunks to return")

	if err := searchJDCmd.MarkFlagRequired("query"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}

	rootCmd.AddCommand(searchJDCmd)
}

func runSearchJD(cmd *cobra.Command, _ []string) error {
	if searchK <= 0 {
		return fmt.Errorf("--k must be positive")
	}
	var role types.RoleID
	if searchRole != "" {
		r, err := types.ParseRoleID(searchRole)
		if err != nil {
			return err
		}
		role = r
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

	hits, err := a.catalog.Search(ctx, searchQuery, role, searchK)
	if err != nil {
		return err
	}
	a.printer.PrintSearchResults(searchQuery, hits)
	return nil
}

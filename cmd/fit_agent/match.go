package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-fit/internal/ingestion"
	"github.com/jonathan/career-fit/internal/session"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a session's clusters against a job description",
	Long: "Compute per-cluster and overall match of a session against a catalog job description " +
		"(--jd-id) or a job description file (--jd-file). The overall match is n/a when it cannot be evaluated.",
	RunE: runMatch,
}

var (
	matchSessionID string
	matchJDID      string
	matchJDFile    string
	matchJSON      bool
)

func init() {
	addJDFlags(matchCmd, &matchJDID, &matchJDFile)
	matchCmd.Flags().StringVarP(&matchSessionID, "session", "s", "", "Session ID")
	matchCmd.Flags().BoolVar(&matchJSON, "json", false, "Print the match result as JSON")

	if err := matchCmd.MarkFlagRequired("session"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}

	rootCmd.AddCommand(matchCmd)
}

// addJDFlags registers the mutually exclusive job description flags.
func addJDFlags(cmd *cobra.Command, jdID, jdFile *string) {
	cmd.Flags().StringVar(jdID, "jd-id", "", "Catalog job description ID")
	cmd.Flags().StringVar(jdFile, "jd-file", "", "Path to job description file (.txt, .md, .html)")
	cmd.MarkFlagsMutuallyExclusive("jd-id", "jd-file")
}

// matchRequest builds a match request from the job description flags.
func matchRequest(jdID, jdFile string) (session.MatchRequest, error) {
	if jdID == "" && jdFile == "" {
		return session.MatchRequest{}, fmt.Errorf("must provide either --jd-id or --jd-file")
	}
	if jdFile == "" {
		return session.MatchRequest{JDID: jdID}, nil
	}
	text, err := ingestion.ReadJobDescriptionFile(jdFile)
	if err != nil {
		return session.MatchRequest{}, err
	}
	return session.MatchRequest{JDText: text}, nil
}

func runMatch(cmd *cobra.Command, _ []string) error {
	req, err := matchRequest(matchJDID, matchJDFile)
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

	result, err := a.manager.Match(ctx, matchSessionID, req)
	if err != nil {
		return err
	}

	if matchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	a.printer.PrintMatch(result)
	return nil
}

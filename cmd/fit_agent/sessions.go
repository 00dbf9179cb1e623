package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List committed sessions",
	RunE:  runSessions,
}

var deleteSessionCmd = &cobra.Command{
	Use:   "delete-session",
	Short: "Delete a session with its artifacts and index files",
	RunE:  runDeleteSession,
}

var deleteSessionID string

func init() {
	deleteSessionCmd.Flags().StringVarP(&deleteSessionID, "session", "s", "", "Session ID")
	if err := deleteSessionCmd.MarkFlagRequired("session"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(deleteSessionCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	ids := a.manager.Sessions()
	sort.Strings(ids)
	if len(ids) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No sessions")
		return nil
	}
	for _, id := range ids {
		st, err := a.manager.Session(id)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s  generation %d  %d chunks  updated %s\n",
			id, st.Generation, st.Index.Len(), st.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runDeleteSession(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if err := a.manager.Delete(ctx, deleteSessionID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Deleted session %s\n", deleteSessionID)
	return nil
}

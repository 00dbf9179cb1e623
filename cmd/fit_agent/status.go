package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-fit/internal/observability"
	"github.com/jonathan/career-fit/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the processing status of an upload",
	Long: "Show the stage an upload or materials addition has reached. Statuses outlive the process " +
		"that ran the upload only when a Redis status store is configured.",
	RunE: runStatus,
}

var (
	statusUploadID string
	statusJSON     bool
)

func init() {
	statusCmd.Flags().StringVarP(&statusUploadID, "upload", "u", "", "Upload ID")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")

	if err := statusCmd.MarkFlagRequired("upload"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("status lookups need a Redis status store (set REDIS_URL or redis_url)")
	}

	tracker, err := status.NewRedisTracker(ctx, cfg.RedisURL, time.Duration(cfg.StatusTTLHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() { _ = tracker.Close() }()

	st, err := tracker.Get(ctx, statusUploadID)
	if errors.Is(err, status.ErrUploadNotFound) {
		return fmt.Errorf("upload %s not found", statusUploadID)
	}
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	observability.NewPrinter(os.Stdout).PrintUploadStatus(st)
	return nil
}

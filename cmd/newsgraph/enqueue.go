package main

import (
	"context"
	"fmt"

	"github.com/newsgraph/newsgraph-go/internal/queue"
	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <article-ref> [article-ref...]",
	Short: "Queue articles for graph sync",
	Long: `Create pending sync jobs for the given article references. Enqueue is
idempotent: an article with a pending or in-progress job is skipped, an
article whose last job finished gets a fresh one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnqueue,
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := queue.Open(cfg.Queue.Driver, cfg.Queue.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, ref := range args {
		job, err := store.Enqueue(ctx, ref)
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", ref, err)
		}
		if job == nil {
			fmt.Printf("  %s: already queued\n", ref)
			continue
		}
		fmt.Printf("  %s: job %s\n", ref, job.ID)
	}

	return nil
}

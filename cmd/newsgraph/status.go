package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newsgraph/newsgraph-go/internal/graph"
	"github.com/newsgraph/newsgraph-go/internal/models"
	"github.com/newsgraph/newsgraph-go/internal/queue"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and graph status",
	Long:  `Display sync queue depth, escalated jobs awaiting manual review, and graph size.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	fmt.Printf("📰 NewsGraph Status\n")
	fmt.Printf("%s\n", strings.Repeat("═", 50))

	store, err := queue.Open(cfg.Queue.Driver, cfg.Queue.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("\n🔄 Sync:\n")
	if cfg.Sync.Enabled && store.SyncEnabled(ctx) {
		fmt.Printf("  Status: ✅ Enabled\n")
	} else {
		fmt.Printf("  Status: ⏸️  Paused (run 'newsgraph resume')\n")
	}
	fmt.Printf("  Poll interval: %s\n", cfg.Sync.PollInterval)
	fmt.Printf("  Max retries: %d\n", cfg.Sync.MaxRetries)

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n📋 Queue:\n")
	fmt.Printf("  Pending: %d\n", counts[models.StatusPending])
	fmt.Printf("  In progress: %d\n", counts[models.StatusInProgress])
	fmt.Printf("  Done: %d\n", counts[models.StatusDone])
	fmt.Printf("  Manual review: %d\n", counts[models.StatusManualReview])

	if counts[models.StatusManualReview] > 0 {
		jobs, err := store.ManualReviewJobs(ctx, 10)
		if err == nil {
			fmt.Printf("\n⚠️  Awaiting manual review:\n")
			for _, job := range jobs {
				msg := ""
				if job.ErrorMessage != nil {
					msg = *job.ErrorMessage
				}
				fmt.Printf("  %s  article=%s  attempts=%d  %s\n",
					job.UpdatedAt.Format("2006-01-02 15:04"), job.ArticleRef, job.RetryCount, msg)
			}
		}
	}

	fmt.Printf("\n🔗 Graph:\n")
	graphCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	backend, err := graph.NewBackend(graphCtx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
	if err != nil {
		fmt.Printf("  Status: ❌ Unreachable (%v)\n", err)
		return nil
	}
	defer backend.Close(ctx)

	nodes, edges, err := backend.Counts(graphCtx)
	if err != nil {
		fmt.Printf("  Status: ❌ Count query failed (%v)\n", err)
		return nil
	}
	fmt.Printf("  Nodes: %d\n", nodes)
	fmt.Printf("  Relationships: %d\n", edges)

	return nil
}

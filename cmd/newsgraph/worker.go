package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/newsgraph/newsgraph-go/internal/articles"
	"github.com/newsgraph/newsgraph-go/internal/dispatch"
	"github.com/newsgraph/newsgraph-go/internal/extract"
	"github.com/newsgraph/newsgraph-go/internal/graph"
	"github.com/newsgraph/newsgraph-go/internal/logging"
	"github.com/newsgraph/newsgraph-go/internal/models"
	"github.com/newsgraph/newsgraph-go/internal/queue"
	"github.com/newsgraph/newsgraph-go/internal/retry"
	"github.com/newsgraph/newsgraph-go/internal/standardize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var logDir string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the graph sync worker",
	Long: `Start the long-running sync worker: poll the job queue, extract
entities from each claimed article, and merge them into the graph.
Stops cleanly on SIGINT/SIGTERM; interrupted jobs are retried on the
next run.`,
	RunE: runWorker,
}

func init() {
	defaultLogDir := "logs"
	if home, err := os.UserHomeDir(); err == nil {
		defaultLogDir = filepath.Join(home, ".newsgraph", "logs")
	}
	workerCmd.Flags().StringVar(&logDir, "log-dir", defaultLogDir, "directory for worker log files")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fileLogger, err := logging.Setup(logging.WorkerConfig(logDir, verbose))
	if err != nil {
		return err
	}
	defer fileLogger.Close()

	store, err := queue.Open(cfg.Queue.Driver, cfg.Queue.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	if n, err := store.RecoverInFlight(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.WithField("count", n).Warn("Requeued jobs interrupted by a previous shutdown")
	}

	reader, err := articles.OpenReader(cfg.Articles.Driver, cfg.Articles.DSN)
	if err != nil {
		return err
	}
	defer reader.Close()

	backend, err := graph.NewBackend(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
	if err != nil {
		return err
	}
	defer backend.Close(context.Background())

	extractor, err := extract.NewOpenAIExtractor(cfg.Extractor.APIKey, cfg.Extractor.Model, cfg.Extractor.RateLimit)
	if err != nil {
		return err
	}

	standardizer, err := standardize.Load(cfg.Sync.AliasPath)
	if err != nil {
		logger.WithError(err).Warn("Alias table unavailable, names pass through unmapped")
		standardizer = standardize.Empty()
	}

	// The kill-switch combines the static config default with the runtime
	// settings row, so operators can pause without redeploying.
	gate := dispatch.GateFunc(func(ctx context.Context) bool {
		return cfg.Sync.Enabled && store.SyncEnabled(ctx)
	})

	dispatcher := dispatch.New(
		store,
		retry.NewController(store, cfg.Sync.MaxRetries),
		reader,
		extractor,
		standardizer,
		graph.NewEngine(backend, cfg.Sync.MergeTimeout),
		gate,
		dispatch.Options{
			ExtractionTimeout: cfg.Extractor.Timeout,
			MergeTimeout:      cfg.Sync.MergeTimeout,
			PollInterval:      cfg.Sync.PollInterval,
		},
		logger,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return reportQueueDepth(ctx, store)
	})

	logger.Info("Worker running, Ctrl+C to stop")
	return g.Wait()
}

// reportQueueDepth logs queue counts once a minute so operators can watch
// backlog and escalation trends from the worker log alone.
func reportQueueDepth(ctx context.Context, store *queue.Store) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			counts, err := store.CountByStatus(ctx)
			if err != nil {
				logger.WithError(err).Warn("Queue depth check failed")
				continue
			}
			logger.WithFields(logrus.Fields{
				"pending":       counts[models.StatusPending],
				"in_progress":   counts[models.StatusInProgress],
				"done":          counts[models.StatusDone],
				"manual_review": counts[models.StatusManualReview],
			}).Info("Queue depth")
		}
	}
}

package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/newsgraph/newsgraph-go/internal/articles"
	pipeerrors "github.com/newsgraph/newsgraph-go/internal/errors"
	"github.com/newsgraph/newsgraph-go/internal/extract"
	"github.com/newsgraph/newsgraph-go/internal/models"
	"github.com/newsgraph/newsgraph-go/internal/queue"
	"github.com/newsgraph/newsgraph-go/internal/standardize"
	"github.com/sirupsen/logrus"
)

// JobQueue is the slice of the queue store the dispatcher drives.
type JobQueue interface {
	ClaimNext(ctx context.Context) (*models.Job, error)
	Complete(ctx context.Context, id uuid.UUID) error
}

// FailHandler routes per-job failures; the retry controller implements it.
type FailHandler interface {
	Fail(ctx context.Context, job *models.Job, cause error) error
}

// Merger applies one job's GraphSet atomically; the graph engine
// implements it.
type Merger interface {
	MergeGraph(ctx context.Context, set models.GraphSet) error
}

// Gate is the kill-switch, read once at the start of every poll cycle.
type Gate interface {
	Enabled(ctx context.Context) bool
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context) bool

// Enabled implements Gate.
func (f GateFunc) Enabled(ctx context.Context) bool { return f(ctx) }

// StaticGate returns a Gate with a fixed value, for configs without a
// settings store.
func StaticGate(enabled bool) Gate {
	return GateFunc(func(context.Context) bool { return enabled })
}

// Options carries the dispatcher tunables.
type Options struct {
	ExtractionTimeout time.Duration
	MergeTimeout      time.Duration
	PollInterval      time.Duration
}

// Dispatcher is the single-flight poll loop: one cycle claims at most one
// job and runs it end to end. It is the only writer of job state and the
// only caller of the merge engine, which is what makes the global
// one-in-flight guarantee hold.
type Dispatcher struct {
	queue        JobQueue
	failer       FailHandler
	reader       articles.Reader
	extractor    extract.Extractor
	standardizer *standardize.Standardizer
	merger       Merger
	gate         Gate
	opts         Options
	logger       *logrus.Logger
}

// New creates a dispatcher.
func New(
	queue JobQueue,
	failer FailHandler,
	reader articles.Reader,
	extractor extract.Extractor,
	standardizer *standardize.Standardizer,
	merger Merger,
	gate Gate,
	opts Options,
	logger *logrus.Logger,
) *Dispatcher {
	if opts.ExtractionTimeout <= 0 {
		opts.ExtractionTimeout = 30 * time.Second
	}
	if opts.MergeTimeout <= 0 {
		opts.MergeTimeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	return &Dispatcher{
		queue:        queue,
		failer:       failer,
		reader:       reader,
		extractor:    extractor,
		standardizer: standardizer,
		merger:       merger,
		gate:         gate,
		opts:         opts,
		logger:       logger,
	}
}

// Run polls until ctx is cancelled, sleeping between idle cycles. The
// loop is equally at home under cron re-invocation: all state is durable
// in the queue, so a restarted process resumes at the next pending job.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.WithField("poll_interval", d.opts.PollInterval.String()).Info("Dispatcher started")

	for {
		processed, err := d.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			d.logger.WithError(err).Error("Poll cycle failed")
		}

		if processed {
			// Drain the backlog without sleeping, one job at a time.
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.opts.PollInterval):
		}
	}
	return nil
}

// RunCycle runs exactly one poll cycle: at most one claim, at most one
// job. Returns whether a job was attempted. Per-job failures are routed
// through the fail handler and do not surface as cycle errors; only queue
// bookkeeping problems do.
func (d *Dispatcher) RunCycle(ctx context.Context) (bool, error) {
	// Kill-switch first: disabled means no claim and no mutation at all.
	if !d.gate.Enabled(ctx) {
		d.logger.Debug("Sync disabled, skipping cycle")
		return false, nil
	}

	job, err := d.queue.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrNoJob) {
			return false, nil
		}
		return false, pipeerrors.QueueFailure(err)
	}

	log := d.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"article": job.ArticleRef,
		"attempt": job.RetryCount + 1,
	})
	log.Info("Processing sync job")

	// Queue bookkeeping runs detached from the run context: a shutdown that
	// cancels ctx mid-job must still land the requeue or completion, or the
	// job is stranded in_progress.
	bookCtx := context.WithoutCancel(ctx)

	if err := d.process(ctx, job); err != nil {
		log.WithError(err).Warn("Sync job failed")
		if failErr := d.failer.Fail(bookCtx, job, err); failErr != nil {
			return true, pipeerrors.QueueFailure(failErr)
		}
		return true, nil
	}

	if err := d.queue.Complete(bookCtx, job.ID); err != nil {
		return true, pipeerrors.QueueFailure(err)
	}
	log.Info("Sync job completed")
	return true, nil
}

// process runs one claimed job through read, extract, standardize, derive
// and merge. Every error return is a per-job failure for the retry
// controller; the stages never touch the publishing transaction.
func (d *Dispatcher) process(ctx context.Context, job *models.Job) error {
	article, err := d.reader.GetArticle(ctx, job.ArticleRef)
	if err != nil {
		return pipeerrors.ArticleFailure(err)
	}

	extractCtx, cancel := context.WithTimeout(ctx, d.opts.ExtractionTimeout)
	result, err := d.extractor.Extract(extractCtx, article.Title, article.Content)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return pipeerrors.ExtractionTimeout(err)
		}
		return pipeerrors.ExtractionFailure(err)
	}

	set := d.buildGraphSet(article, result)

	mergeCtx, cancel := context.WithTimeout(ctx, d.opts.MergeTimeout)
	err = d.merger.MergeGraph(mergeCtx, set)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return pipeerrors.MergeTimeout(err)
		}
		return pipeerrors.MergeFailure(err)
	}

	return nil
}

package retry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/newsgraph/newsgraph-go/internal/models"
)

// DefaultMaxRetries is the retry ceiling: a job is attempted at most
// 1 + DefaultMaxRetries times before escalation.
const DefaultMaxRetries = 3

// JobLedger is the slice of the queue store the controller needs.
type JobLedger interface {
	Requeue(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
	Escalate(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

// Controller decides, per failed job, between requeue and terminal
// escalation. Timeouts carry no special treatment: every failure counts
// one attempt.
type Controller struct {
	ledger     JobLedger
	maxRetries int
	logger     *slog.Logger
}

// NewController creates a retry controller. maxRetries <= 0 selects the
// default ceiling of 3.
func NewController(ledger JobLedger, maxRetries int) *Controller {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Controller{
		ledger:     ledger,
		maxRetries: maxRetries,
		logger:     slog.Default().With("component", "retry"),
	}
}

// Fail records one failed attempt for an in-progress job. Attempts 1..3
// requeue the job to pending with the error recorded; the 4th failure
// escalates to manual_review, retaining the last error for operators. No
// backoff delay is applied here: a requeued job waits its turn at the tail
// of the pending set.
func (c *Controller) Fail(ctx context.Context, job *models.Job, cause error) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}

	errMsg := cause.Error()
	attempts := job.RetryCount + 1

	if attempts <= c.maxRetries {
		if err := c.ledger.Requeue(ctx, job.ID, errMsg, attempts); err != nil {
			return fmt.Errorf("requeue after failure: %w", err)
		}
		c.logger.Warn("job requeued",
			"job_id", job.ID,
			"article", job.ArticleRef,
			"attempt", attempts,
			"error", errMsg,
		)
		return nil
	}

	if err := c.ledger.Escalate(ctx, job.ID, errMsg, attempts); err != nil {
		return fmt.Errorf("escalate after failure: %w", err)
	}
	c.logger.Error("job escalated to manual review",
		"job_id", job.ID,
		"article", job.ArticleRef,
		"attempts", attempts,
		"error", errMsg,
	)
	return nil
}

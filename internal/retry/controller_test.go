package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/newsgraph/newsgraph-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	requeued  []int
	escalated []int
	lastErr   string
}

func (f *fakeLedger) Requeue(_ context.Context, _ uuid.UUID, errMsg string, retryCount int) error {
	f.requeued = append(f.requeued, retryCount)
	f.lastErr = errMsg
	return nil
}

func (f *fakeLedger) Escalate(_ context.Context, _ uuid.UUID, errMsg string, retryCount int) error {
	f.escalated = append(f.escalated, retryCount)
	f.lastErr = errMsg
	return nil
}

func TestFail_RetryCeiling(t *testing.T) {
	ledger := &fakeLedger{}
	c := NewController(ledger, 0) // default ceiling of 3
	ctx := context.Background()

	job := &models.Job{ID: uuid.New(), ArticleRef: "article-1", Status: models.StatusInProgress}
	cause := errors.New("entity extraction failed: upstream 500")

	// Attempts 1-3 requeue with incremented counts.
	for attempt := 1; attempt <= 3; attempt++ {
		job.RetryCount = attempt - 1
		require.NoError(t, c.Fail(ctx, job, cause))
	}
	assert.Equal(t, []int{1, 2, 3}, ledger.requeued)
	assert.Empty(t, ledger.escalated)

	// The 4th failed attempt escalates; there is never a 5th.
	job.RetryCount = 3
	require.NoError(t, c.Fail(ctx, job, cause))
	assert.Equal(t, []int{4}, ledger.escalated)
	assert.Equal(t, []int{1, 2, 3}, ledger.requeued)
	assert.Equal(t, cause.Error(), ledger.lastErr, "last error retained for operators")
}

func TestFail_NilJob(t *testing.T) {
	c := NewController(&fakeLedger{}, 3)
	assert.Error(t, c.Fail(context.Background(), nil, errors.New("x")))
}

func TestFail_CustomCeiling(t *testing.T) {
	ledger := &fakeLedger{}
	c := NewController(ledger, 1)
	ctx := context.Background()

	job := &models.Job{ID: uuid.New(), Status: models.StatusInProgress}
	require.NoError(t, c.Fail(ctx, job, errors.New("boom")))
	assert.Equal(t, []int{1}, ledger.requeued)

	job.RetryCount = 1
	require.NoError(t, c.Fail(ctx, job, errors.New("boom")))
	assert.Equal(t, []int{2}, ledger.escalated)
}

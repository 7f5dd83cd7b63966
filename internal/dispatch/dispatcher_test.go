package dispatch

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/newsgraph/newsgraph-go/internal/articles"
	pipeerrors "github.com/newsgraph/newsgraph-go/internal/errors"
	"github.com/newsgraph/newsgraph-go/internal/models"
	"github.com/newsgraph/newsgraph-go/internal/queue"
	"github.com/newsgraph/newsgraph-go/internal/retry"
	"github.com/newsgraph/newsgraph-go/internal/standardize"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	job       *models.Job
	claims    int
	completed []uuid.UUID
	claimErr  error
}

func (q *fakeQueue) ClaimNext(ctx context.Context) (*models.Job, error) {
	q.claims++
	if q.claimErr != nil {
		return nil, q.claimErr
	}
	if q.job == nil {
		return nil, queue.ErrNoJob
	}
	job := q.job
	q.job = nil
	return job, nil
}

func (q *fakeQueue) Complete(ctx context.Context, id uuid.UUID) error {
	q.completed = append(q.completed, id)
	return nil
}

type fakeFailer struct {
	jobs   []*models.Job
	causes []error
}

func (f *fakeFailer) Fail(ctx context.Context, job *models.Job, cause error) error {
	f.jobs = append(f.jobs, job)
	f.causes = append(f.causes, cause)
	return nil
}

type fakeReader struct {
	article *models.Article
	err     error
}

func (r *fakeReader) GetArticle(ctx context.Context, ref string) (*models.Article, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.article, nil
}

type fakeExtractor struct {
	result *models.ExtractionResult
	err    error
}

func (e *fakeExtractor) Extract(ctx context.Context, title, text string) (*models.ExtractionResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

type fakeMerger struct {
	sets []models.GraphSet
	err  error
}

func (m *fakeMerger) MergeGraph(ctx context.Context, set models.GraphSet) error {
	m.sets = append(m.sets, set)
	return m.err
}

var _ articles.Reader = (*fakeReader)(nil)

type harness struct {
	queue     *fakeQueue
	failer    *fakeFailer
	reader    *fakeReader
	extractor *fakeExtractor
	merger    *fakeMerger
	enabled   bool
}

func newHarness() *harness {
	return &harness{
		queue:  &fakeQueue{},
		failer: &fakeFailer{},
		reader: &fakeReader{
			article: &models.Article{Ref: "a-100", Source: "wire", Title: "央行宣布降准"},
		},
		extractor: &fakeExtractor{result: &models.ExtractionResult{}},
		merger:    &fakeMerger{},
		enabled:   true,
	}
}

func (h *harness) dispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(
		h.queue, h.failer, h.reader, h.extractor,
		standardize.Empty(), h.merger,
		GateFunc(func(context.Context) bool { return h.enabled }),
		Options{ExtractionTimeout: time.Second, MergeTimeout: time.Second, PollInterval: time.Millisecond},
		logger,
	)
}

func claimedJob(ref string) *models.Job {
	return &models.Job{
		ID:         uuid.New(),
		ArticleRef: ref,
		Status:     models.StatusInProgress,
	}
}

func TestRunCycleSuccess(t *testing.T) {
	h := newHarness()
	job := claimedJob("a-100")
	h.queue.job = job

	processed, err := h.dispatcher(t).RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, h.queue.completed, 1)
	assert.Equal(t, job.ID, h.queue.completed[0])
	assert.Empty(t, h.failer.causes)
	require.Len(t, h.merger.sets, 1)
}

func TestRunCycleNoJobIsIdle(t *testing.T) {
	h := newHarness()

	processed, err := h.dispatcher(t).RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Empty(t, h.queue.completed)
	assert.Empty(t, h.merger.sets)
}

func TestRunCycleDisabledSkipsClaim(t *testing.T) {
	h := newHarness()
	h.queue.job = claimedJob("a-100")
	h.enabled = false

	processed, err := h.dispatcher(t).RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	// The claim was never attempted: the job is untouched for later cycles.
	assert.Zero(t, h.queue.claims)
	assert.NotNil(t, h.queue.job)
}

func TestRunCycleArticleReadFailure(t *testing.T) {
	h := newHarness()
	job := claimedJob("a-100")
	h.queue.job = job
	h.reader.err = errors.New("row not found")

	processed, err := h.dispatcher(t).RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Empty(t, h.queue.completed)
	require.Len(t, h.failer.causes, 1)
	assert.Equal(t, job, h.failer.jobs[0])
	assert.Equal(t, pipeerrors.StageArticle, pipeerrors.GetStage(h.failer.causes[0]))
}

func TestRunCycleExtractionFailure(t *testing.T) {
	h := newHarness()
	h.queue.job = claimedJob("a-100")
	h.extractor.err = errors.New("provider 500")

	processed, err := h.dispatcher(t).RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, h.failer.causes, 1)
	cause := h.failer.causes[0]
	assert.Equal(t, pipeerrors.StageExtraction, pipeerrors.GetStage(cause))
	assert.False(t, pipeerrors.IsTimeout(cause))
	assert.Empty(t, h.merger.sets)
}

func TestRunCycleExtractionTimeoutIsOrdinaryFailure(t *testing.T) {
	h := newHarness()
	h.queue.job = claimedJob("a-100")
	h.extractor.err = context.DeadlineExceeded

	processed, err := h.dispatcher(t).RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, h.failer.causes, 1)
	cause := h.failer.causes[0]
	assert.Equal(t, pipeerrors.StageExtraction, pipeerrors.GetStage(cause))
	assert.True(t, pipeerrors.IsTimeout(cause))
	// Routed through the same fail handler as any other failure.
	assert.Empty(t, h.queue.completed)
}

func TestRunCycleMergeFailure(t *testing.T) {
	h := newHarness()
	h.queue.job = claimedJob("a-100")
	h.merger.err = errors.New("transient commit failure")

	processed, err := h.dispatcher(t).RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, h.failer.causes, 1)
	assert.Equal(t, pipeerrors.StageMerge, pipeerrors.GetStage(h.failer.causes[0]))
	assert.Empty(t, h.queue.completed)
}

func TestRunCycleMergeTimeout(t *testing.T) {
	h := newHarness()
	h.queue.job = claimedJob("a-100")
	h.merger.err = context.DeadlineExceeded

	_, err := h.dispatcher(t).RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, h.failer.causes, 1)
	assert.Equal(t, pipeerrors.StageMerge, pipeerrors.GetStage(h.failer.causes[0]))
	assert.True(t, pipeerrors.IsTimeout(h.failer.causes[0]))
}

func TestRunCycleQueueErrorSurfaces(t *testing.T) {
	h := newHarness()
	h.queue.claimErr = errors.New("disk io error")

	processed, err := h.dispatcher(t).RunCycle(context.Background())
	require.Error(t, err)
	assert.False(t, processed)
	assert.Equal(t, pipeerrors.StageQueue, pipeerrors.GetStage(err))
}

type shutdownExtractor struct {
	cancel context.CancelFunc
}

func (e *shutdownExtractor) Extract(ctx context.Context, title, text string) (*models.ExtractionResult, error) {
	// Simulates SIGTERM arriving while the provider call is in flight.
	e.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunShutdownMidJobRequeuesJob(t *testing.T) {
	store, err := queue.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer store.Close()

	job, err := store.Enqueue(context.Background(), "a-100")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	d := New(
		store,
		retry.NewController(store, 3),
		&fakeReader{article: &models.Article{Ref: "a-100", Title: "央行宣布降准"}},
		&shutdownExtractor{cancel: cancel},
		standardize.Empty(),
		&fakeMerger{},
		StaticGate(true),
		Options{PollInterval: time.Millisecond},
		logger,
	)
	require.NoError(t, d.Run(ctx))

	// The interrupted job must not be stranded in_progress: the failure
	// bookkeeping lands even though the run context is cancelled.
	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestRunDrainsThenStops(t *testing.T) {
	h := newHarness()
	h.queue.job = claimedJob("a-100")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.dispatcher(t).Run(ctx)
	require.NoError(t, err)
	assert.Len(t, h.queue.completed, 1)
	assert.GreaterOrEqual(t, h.queue.claims, 2)
}

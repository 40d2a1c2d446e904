package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enhancely/api/internal/client"
	"github.com/enhancely/api/internal/ledger"
	"github.com/enhancely/api/internal/model"
	"github.com/enhancely/api/internal/queue"
)

type event struct {
	kind   string
	jobID  string
	detail string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) BroadcastStatus(jobID string, status model.JobStatus) {
	n.record(event{"status", jobID, string(status)})
}

func (n *recordingNotifier) BroadcastComplete(jobID, imageURL string) {
	n.record(event{"complete", jobID, imageURL})
}

func (n *recordingNotifier) BroadcastError(jobID string, code, message string) {
	n.record(event{"error", jobID, code})
}

func (n *recordingNotifier) record(e event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) all() []event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]event(nil), n.events...)
}

type failingEnhancer struct{}

func (failingEnhancer) Enhance(ctx context.Context, image []byte, contentType string) ([]byte, string, error) {
	return nil, "", errors.New("unsupported image")
}

type upperEnhancer struct{}

func (upperEnhancer) Enhance(ctx context.Context, image []byte, contentType string) ([]byte, string, error) {
	return []byte(strings.ToUpper(string(image))), "image/webp", nil
}

type fixture struct {
	store    *client.MemoryStore
	ledger   *ledger.Memory
	notifier *recordingNotifier
}

func newFixture() *fixture {
	return &fixture{
		store:    client.NewMemoryStore("https://images.test"),
		ledger:   ledger.NewMemory(),
		notifier: &recordingNotifier{},
	}
}

func (f *fixture) worker(enhancer Enhancer) *EnhanceWorker {
	return NewEnhanceWorker(f.store, f.ledger, enhancer, f.notifier, zerolog.Nop())
}

// submit seeds a pending job the way the API does and returns its message body
func (f *fixture) submit(t *testing.T, jobID string, withBlob bool) []byte {
	t.Helper()
	ctx := context.Background()

	locator := "https://images.test/uploads/" + jobID + ".png"
	if withBlob {
		var err error
		locator, err = f.store.Put(ctx, "uploads/"+jobID+".png", strings.NewReader("pixels"), 6, "image/png")
		require.NoError(t, err)
	}

	require.NoError(t, f.ledger.Create(ctx, &model.Job{
		ID:            jobID,
		SourceLocator: locator,
		Status:        model.JobStatusPending,
		ContentType:   "image/png",
		CreatedAt:     time.Now().UTC(),
	}))

	body, err := queue.EncodeMessage(model.EnhancementMessage{JobID: jobID, SourceLocator: locator})
	require.NoError(t, err)
	return body
}

func TestProcess_CompletesJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	body := f.submit(t, "job-1", true)

	require.NoError(t, f.worker(nil).Process(ctx, body))

	job, err := f.ledger.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.True(t, job.HasResult())
	assert.Equal(t, "enhanced/job-1.png", *job.ResultLocator)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	data, contentType, err := f.store.Get(ctx, *job.ResultLocator)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
	assert.Equal(t, "image/png", contentType)

	assert.Equal(t, []event{
		{"status", "job-1", "processing"},
		{"complete", "job-1", "https://images.test/enhanced/job-1.png"},
	}, f.notifier.all())
}

func TestProcess_UsesEnhancerOutputType(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	body := f.submit(t, "job-2", true)

	require.NoError(t, f.worker(upperEnhancer{}).Process(ctx, body))

	job, err := f.ledger.Get(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, "enhanced/job-2.webp", *job.ResultLocator)

	data, _, err := f.store.Get(ctx, *job.ResultLocator)
	require.NoError(t, err)
	assert.Equal(t, "PIXELS", string(data))
}

func TestProcess_SkipsFinishedJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	body := f.submit(t, "job-3", true)
	w := f.worker(nil)

	require.NoError(t, w.Process(ctx, body))
	before, err := f.ledger.Get(ctx, "job-3")
	require.NoError(t, err)

	// redelivery
	require.NoError(t, w.Process(ctx, body))
	after, err := f.ledger.Get(ctx, "job-3")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, f.notifier.all(), 2)
}

func TestProcess_EnhancerFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	body := f.submit(t, "job-4", true)

	require.NoError(t, f.worker(failingEnhancer{}).Process(ctx, body))

	job, err := f.ledger.Get(ctx, "job-4")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Nil(t, job.ResultLocator)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "unsupported image")

	events := f.notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, event{"error", "job-4", "ENHANCEMENT_FAILED"}, events[1])
}

func TestProcess_ResumesAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	body := f.submit(t, "job-5", false)
	w := f.worker(nil)

	// source blob not there yet, the message must be redelivered
	err := w.Process(ctx, body)
	require.Error(t, err)

	job, err := f.ledger.Get(ctx, "job-5")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, job.Status)

	_, err = f.store.Put(ctx, "uploads/job-5.png", strings.NewReader("pixels"), 6, "image/png")
	require.NoError(t, err)

	require.NoError(t, w.Process(ctx, body))
	job, err = f.ledger.Get(ctx, "job-5")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
}

func TestProcess_DropsUnprocessableMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	w := f.worker(nil)

	assert.NoError(t, w.Process(ctx, []byte("{'enhancementId': 'x'}")))

	body, err := queue.EncodeMessage(model.EnhancementMessage{JobID: "ghost", SourceLocator: "uploads/ghost.png"})
	require.NoError(t, err)
	assert.NoError(t, w.Process(ctx, body))
	assert.Empty(t, f.notifier.all())
}

func TestProcessTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	body := f.submit(t, "job-6", true)

	require.NoError(t, f.worker(nil).ProcessTask(ctx, asynq.NewTask(queue.TaskTypeEnhance, body)))

	job, err := f.ledger.Get(ctx, "job-6")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
}

func TestWorker_ConsumesMemoryQueue(t *testing.T) {
	f := newFixture()
	q := queue.NewMemory(8)
	w := NewEnhanceWorker(f.store, f.ledger, nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx, w.Process) }()

	body := f.submit(t, "job-7", true)
	require.NoError(t, q.Publish(ctx, body, "default-group", "token-1"))

	assert.Eventually(t, func() bool {
		job, err := f.ledger.Get(context.Background(), "job-7")
		return err == nil && job.Status == model.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResultExtension(t *testing.T) {
	assert.Equal(t, "png", resultExtension("image/png", "uploads/a.jpg"))
	assert.Equal(t, "jpg", resultExtension("application/octet-stream", "https://x.test/uploads/a.JPG"))
	assert.Equal(t, "bin", resultExtension("", "uploads/a"))
}

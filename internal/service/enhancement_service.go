package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/enhancely/api/internal/ledger"
	"github.com/enhancely/api/internal/model"
	"github.com/enhancely/api/internal/queue"
)

const (
	DefaultGroupKey = "default-group"

	defaultStoreTimeout  = 10 * time.Second
	defaultLedgerTimeout = 5 * time.Second
	defaultQueueTimeout  = 5 * time.Second

	maxExtLen = 10
)

// ObjectStore stores uploaded blobs and resolves locators into fetchable URLs
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Resolve(ctx context.Context, locator string) (string, error)
}

// JobLedger is the system of record for job status
type JobLedger interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
}

// WorkQueue delivers job-start notifications to workers at least once
type WorkQueue interface {
	Publish(ctx context.Context, body []byte, groupKey, dedupToken string) error
}

// Options tune the coordinator. Zero values fall back to defaults.
type Options struct {
	GroupKey      string
	StoreTimeout  time.Duration
	LedgerTimeout time.Duration
	QueueTimeout  time.Duration
}

// EnhancementService coordinates the job lifecycle: it writes the upload,
// records the job and notifies the workers. It never moves a job past pending.
type EnhancementService struct {
	store  ObjectStore
	ledger JobLedger
	queue  WorkQueue
	opts   Options
	log    zerolog.Logger

	now   func() time.Time
	newID func() string
}

func NewEnhancementService(store ObjectStore, jobLedger JobLedger, workQueue WorkQueue, opts Options, log zerolog.Logger) *EnhancementService {
	if opts.GroupKey == "" {
		opts.GroupKey = DefaultGroupKey
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.LedgerTimeout <= 0 {
		opts.LedgerTimeout = defaultLedgerTimeout
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = defaultQueueTimeout
	}

	return &EnhancementService{
		store:  store,
		ledger: jobLedger,
		queue:  workQueue,
		opts:   opts,
		log:    log.With().Str("component", "enhancement_service").Logger(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Submit stores the image, records a pending job and publishes its
// notification, in that order. Caller cancellation does not abort a
// submission in flight; each step is bounded by its own timeout instead.
//
// On ErrQueuePublish the response is returned alongside the error: the job
// exists but no worker was told, and its id is needed to redrive it.
func (s *EnhancementService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.SubmitResponse, error) {
	ctx = context.WithoutCancel(ctx)

	jobID := s.newID()
	key := fmt.Sprintf("uploads/%s.%s", jobID, fileExtension(req.Filename, req.ContentType))
	log := s.log.With().Str("enhancementId", jobID).Logger()

	// Store the upload
	sourceLocator, err := s.put(ctx, key, req)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to store upload")
		return nil, err
	}

	// Record the job before anyone can be told about it
	now := s.now().UTC().Truncate(time.Second)
	job := &model.Job{
		ID:            jobID,
		SourceLocator: sourceLocator,
		Status:        model.JobStatusPending,
		ContentType:   req.ContentType,
		Filename:      req.Filename,
		CreatedAt:     now,
	}
	if err := s.create(ctx, job); err != nil {
		log.Error().Err(err).Str("imageUrl", sourceLocator).Msg("Failed to record job, upload left orphaned")
		return nil, err
	}

	resp := &model.SubmitResponse{
		JobID:     jobID,
		Message:   "File uploaded and job created",
		Status:    model.JobStatusPending,
		CreatedAt: now,
	}

	// Notify the workers
	if err := s.publish(ctx, job); err != nil {
		log.Error().
			Err(err).
			Str("alert", "queue_publish_failed").
			Str("imageUrl", sourceLocator).
			Msg("Job recorded but never queued, it stays pending until redriven")
		resp.Message = "Job created but not queued"
		return resp, err
	}

	log.Info().Str("imageUrl", sourceLocator).Msg("Enhancement job submitted")
	return resp, nil
}

// GetStatus returns the ledger record of a job
func (s *EnhancementService) GetStatus(ctx context.Context, jobID string) (*model.Job, error) {
	return s.get(ctx, jobID)
}

// GetResult returns the result of a job. A job that is not completed yields
// a not-ready view, not an error.
func (s *EnhancementService) GetResult(ctx context.Context, jobID string) (*model.ResultView, error) {
	job, err := s.get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case model.JobStatusCompleted:
	case model.JobStatusFailed:
		return &model.ResultView{
			JobID:   job.ID,
			Status:  job.Status,
			Message: "Enhancement failed",
		}, nil
	default:
		return &model.ResultView{
			JobID:   job.ID,
			Status:  job.Status,
			Message: "Job is still in progress",
		}, nil
	}

	if !job.HasResult() {
		s.log.Error().Str("enhancementId", job.ID).Msg("Completed job has no result locator")
		return nil, fmt.Errorf("%w: %s", ErrResultLocatorMissing, job.ID)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	imageURL, err := s.store.Resolve(storeCtx, *job.ResultLocator)
	if err != nil {
		return nil, wrap(storeCtx, ErrStoreResolve, err)
	}

	return &model.ResultView{
		JobID:    job.ID,
		Ready:    true,
		Status:   job.Status,
		Message:  "Enhancement completed",
		ImageURL: imageURL,
	}, nil
}

// Redrive republishes the notification of a job that is still pending, using
// a fresh dedup token. It recovers jobs whose original publish failed.
func (s *EnhancementService) Redrive(ctx context.Context, jobID string) (*model.RedriveResponse, error) {
	ctx = context.WithoutCancel(ctx)

	job, err := s.get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, job.ID, job.Status)
	}

	if err := s.publish(ctx, job); err != nil {
		s.log.Error().
			Err(err).
			Str("alert", "queue_publish_failed").
			Str("enhancementId", job.ID).
			Msg("Redrive publish failed")
		return nil, err
	}

	s.log.Info().Str("enhancementId", job.ID).Msg("Enhancement job redriven")

	return &model.RedriveResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job notification republished",
	}, nil
}

func (s *EnhancementService) put(ctx context.Context, key string, req *model.SubmitRequest) (string, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	locator, err := s.store.Put(storeCtx, key, req.Body, req.Size, req.ContentType)
	if err != nil {
		return "", wrap(storeCtx, ErrStoreWrite, err)
	}
	return locator, nil
}

func (s *EnhancementService) create(ctx context.Context, job *model.Job) error {
	ledgerCtx, cancel := context.WithTimeout(ctx, s.opts.LedgerTimeout)
	defer cancel()

	if err := s.ledger.Create(ledgerCtx, job); err != nil {
		return wrap(ledgerCtx, ErrLedgerWrite, err)
	}
	return nil
}

func (s *EnhancementService) publish(ctx context.Context, job *model.Job) error {
	body, err := queue.EncodeMessage(model.EnhancementMessage{
		JobID:         job.ID,
		SourceLocator: job.SourceLocator,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrQueuePublish, err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, s.opts.QueueTimeout)
	defer cancel()

	if err := s.queue.Publish(queueCtx, body, s.opts.GroupKey, s.newID()); err != nil {
		return wrap(queueCtx, ErrQueuePublish, err)
	}
	return nil
}

func (s *EnhancementService) get(ctx context.Context, jobID string) (*model.Job, error) {
	ledgerCtx, cancel := context.WithTimeout(ctx, s.opts.LedgerTimeout)
	defer cancel()

	job, err := s.ledger.Get(ledgerCtx, jobID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, wrap(ledgerCtx, ErrLedgerRead, err)
	}
	return job, nil
}

// fileExtension picks the stored extension: the filename's own extension when
// it is sane, else one derived from the content type, else "bin".
func fileExtension(filename, contentType string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext != "" && len(ext) <= maxExtLen && isAlnum(ext) {
		return ext
	}
	if ext, ok := model.ImageContentTypes[strings.ToLower(contentType)]; ok {
		return ext
	}
	return "bin"
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/enhancely/api/internal/ledger"
	"github.com/enhancely/api/internal/model"
	"github.com/enhancely/api/internal/queue"
)

// Store is the object storage the worker reads sources from and writes results to
type Store interface {
	Get(ctx context.Context, locator string) ([]byte, string, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Resolve(ctx context.Context, locator string) (string, error)
}

// Ledger is the job ledger as seen by a worker
type Ledger interface {
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Transition(ctx context.Context, jobID string, t ledger.Transition) (*model.Job, error)
}

// Notifier receives job updates for push delivery
type Notifier interface {
	BroadcastStatus(jobID string, status model.JobStatus)
	BroadcastComplete(jobID, imageURL string)
	BroadcastError(jobID string, code, message string)
}

// Enhancer turns a source image into its enhanced version
type Enhancer interface {
	Enhance(ctx context.Context, image []byte, contentType string) ([]byte, string, error)
}

// PassthroughEnhancer returns the image unchanged
type PassthroughEnhancer struct{}

func (PassthroughEnhancer) Enhance(ctx context.Context, image []byte, contentType string) ([]byte, string, error) {
	return image, contentType, nil
}

// EnhanceWorker processes enhancement notifications. Delivery is at least
// once: redelivered messages for finished jobs are acknowledged without work,
// and a job left processing by a crashed worker is picked up again.
type EnhanceWorker struct {
	store    Store
	ledger   Ledger
	enhancer Enhancer
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewEnhanceWorker creates a new enhance worker. notifier may be nil.
func NewEnhanceWorker(store Store, jobLedger Ledger, enhancer Enhancer, notifier Notifier, log zerolog.Logger) *EnhanceWorker {
	if enhancer == nil {
		enhancer = PassthroughEnhancer{}
	}
	return &EnhanceWorker{
		store:    store,
		ledger:   jobLedger,
		enhancer: enhancer,
		notifier: notifier,
		log:      log.With().Str("component", "enhance_worker").Logger(),
		now:      time.Now,
	}
}

// ProcessTask handles enhancement tasks delivered by asynq
func (w *EnhanceWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return w.Process(ctx, t.Payload())
}

// Process handles one queue message body. A nil return acknowledges the
// message; an error asks the queue to redeliver it. Enhancement failures are
// recorded on the job and acknowledged.
func (w *EnhanceWorker) Process(ctx context.Context, body []byte) error {
	msg, err := queue.DecodeMessage(body)
	if err != nil {
		w.log.Error().Err(err).Bytes("body", body).Msg("Dropping malformed message")
		return nil
	}

	log := w.log.With().Str("enhancementId", msg.JobID).Logger()

	job, err := w.ledger.Get(ctx, msg.JobID)
	if errors.Is(err, ledger.ErrNotFound) {
		log.Warn().Msg("Dropping message for unknown job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	switch job.Status {
	case model.JobStatusCompleted, model.JobStatusFailed:
		log.Debug().Str("status", string(job.Status)).Msg("Job already finished, skipping redelivery")
		return nil
	case model.JobStatusPending:
		if _, err := w.ledger.Transition(ctx, job.ID, ledger.Processing(w.now())); err != nil {
			if errors.Is(err, ledger.ErrInvalidTransition) {
				log.Debug().Msg("Job claimed by another worker")
				return nil
			}
			return fmt.Errorf("failed to mark job processing: %w", err)
		}
		w.notifyStatus(job.ID, model.JobStatusProcessing)
	case model.JobStatusProcessing:
		log.Info().Msg("Resuming job left processing")
	}

	log.Info().Msg("Starting enhancement job")

	sourceLocator := job.SourceLocator
	if sourceLocator == "" {
		sourceLocator = msg.SourceLocator
	}

	source, contentType, err := w.store.Get(ctx, sourceLocator)
	if err != nil {
		return fmt.Errorf("failed to fetch source image: %w", err)
	}
	if contentType == "" {
		contentType = job.ContentType
	}

	enhanced, enhancedType, err := w.enhancer.Enhance(ctx, source, contentType)
	if err != nil {
		return w.failJob(ctx, job.ID, fmt.Sprintf("Enhancement failed: %v", err))
	}
	if enhancedType == "" {
		enhancedType = contentType
	}

	key := fmt.Sprintf("enhanced/%s.%s", job.ID, resultExtension(enhancedType, sourceLocator))
	if _, err := w.store.Put(ctx, key, bytes.NewReader(enhanced), int64(len(enhanced)), enhancedType); err != nil {
		return fmt.Errorf("failed to store enhanced image: %w", err)
	}

	if _, err := w.ledger.Transition(ctx, job.ID, ledger.Completed(key, w.now())); err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			log.Warn().Msg("Job finished elsewhere, discarding result")
			return nil
		}
		return fmt.Errorf("failed to complete job: %w", err)
	}

	imageURL, err := w.store.Resolve(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve result for broadcast")
	}
	if w.notifier != nil {
		w.notifier.BroadcastComplete(job.ID, imageURL)
	}

	log.Info().Str("enhancedImageS3Key", key).Msg("Enhancement job completed")
	return nil
}

func (w *EnhanceWorker) failJob(ctx context.Context, jobID, detail string) error {
	w.log.Error().Str("enhancementId", jobID).Str("detail", detail).Msg("Enhancement job failed")

	if _, err := w.ledger.Transition(ctx, jobID, ledger.Failed(detail, w.now())); err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	if w.notifier != nil {
		w.notifier.BroadcastError(jobID, "ENHANCEMENT_FAILED", detail)
	}
	return nil
}

func (w *EnhanceWorker) notifyStatus(jobID string, status model.JobStatus) {
	if w.notifier != nil {
		w.notifier.BroadcastStatus(jobID, status)
	}
}

// resultExtension derives the stored extension from the result content type,
// falling back to the source's extension.
func resultExtension(contentType, sourceLocator string) string {
	if ext, ok := model.ImageContentTypes[strings.ToLower(contentType)]; ok {
		return ext
	}
	if ext := strings.TrimPrefix(path.Ext(sourceLocator), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return "bin"
}

package service

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds returned by EnhancementService. Callers match them with errors.Is;
// a timed out call matches both its step kind and ErrTimeout.
var (
	ErrStoreWrite           = errors.New("object store write failed")
	ErrStoreResolve         = errors.New("object store resolve failed")
	ErrLedgerWrite          = errors.New("job ledger write failed")
	ErrLedgerRead           = errors.New("job ledger read failed")
	ErrQueuePublish         = errors.New("work queue publish failed")
	ErrJobNotFound          = errors.New("job not found")
	ErrResultLocatorMissing = errors.New("completed job has no result locator")
	ErrNotPending           = errors.New("job is not pending")
	ErrTimeout              = errors.New("backing service timed out")
)

// wrap tags cause with kind, adding ErrTimeout when the step ran out of time.
func wrap(ctx context.Context, kind, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", kind, ErrTimeout, cause)
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

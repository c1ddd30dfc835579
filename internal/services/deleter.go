package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"content-server/internal/metric"
	"content-server/internal/middleware"
	"content-server/internal/vectorstore"
)

// ErrDeletePageLimit is returned when ids keep appearing under a prefix
// after MaxDeletePages deletes. The index is inconsistent or being written
// to concurrently.
var ErrDeletePageLimit = errors.New("delete page limit reached")

const (
	DeletePageSize = 100
	MaxDeletePages = 100

	deleteMaxRetries = 3
)

// Deleter removes every vector under an id prefix, one page at a time.
type Deleter struct {
	store   VectorStore
	limiter *rate.Limiter
	metrics *metric.Client

	retryDelay    time.Duration
	retryMaxDelay time.Duration
}

type DeleterOption func(*Deleter)

// WithRetryBackoff sets the exponential backoff between retries of a page call.
func WithRetryBackoff(delay, maxDelay time.Duration) DeleterOption {
	return func(d *Deleter) {
		d.retryDelay = delay
		d.retryMaxDelay = maxDelay
	}
}

// NewDeleter paces pages with limiter. Share one limiter between all
// deleters that hit the same index; rate.Every(time.Second) with a burst of
// 1 gives the one page per second the vector store tolerates.
func NewDeleter(store VectorStore, limiter *rate.Limiter, metrics *metric.Client, opts ...DeleterOption) *Deleter {
	d := &Deleter{
		store:         store,
		limiter:       limiter,
		metrics:       metrics,
		retryDelay:    200 * time.Millisecond,
		retryMaxDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefaultDeleteLimiter allows one delete page per second.
func DefaultDeleteLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Second), 1)
}

// DeleteByPrefix deletes all ids in namespace starting with prefix and
// returns how many were deleted. A store answering "not found" ends the loop
// successfully.
func (d *Deleter) DeleteByPrefix(ctx context.Context, namespace, prefix string) (int, error) {
	ctx, span := middleware.StartSpan(ctx, "Deleter.DeleteByPrefix",
		attribute.String("namespace", namespace),
		attribute.String("prefix", prefix),
	)
	defer span.End()

	deleted := 0
	for page := 0; ; page++ {
		ids, err := d.listPage(ctx, namespace, prefix)
		if errors.Is(err, vectorstore.ErrNotFound) {
			break
		}
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return deleted, fmt.Errorf("failed to list %s in %s: %w", prefix, namespace, err)
		}
		if len(ids) == 0 {
			break
		}
		if page >= MaxDeletePages {
			err := fmt.Errorf("%s in %s: %w", prefix, namespace, ErrDeletePageLimit)
			middleware.AddSpanError(ctx, err)
			return deleted, err
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return deleted, err
		}

		err = d.deletePage(ctx, namespace, ids)
		if errors.Is(err, vectorstore.ErrNotFound) {
			break
		}
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return deleted, fmt.Errorf("failed to delete %s in %s: %w", prefix, namespace, err)
		}

		deleted += len(ids)
		d.metrics.Count(metric.VectorsDeleted, int64(len(ids)), nil)
		log.Debug().Ctx(ctx).
			Str("namespace", namespace).
			Str("prefix", prefix).
			Int("page", page).
			Int("ids", len(ids)).
			Msg("deleted page")
	}

	span.SetAttributes(attribute.Int("deleted", deleted))
	return deleted, nil
}

func (d *Deleter) listPage(ctx context.Context, namespace, prefix string) ([]string, error) {
	var ids []string
	err := d.retry(ctx, "list", func() error {
		var err error
		ids, err = d.store.ListIDs(ctx, namespace, prefix, DeletePageSize)
		return err
	})
	return ids, err
}

func (d *Deleter) deletePage(ctx context.Context, namespace string, ids []string) error {
	return d.retry(ctx, "delete", func() error {
		return d.store.DeleteIDs(ctx, namespace, ids)
	})
}

// retry runs fn up to deleteMaxRetries extra times. Not-found and context
// errors are final.
func (d *Deleter) retry(ctx context.Context, op string, fn func() error) error {
	policy := retrypolicy.Builder[any]().
		HandleIf(func(_ any, err error) bool {
			return err != nil &&
				!errors.Is(err, vectorstore.ErrNotFound) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}).
		WithMaxRetries(deleteMaxRetries).
		WithBackoff(d.retryDelay, d.retryMaxDelay).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			log.Warn().Ctx(ctx).Err(e.LastError()).Str("op", op).Int("attempt", e.Attempts()).Msg("retrying vector store call")
		}).
		Build()

	return failsafe.NewExecutor[any](policy).WithContext(ctx).Run(fn)
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"content-server/internal/metric"
	"content-server/internal/middleware"
	"content-server/internal/models"
)

/*
LEARNING: QUEUE CONSUMER POOL

A fixed number of goroutines each block on the queue (BLMOVE) instead of
reading a shared channel. Redis is the buffer, so there is no in-process
backlog to drain on shutdown:

1. Start re-queues jobs a crashed worker left active, then spawns workers
2. Each worker loops: Dequeue with a short timeout, run the handler, record
   the outcome
3. Shutdown cancels the dequeue context and waits on the WaitGroup; a job
   already running finishes on a context that is not cancelled
*/

// Queue is the consumer side of the job queue.
type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error)
	Complete(ctx context.Context, job *models.Job, result *models.JobResult) error
	Fail(ctx context.Context, job *models.Job, jobErr error) error
	RecoverStalled(ctx context.Context) (int, error)
}

// Handlers runs one job type each.
type Handlers interface {
	IndexPath(ctx context.Context, p models.IndexPathPayload) (*models.JobResult, error)
	IndexNote(ctx context.Context, p models.IndexNotePayload) (*models.JobResult, error)
	DeleteNote(ctx context.Context, p models.DeleteNotePayload) (*models.JobResult, error)
	IndexChat(ctx context.Context, p models.IndexChatPayload, createdAt time.Time) (*models.JobResult, error)
	DeleteFile(ctx context.Context, p models.DeleteFilePayload) (*models.JobResult, error)
}

type Pool struct {
	queue    Queue
	handlers Handlers
	metrics  *metric.Client

	workers     int
	pollTimeout time.Duration
	errorDelay  time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a pool of numWorkers consumers. It does not start them.
func NewPool(queue Queue, handlers Handlers, metrics *metric.Client, numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:       queue,
		handlers:    handlers,
		metrics:     metrics,
		workers:     numWorkers,
		pollTimeout: 5 * time.Second,
		errorDelay:  time.Second,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start re-queues stalled jobs and spawns the workers.
func (p *Pool) Start(ctx context.Context) error {
	if _, err := p.queue.RecoverStalled(ctx); err != nil {
		return err
	}

	log.Info().Int("workers", p.workers).Msg("🔧 Starting indexer worker pool")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Info().Msg("✓ Indexer worker pool started")
	return nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log.Debug().Int("worker", id).Msg("worker started")

	for {
		if p.ctx.Err() != nil {
			log.Debug().Int("worker", id).Msg("worker shutting down")
			return
		}

		job, err := p.queue.Dequeue(p.ctx, p.pollTimeout)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("worker", id).Msg("dequeue failed")
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.errorDelay):
			}
			continue
		}
		if job == nil {
			continue
		}

		p.process(context.WithoutCancel(p.ctx), id, job)
	}
}

// process runs a job and records its outcome in the queue.
func (p *Pool) process(ctx context.Context, workerID int, job *models.Job) {
	start := time.Now()
	ctx, span := middleware.StartSpan(ctx, "Worker.Process",
		attribute.String("job.id", job.ID),
		attribute.String("job.type", string(job.Type)),
		attribute.Int("job.attempt", job.Attempts),
	)
	defer span.End()

	logger := log.With().Str("job_id", job.ID).Str("type", string(job.Type)).Int("worker", workerID).Logger()
	logger.Info().Ctx(ctx).Int("attempt", job.Attempts).Msg("Processing job")

	result, err := p.Dispatch(ctx, job)

	status := "completed"
	if err != nil {
		status = "failed"
		middleware.AddSpanError(ctx, err)
		logger.Error().Ctx(ctx).Err(err).Msg("Job failed")
		if ferr := p.queue.Fail(ctx, job, err); ferr != nil {
			logger.Error().Ctx(ctx).Err(ferr).Msg("failed to record job failure")
		}
	} else {
		logger.Info().Ctx(ctx).
			Int("documents", result.Documents).
			Int("upserted", result.Upserted).
			Int("deleted", result.Deleted).
			Dur("took", time.Since(start)).
			Msg("Job completed")
		if cerr := p.queue.Complete(ctx, job, result); cerr != nil {
			logger.Error().Ctx(ctx).Err(cerr).Msg("failed to record job completion")
		}
	}

	tags := []string{metric.TagAsString("type", string(job.Type)), metric.TagAsString("status", status)}
	p.metrics.Incr(metric.JobCount, tags)
	p.metrics.TimingWithStart(metric.JobLatency, start, tags)
}

// Dispatch decodes the payload and calls the handler for its type.
func (p *Pool) Dispatch(ctx context.Context, job *models.Job) (*models.JobResult, error) {
	payload, err := job.DecodePayload()
	if err != nil {
		return nil, err
	}

	var result *models.JobResult
	switch pl := payload.(type) {
	case models.IndexPathPayload:
		result, err = p.handlers.IndexPath(ctx, pl)
	case models.IndexNotePayload:
		result, err = p.handlers.IndexNote(ctx, pl)
	case models.DeleteNotePayload:
		result, err = p.handlers.DeleteNote(ctx, pl)
	case models.IndexChatPayload:
		result, err = p.handlers.IndexChat(ctx, pl, job.CreatedAt)
	case models.DeleteFilePayload:
		result, err = p.handlers.DeleteFile(ctx, pl)
	default:
		return nil, fmt.Errorf("no handler for job type %s", job.Type)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("handler returned no result")
	}
	return result, nil
}

// Shutdown stops dequeuing and waits for running jobs to finish.
func (p *Pool) Shutdown() {
	log.Info().Msg("🛑 Shutting down indexer worker pool...")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("✓ Indexer worker pool shutdown complete")
}

package api

import (
	"context"

	"content-server/internal/models"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

This package is the CONSUMER of the job queue, so the queue interface lives
HERE and declares only what the handlers call. The Redis queue satisfies it
in production; tests use an in-memory fake.
*/

// JobQueue is what the gateway needs from the queue. EnqueueAll queues every
// payload or none of them and returns ids in payload order.
type JobQueue interface {
	EnqueueAll(ctx context.Context, payloads []models.Payload) ([]string, error)
	Get(ctx context.Context, id string) (*models.Job, error)
}

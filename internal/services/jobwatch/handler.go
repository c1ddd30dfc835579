package jobwatch

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"content-server/internal/middleware"
	"content-server/internal/models"
	"content-server/internal/queue"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Requests reach this handler only with a valid session cookie.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// JobGetter reads the current job record.
type JobGetter interface {
	Get(ctx context.Context, id string) (*models.Job, error)
}

type Handler struct {
	hub  *Hub
	jobs JobGetter
}

func NewHandler(hub *Hub, jobs JobGetter) *Handler {
	return &Handler{hub: hub, jobs: jobs}
}

// WatchJob upgrades to a WebSocket, sends the job's current state and then
// every change until the job finishes.
func (h *Handler) WatchJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.WatchJob", attribute.String("job.id", jobID))
	defer span.End()

	job, err := h.jobs.Get(ctx, jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		middleware.AddSpanError(ctx, err)
		log.Error().Ctx(ctx).Err(err).Str("job_id", jobID).Msg("failed to read job")
		http.Error(w, "failed to read job", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		log.Warn().Ctx(ctx).Err(err).Msg("failed to upgrade websocket")
		return
	}

	watcher := h.hub.NewWatcher(jobID, conn)
	current := models.JobEvent{
		JobID:  job.ID,
		Type:   job.Type,
		State:  job.State,
		Error:  job.Error,
		Result: job.Result,
		At:     job.UpdatedAt,
	}
	if !h.hub.Join(watcher, current) {
		conn.Close()
		return
	}

	go watcher.WritePump()
	go watcher.ReadPump()

	log.Info().Ctx(ctx).Str("job_id", jobID).Str("watcher", watcher.ID).Msg("✓ Job watcher connected")
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"content-server/internal/metric"
	"content-server/internal/middleware"
	"content-server/internal/models"
	"content-server/internal/queue"
)

const maxBodyBytes = 4 << 20

// Handler handles HTTP requests
// Learning: Uses the JobQueue INTERFACE defined in this package (consumer-driven)
type Handler struct {
	queue   JobQueue
	metrics *metric.Client
	now     func() time.Time
}

func NewHandler(queue JobQueue, metrics *metric.Client) *Handler {
	return &Handler{queue: queue, metrics: metrics, now: time.Now}
}

// IndexPath enqueues indexing of a file or directory in a bucket.
func (h *Handler) IndexPath(w http.ResponseWriter, r *http.Request) {
	var req indexPathRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := req.payload()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, ok := h.enqueue(w, r, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jobId": ids[0]})
}

// IndexNote enqueues one job per namespace the note is visible in.
func (h *Handler) IndexNote(w http.ResponseWriter, r *http.Request) {
	var req indexNoteRequest
	if !decode(w, r, &req) {
		return
	}
	payloads, err := req.payloads(h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, ok := h.enqueue(w, r, notePayloads(payloads)...)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Indexing %s note %d", req.Type, req.ID.Value),
		"jobIds":  ids,
	})
}

// IndexChat enqueues a chat summary. Everything is validated before the
// response is written.
func (h *Handler) IndexChat(w http.ResponseWriter, r *http.Request) {
	var req indexChatRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := req.payload()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, ok := h.enqueue(w, r, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Indexing chat %d", p.ChatID),
		"jobId":   ids[0],
	})
}

// DeleteNote enqueues removal of a note's vectors.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	var noteID models.FlexibleID
	if err := noteID.UnmarshalJSON([]byte(mux.Vars(r)["id"])); err != nil {
		writeError(w, http.StatusBadRequest, "note id must be an integer")
		return
	}

	var req deleteNoteRequest
	if !decode(w, r, &req) {
		return
	}
	payloads, err := req.payloads(noteID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, ok := h.enqueue(w, r, deletePayloads(payloads)...)
	if !ok {
		return
	}
	// deleteJobId is the private-scope job, which every note has.
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      fmt.Sprintf("Deleting %s note %d", req.Type, noteID.Value),
		"deleteJobId":  ids[len(ids)-1],
		"deleteJobIds": ids,
	})
}

// DeleteFile enqueues removal of every vector under a file path.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	var req deleteFileRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := req.payload()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, ok := h.enqueue(w, r, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Deleting %s", p.Path),
		"jobId":   ids[0],
	})
}

// GetJob returns the recorded state of an indexing job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	job, err := h.queue.Get(r.Context(), jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		log.Error().Ctx(r.Context()).Err(err).Str("job_id", jobID).Msg("failed to read job")
		writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state": job.State,
		"job":   job,
	})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// enqueue queues the payloads in one call, so a request either gets all its
// jobs or none. On failure it has already answered 500.
func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, payloads ...models.Payload) ([]string, bool) {
	jobType := string(payloads[0].JobType())
	ctx, span := middleware.StartSpan(r.Context(), "Gateway.Enqueue",
		attribute.String("job.type", jobType),
		attribute.Int("job.count", len(payloads)),
	)
	defer span.End()

	ids, err := h.queue.EnqueueAll(ctx, payloads)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		log.Error().Ctx(ctx).Err(err).Str("type", jobType).Msg("failed to enqueue job")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return nil, false
	}

	span.SetAttributes(attribute.StringSlice("job.ids", ids))
	h.metrics.Count(metric.JobEnqueuedCount, int64(len(ids)), []string{metric.TagAsString("type", jobType)})
	log.Info().Ctx(ctx).Strs("job_ids", ids).Str("type", jobType).Msg("Job enqueued")
	return ids, true
}

func notePayloads(in []models.IndexNotePayload) []models.Payload {
	out := make([]models.Payload, len(in))
	for i, p := range in {
		out[i] = p
	}
	return out
}

func deletePayloads(in []models.DeleteNotePayload) []models.Payload {
	out := make([]models.Payload, len(in))
	for i, p := range in {
		out[i] = p
	}
	return out
}

// decode reads a JSON body into v, answering 400 on malformed input.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

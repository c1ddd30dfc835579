package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"content-server/internal/metric"
	"content-server/internal/middleware"
)

type RouterConfig struct {
	SessionSecret []byte
	SessionCookie string
	Metrics       *metric.Client
	// WatchJob serves the job WebSocket; nil leaves the route unregistered.
	WatchJob http.HandlerFunc
}

func SetupRoutes(h *Handler, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	// Learning: Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware(cfg.Metrics))
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	// Job submission
	r.HandleFunc("/jobs", h.IndexPath).Methods(http.MethodPut)
	r.HandleFunc("/jobs/note", h.IndexNote).Methods(http.MethodPut)
	r.HandleFunc("/jobs/chat", h.IndexChat).Methods(http.MethodPut)
	r.HandleFunc("/jobs/note/{id}", h.DeleteNote).Methods(http.MethodDelete)
	r.HandleFunc("/delete-file", h.DeleteFile).Methods(http.MethodPut)

	// Job status, behind the web app's session cookie
	auth := middleware.SessionAuth(cfg.SessionSecret, cfg.SessionCookie)
	r.Handle("/jobs/index/{jobId}", auth(http.HandlerFunc(h.GetJob))).Methods(http.MethodGet)
	if cfg.WatchJob != nil {
		r.Handle("/ws/jobs/{jobId}", auth(cfg.WatchJob)).Methods(http.MethodGet)
	}

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	return r
}

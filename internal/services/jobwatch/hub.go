// Package jobwatch streams job state changes to WebSocket clients.
package jobwatch

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"

	"content-server/internal/models"
)

/*
LEARNING: WEBSOCKET HUB

One goroutine owns the watcher sets; connections talk to it over channels.

1. **register / unregister**: add or remove a watcher from its job's room
2. **broadcast**: job events arriving from Redis pub/sub
3. **Send buffer**: each watcher has a buffered channel drained by its own
   write goroutine, so one slow client never blocks the hub
*/

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 16
)

// Hub fans job events out to the watchers of each job.
type Hub struct {
	jobs       map[string]map[*Watcher]bool
	register   chan *Watcher
	unregister chan *Watcher
	broadcast  chan models.JobEvent
	mu         sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
}

// Watcher is one WebSocket connection following one job.
type Watcher struct {
	ID          string
	JobID       string
	Conn        *websocket.Conn
	Send        chan models.JobEvent
	ConnectedAt time.Time
	hub         *Hub
	initial     *models.JobEvent
}

func NewHub() *Hub {
	return &Hub{
		jobs:       make(map[string]map[*Watcher]bool),
		register:   make(chan *Watcher),
		unregister: make(chan *Watcher),
		broadcast:  make(chan models.JobEvent, 256),
		done:       make(chan struct{}),
	}
}

// NewWatcher wraps conn. Register it with Join.
func (h *Hub) NewWatcher(jobID string, conn *websocket.Conn) *Watcher {
	return &Watcher{
		ID:          ksuid.New().String(),
		JobID:       jobID,
		Conn:        conn,
		Send:        make(chan models.JobEvent, sendBuffer),
		ConnectedAt: time.Now(),
		hub:         h,
	}
}

// Start runs the event loop until Shutdown.
func (h *Hub) Start() {
	log.Info().Msg("🔄 Starting job watch hub...")

	go func() {
		for {
			select {
			case <-h.done:
				h.closeAll()
				return
			case w := <-h.register:
				h.add(w)
			case w := <-h.unregister:
				h.remove(w)
			case event := <-h.broadcast:
				h.deliver(event)
			}
		}
	}()

	log.Info().Msg("✓ Job watch hub started")
}

// Join registers w and queues initial as its first message. It returns
// false when the hub is shutting down.
func (h *Hub) Join(w *Watcher, initial models.JobEvent) bool {
	w.initial = &initial
	select {
	case h.register <- w:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(w *Watcher) {
	select {
	case h.unregister <- w:
	case <-h.done:
	}
}

// Publish queues an event for delivery. Events are dropped when the hub is
// saturated; watchers can always fall back to the status endpoint.
func (h *Hub) Publish(event models.JobEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		log.Warn().Str("job_id", event.JobID).Msg("job watch hub saturated, dropping event")
	}
}

// Watchers returns the number of connections following jobID.
func (h *Hub) Watchers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.jobs[jobID])
}

func (h *Hub) add(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.jobs[w.JobID] == nil {
		h.jobs[w.JobID] = make(map[*Watcher]bool)
	}
	h.jobs[w.JobID][w] = true
	if w.initial != nil {
		w.Send <- *w.initial
		w.initial = nil
	}
	log.Debug().Str("watcher", w.ID).Str("job_id", w.JobID).Int("watchers", len(h.jobs[w.JobID])).Msg("watcher joined")
}

func (h *Hub) remove(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	watchers, ok := h.jobs[w.JobID]
	if !ok || !watchers[w] {
		return
	}
	delete(watchers, w)
	close(w.Send)
	if len(watchers) == 0 {
		delete(h.jobs, w.JobID)
	}
	log.Debug().Str("watcher", w.ID).Str("job_id", w.JobID).Msg("watcher left")
}

func (h *Hub) deliver(event models.JobEvent) {
	h.mu.RLock()
	var slow []*Watcher
	for w := range h.jobs[event.JobID] {
		select {
		case w.Send <- event:
		default:
			slow = append(slow, w)
		}
	}
	h.mu.RUnlock()

	for _, w := range slow {
		log.Warn().Str("watcher", w.ID).Msg("⚠️  watcher buffer full, closing connection")
		h.remove(w)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, watchers := range h.jobs {
		for w := range watchers {
			close(w.Send)
		}
	}
	h.jobs = make(map[string]map[*Watcher]bool)
}

// Shutdown closes every watcher connection.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		log.Info().Msg("🛑 Shutting down job watch hub...")
		close(h.done)
	})
}

// ReadPump only exists to notice the client going away and to answer pings.
func (w *Watcher) ReadPump() {
	defer func() {
		w.hub.leave(w)
		w.Conn.Close()
	}()

	w.Conn.SetReadLimit(512)
	w.Conn.SetReadDeadline(time.Now().Add(pongWait))
	w.Conn.SetPongHandler(func(string) error {
		return w.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := w.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("watcher", w.ID).Msg("websocket read error")
			}
			return
		}
	}
}

// WritePump writes events as JSON and closes the stream after the job
// reaches a terminal state.
func (w *Watcher) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-w.Send:
			w.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				w.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := w.Conn.WriteJSON(event); err != nil {
				return
			}
			if event.State.Finished() {
				w.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.State)))
				return
			}

		case <-ticker.C:
			w.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

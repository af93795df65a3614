package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/PanTrack/internal/config"
	"github.com/cjeanneret/PanTrack/internal/logic/session"
)

// maxRunBodyBytes bounds the POST /run request body.
const maxRunBodyBytes = 1 << 20

// RunTrackingFunc runs one tracking session until ctx is cancelled or the
// detection source ends. Operator recenter requests arrive on recenter and
// every tick is reported through onTick.
// It is called from the POST /run handler in a goroutine.
type RunTrackingFunc func(ctx context.Context, overrides config.Overrides, recenter <-chan struct{}, onTick func(session.Telemetry)) error

// FormConfig holds default values for the run form (from config).
type FormConfig struct {
	SmoothingFactor     float64 `json:"smoothing_factor"`
	DeadbandPx          float64 `json:"deadband_px"`
	LossThresholdFrames int     `json:"loss_threshold_frames"`
	Selection           string  `json:"selection"`
	PanCenter           float64 `json:"pan_center"`
	TiltCenter          float64 `json:"tilt_center"`
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	Running bool               `json:"running"`
	RunID   string             `json:"run_id,omitempty"` // current or last session
	Last    *session.Telemetry `json:"last,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	RunTracking  RunTrackingFunc
	FormDefaults FormConfig
	staticFS     fs.FS

	runningMu sync.Mutex
	running   bool
	runID     string
	cancel    context.CancelFunc
	recenter  chan struct{}
	wg        sync.WaitGroup

	stateMu sync.RWMutex
	last    *session.Telemetry
}

// NewHandlers creates handlers with the given dependencies.
// If runTracking is nil, POST /run will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, runTracking RunTrackingFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		RunTracking:  runTracking,
		FormDefaults: formDefaults,
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleRun handles POST /run to start a tracking session.
// An empty body runs with the configured values.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var overrides config.Overrides
	body := http.MaxBytesReader(w, r.Body, maxRunBodyBytes)
	if err := json.NewDecoder(body).Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := config.ValidateOverrides(overrides); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.RunTracking == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "tracking already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	recenter := make(chan struct{}, 1)
	runID := uuid.NewString()
	h.running = true
	h.runID = runID
	h.cancel = cancel
	h.recenter = recenter
	h.wg.Add(1)
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer h.wg.Done()
		defer func() {
			cancel()
			h.runningMu.Lock()
			h.running = false
			h.cancel = nil
			h.recenter = nil
			h.runningMu.Unlock()
		}()

		h.Broadcaster.Broadcast("info", "Tracking started (run "+runID+")")
		if err := h.RunTracking(ctx, overrides, recenter, h.PublishTick); err != nil {
			h.Broadcaster.Broadcast("error", "Tracking failed: "+err.Error())
			log.Printf("tracking run %s failed: %v", runID, err)
		} else {
			h.Broadcaster.Broadcast("info", "Tracking stopped, head recentered")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "run_id": runID})
}

// HandleStop handles POST /stop: the running session recenters and ends.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	cancel := h.cancel
	h.runningMu.Unlock()

	if cancel == nil {
		http.Error(w, "tracking not running", http.StatusConflict)
		return
	}
	cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// HandleRecenter handles POST /recenter: the head returns to center until
// the next detection. Requests made while one is pending are merged.
func (h *Handlers) HandleRecenter(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	recenter := h.recenter
	h.runningMu.Unlock()

	if recenter == nil {
		http.Error(w, "tracking not running", http.StatusConflict)
		return
	}
	select {
	case recenter <- struct{}{}:
	default:
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recentering"})
}

// HandleState returns whether a session runs and its last tick.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	running, runID := h.running, h.runID
	h.runningMu.Unlock()

	h.stateMu.RLock()
	last := h.last
	h.stateMu.RUnlock()

	writeJSON(w, http.StatusOK, StateResponse{Running: running, RunID: runID, Last: last})
}

// PublishTick records t as the latest state and streams it to SSE clients.
func (h *Handlers) PublishTick(t session.Telemetry) {
	h.stateMu.Lock()
	h.last = &t
	h.stateMu.Unlock()

	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	h.Broadcaster.BroadcastData("tick", t.Phase.String(), data)
}

// Stop cancels the running session, if any, and waits for it to finish
// recentering.
func (h *Handlers) Stop() {
	h.runningMu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.runningMu.Unlock()
	h.wg.Wait()
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

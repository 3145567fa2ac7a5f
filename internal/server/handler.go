package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"queue-wait-monitor/internal/display"
	"queue-wait-monitor/internal/estimator"
	"queue-wait-monitor/internal/service"
)

type handler struct {
	svc            *service.Service
	defaultCounter string
	logger         zerolog.Logger
}

func newHandler(svc *service.Service, defaultCounter string, logger zerolog.Logger) *handler {
	return &handler{svc: svc, defaultCounter: defaultCounter, logger: logger}
}

type eventRequest struct {
	CounterID string            `json:"counter_id"`
	EventID   string            `json:"event_id"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type statusResponse struct {
	CounterID       string    `json:"counter_id"`
	Known           bool      `json:"known"`
	RatePerMin      *float64  `json:"rate_per_min,omitempty"`
	MeanIntervalSec *float64  `json:"mean_interval_sec,omitempty"`
	Trend           string    `json:"trend,omitempty"`
	WaitMinutes     *float64  `json:"wait_minutes,omitempty"`
	Confidence      string    `json:"confidence"`
	Flags           []string  `json:"flags"`
	GeneratedAt     time.Time `json:"generated_at"`
}

func toStatusResponse(snap estimator.StatusSnapshot) statusResponse {
	resp := statusResponse{
		CounterID:   snap.CounterID,
		Known:       snap.Known,
		Confidence:  string(snap.Estimate.Confidence),
		Flags:       make([]string, 0, len(snap.Flags)),
		GeneratedAt: snap.GeneratedAt,
	}
	for _, f := range snap.Flags {
		resp.Flags = append(resp.Flags, string(f.Kind))
	}
	if snap.Known {
		rate := snap.Rate.Rate
		mean := snap.Rate.MeanInterval.Seconds()
		wait := snap.Estimate.Minutes
		resp.RatePerMin = &rate
		resp.MeanIntervalSec = &mean
		resp.WaitMinutes = &wait
		resp.Trend = string(snap.Rate.Trend)
	}
	return resp
}

// POST /events - record one service completion
func (h *handler) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.CounterID == "" {
		req.CounterID = h.defaultCounter
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	ev := estimator.CompletionEvent{
		ID:        req.EventID,
		Timestamp: req.Timestamp,
		Metadata:  req.Metadata,
	}

	snap, err := h.svc.Ingest(r.Context(), req.CounterID, ev)
	if err != nil {
		if errors.Is(err, estimator.ErrOutOfOrderEvent) {
			http.Error(w, "event timestamp does not advance the stream", http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Str("counter", req.CounterID).Msg("failed to ingest event")
		http.Error(w, "Failed to process event", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toStatusResponse(snap))
}

// GET /status - current snapshot, all counters or ?counter=<id>
func (h *handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if counterID := r.URL.Query().Get("counter"); counterID != "" {
		snap, ok := h.svc.Status(counterID)
		if !ok {
			http.Error(w, "unknown counter", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(toStatusResponse(snap))
		return
	}

	out := make([]statusResponse, 0)
	for _, counterID := range h.svc.Counters() {
		if snap, ok := h.svc.Status(counterID); ok {
			out = append(out, toStatusResponse(snap))
		}
	}
	json.NewEncoder(w).Encode(out)
}

// GET /display - the four-line board text for one counter
func (h *handler) handleGetDisplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counterID := r.URL.Query().Get("counter")
	if counterID == "" {
		counterID = h.defaultCounter
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	snap, ok := h.svc.Status(counterID)
	if !ok {
		w.Write([]byte(display.RenderUninitialized(time.Now()) + "\n"))
		return
	}
	w.Write([]byte(display.Render(snap) + "\n"))
}

// GET /healthz
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

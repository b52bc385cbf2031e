package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/avierra/claim-sync/internal/poller"
	"github.com/avierra/claim-sync/internal/storage"
)

// Listener is the poller surface exposed over HTTP.
type Listener interface {
	Start(ctx context.Context) error
	Stop()
	Status() poller.Status
	TriggerManualSync(ctx context.Context) poller.SyncSummary
}

// EventLog exposes the processed-event audit trail.
type EventLog interface {
	RecentEvents(ctx context.Context, contractID string, limit int) ([]storage.ProcessedEvent, error)
}

type handler struct {
	listener   Listener
	events     EventLog
	contractID string
	log        *slog.Logger
}

// NewHandler builds the control-surface routes: status, manual sync,
// start/stop, and the recent-events audit listing.
func NewHandler(l Listener, events EventLog, contractID string, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &handler{listener: l, events: events, contractID: contractID, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /listener/status", h.status)
	mux.HandleFunc("POST /listener/sync", h.sync)
	mux.HandleFunc("POST /listener/start", h.start)
	mux.HandleFunc("POST /listener/stop", h.stop)
	mux.HandleFunc("GET /listener/events", h.recentEvents)
	return mux
}

// Serve starts the control server on addr.
func Serve(addr string, h http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the control server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.listener.Status())
}

func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	summary := h.listener.TriggerManualSync(r.Context())
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) start(w http.ResponseWriter, r *http.Request) {
	if err := h.listener.Start(r.Context()); err != nil {
		h.log.Error("start listener", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) stop(w http.ResponseWriter, r *http.Request) {
	h.listener.Stop()
	w.WriteHeader(http.StatusNoContent)
}

type eventJSON struct {
	EventID        string          `json:"eventId"`
	ContractID     string          `json:"contractId"`
	TxHash         string          `json:"transactionHash"`
	LedgerSequence uint32          `json:"ledgerSequence"`
	EventType      string          `json:"eventType"`
	EventData      json.RawMessage `json:"eventData,omitempty"`
	ClaimID        string          `json:"claimId,omitempty"`
	ProcessedAt    time.Time       `json:"processedAt"`
}

func (h *handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer up to 500"})
			return
		}
		limit = n
	}

	events, err := h.events.RecentEvents(r.Context(), h.contractID, limit)
	if err != nil {
		h.log.Error("list recent events", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	out := make([]eventJSON, 0, len(events))
	for _, ev := range events {
		item := eventJSON{
			EventID:        ev.EventID,
			ContractID:     ev.ContractID,
			TxHash:         ev.TxHash,
			LedgerSequence: ev.LedgerSequence,
			EventType:      ev.EventType,
			ClaimID:        ev.ClaimID,
			ProcessedAt:    ev.ProcessedAt,
		}
		if json.Valid([]byte(ev.EventData)) {
			item.EventData = json.RawMessage(ev.EventData)
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avierra/claim-sync/internal/claims"
	"github.com/avierra/claim-sync/internal/classify"
	"github.com/avierra/claim-sync/internal/metrics"
	"github.com/avierra/claim-sync/internal/source/soroban"
	"github.com/avierra/claim-sync/internal/storage"
)

// cycleTimeout bounds a timer-driven cycle so a stuck RPC call cannot wedge
// the loop. An aborted cycle leaves the cursor unchanged and retries on the
// next tick.
const cycleTimeout = 30 * time.Second

var defaultStatusEvents = []string{"AdjudicationComplete", "ClaimStatusUpdated"}

// Ledger is the durable dedup and cursor store consumed by the poller.
type Ledger interface {
	HasProcessed(ctx context.Context, contractID, eventID string) (bool, error)
	RecordEvent(ctx context.Context, ev storage.ProcessedEvent) error
	LastCursor(ctx context.Context, contractID string) (string, bool, error)
}

// Reconciler applies a classified status update to a claim.
type Reconciler interface {
	Apply(ctx context.Context, u claims.Update) (bool, error)
}

// Config holds the poller's runtime settings.
type Config struct {
	ContractID   string
	PollInterval time.Duration
	BatchLimit   int
	StatusEvents []string
}

// Status is the read-only view exposed on the control surface.
type Status struct {
	Running        bool   `json:"isRunning"`
	ContractID     string `json:"contractId"`
	LastCursor     string `json:"lastCursor"`
	PollIntervalMs int64  `json:"pollIntervalMs"`
}

// SyncSummary reports the outcome of a manual sync. Processed counts
// completed fetch-and-process cycles, not individual events.
type SyncSummary struct {
	Processed int `json:"processedCycles"`
	Errors    int `json:"errors"`
}

// Poller owns the ingestion lifecycle: it bootstraps the cursor from the
// ledger, runs the event pipeline on a repeating timer, and advances the
// in-memory cursor after each fully dispatched batch.
type Poller struct {
	cfg          Config
	source       soroban.EventSource
	ledger       Ledger
	rec          Reconciler
	log          *slog.Logger
	mtr          *metrics.Metrics
	statusEvents map[string]struct{}

	mu      sync.Mutex // guards running, cursor, stop, done
	running bool
	cursor  string
	stop    chan struct{}
	done    chan struct{}

	// cycleMu serializes timer-driven and manual cycles. Two concurrent
	// cycles would read the same cursor and double-fetch a batch; the
	// ledger would reject the duplicates, but the work is wasted.
	cycleMu sync.Mutex
}

// New builds a poller. mtr may be nil.
func New(cfg Config, source soroban.EventSource, ledger Ledger, rec Reconciler, log *slog.Logger, mtr *metrics.Metrics) *Poller {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	if len(cfg.StatusEvents) == 0 {
		cfg.StatusEvents = defaultStatusEvents
	}

	statusEvents := make(map[string]struct{}, len(cfg.StatusEvents))
	for _, name := range cfg.StatusEvents {
		statusEvents[name] = struct{}{}
	}

	return &Poller{
		cfg:          cfg,
		source:       source,
		ledger:       ledger,
		rec:          rec,
		log:          log,
		mtr:          mtr,
		statusEvents: statusEvents,
	}
}

// Start loads the last cursor, runs one immediate cycle, and begins the
// polling loop. Calling Start on a running poller is a logged no-op, as is
// starting without a configured contract.
func (p *Poller) Start(ctx context.Context) error {
	if p.cfg.ContractID == "" {
		p.log.Warn("no contract id configured, event listener disabled")
		return nil
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.log.Warn("event listener already running")
		return nil
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.mu.Unlock()

	if cursor, ok, err := p.ledger.LastCursor(ctx, p.cfg.ContractID); err != nil {
		// Non-fatal: start from latest and rebuild the cursor as we go.
		p.log.Error("load last cursor", "error", err)
	} else if ok {
		p.setCursor(cursor)
		p.log.Info("resuming from cursor", "cursor", cursor)
	} else {
		p.log.Info("no previous cursor, starting from latest events")
	}

	_ = p.runCycle(ctx)

	go p.loop()

	p.log.Info("event listener started", "contract_id", p.cfg.ContractID, "poll_interval", p.cfg.PollInterval)
	return nil
}

// Stop cancels the polling loop and waits for an in-flight cycle to finish.
// Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	done := p.done
	p.mu.Unlock()

	<-done
	p.log.Info("event listener stopped")
}

// Status returns the current lifecycle state. Pure read.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Running:        p.running,
		ContractID:     p.cfg.ContractID,
		LastCursor:     p.cursor,
		PollIntervalMs: p.cfg.PollInterval.Milliseconds(),
	}
}

// TriggerManualSync runs one cycle outside the timer. The cycle mutex keeps
// it from overlapping with a timer-driven cycle.
func (p *Poller) TriggerManualSync(ctx context.Context) SyncSummary {
	p.log.Info("manual sync triggered")
	var s SyncSummary
	if err := p.runCycle(ctx); err != nil {
		s.Errors++
	} else {
		s.Processed++
	}
	return s
}

func (p *Poller) loop() {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
			_ = p.runCycle(ctx)
			cancel()
		}
	}
}

// runCycle fetches one batch and drives the per-event pipeline. On fetch
// failure the cursor is left untouched and the next tick retries. The cursor
// advances to the last event of the batch only after every event has been
// dispatched.
func (p *Poller) runCycle(ctx context.Context) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	if p.cfg.ContractID == "" {
		p.log.Warn("no contract id configured, skipping sync")
		return nil
	}

	req := soroban.NewEventsRequest(p.cfg.ContractID, p.getCursor(), p.cfg.BatchLimit)
	resp, err := p.source.GetEvents(ctx, req)
	if err != nil {
		p.mtr.PollErrors()
		p.log.Error("fetch events", "error", err)
		return err
	}
	if len(resp.Events) == 0 {
		return nil
	}

	p.log.Info("fetched events", "count", len(resp.Events), "latest_ledger", resp.LatestLedger)

	for _, ev := range resp.Events {
		// A malformed or unexpected event must never block the rest of
		// the batch.
		if err := p.processEvent(ctx, ev); err != nil {
			p.mtr.EventErrors()
			p.log.Error("process event", "event_id", ev.ID, "error", err)
		}
	}

	p.setCursor(resp.Events[len(resp.Events)-1].ID)
	return nil
}

func (p *Poller) processEvent(ctx context.Context, ev soroban.Event) error {
	seen, err := p.ledger.HasProcessed(ctx, p.cfg.ContractID, ev.ID)
	if err != nil {
		return fmt.Errorf("dedupe check: %w", err)
	}
	if seen {
		p.mtr.EventsSkipped()
		p.log.Debug("event already processed", "event_id", ev.ID)
		return nil
	}

	cls := classify.Classify(ev.Topic, ev.Value, ev.InSuccessfulContractCall)
	p.log.Info("processing event", "event_id", ev.ID, "event_type", cls.EventType)

	if _, isStatus := p.statusEvents[cls.EventType]; isStatus {
		if cls.ClaimID == "" {
			p.log.Warn("status event missing claim id", "event_id", ev.ID)
		} else {
			updated, err := p.rec.Apply(ctx, claims.Update{
				ClaimID:     cls.ClaimID,
				StatusToken: cls.Status,
				TxHash:      ev.TxHash,
				EventID:     ev.ID,
			})
			if err != nil {
				return fmt.Errorf("reconcile claim %s: %w", cls.ClaimID, err)
			}
			if updated {
				p.mtr.ClaimsUpdated()
			}
		}
	}

	rec := storage.ProcessedEvent{
		EventID:        ev.ID,
		ContractID:     p.cfg.ContractID,
		TxHash:         ev.TxHash,
		LedgerSequence: ev.Ledger,
		EventType:      cls.EventType,
		EventData:      encodeAttrs(cls.Attrs),
		ClaimID:        cls.ClaimID,
	}
	if rec.TxHash == "" {
		rec.TxHash = "unknown"
	}
	if err := p.ledger.RecordEvent(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateEvent) {
			p.mtr.EventsSkipped()
			p.log.Warn("duplicate event insert skipped", "event_id", ev.ID)
			return nil
		}
		return fmt.Errorf("record event: %w", err)
	}

	p.mtr.EventsProcessed()
	return nil
}

func (p *Poller) getCursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func (p *Poller) setCursor(cursor string) {
	p.mu.Lock()
	p.cursor = cursor
	p.mu.Unlock()
}

func encodeAttrs(attrs map[string]any) string {
	data, err := json.Marshal(attrs)
	if err != nil {
		return ""
	}
	return string(data)
}

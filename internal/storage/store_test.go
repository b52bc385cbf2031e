package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/avierra/claim-sync/internal/claims"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordEventExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := ProcessedEvent{
		EventID:        "e1",
		ContractID:     "CCONTRACT",
		TxHash:         "abc123",
		LedgerSequence: 100,
		EventType:      "AdjudicationComplete",
		EventData:      `{"topics":["dG9waWM="]}`,
		ClaimID:        "C1",
	}

	if err := store.RecordEvent(ctx, ev); err != nil {
		t.Fatalf("record event: %v", err)
	}

	err := store.RecordEvent(ctx, ev)
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}

	n, err := store.CountEvents(ctx, "CCONTRACT")
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestSameEventIDAcrossContracts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// event ids are only unique per contract
	if err := store.RecordEvent(ctx, ProcessedEvent{EventID: "e1", ContractID: "A", TxHash: "t1", EventType: "X"}); err != nil {
		t.Fatalf("record for A: %v", err)
	}
	if err := store.RecordEvent(ctx, ProcessedEvent{EventID: "e1", ContractID: "B", TxHash: "t2", EventType: "X"}); err != nil {
		t.Fatalf("record for B: %v", err)
	}
}

func TestHasProcessed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seen, err := store.HasProcessed(ctx, "CCONTRACT", "e1")
	if err != nil {
		t.Fatalf("has processed: %v", err)
	}
	if seen {
		t.Fatalf("expected unseen event")
	}

	if err := store.RecordEvent(ctx, ProcessedEvent{EventID: "e1", ContractID: "CCONTRACT", TxHash: "t", EventType: "X"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	seen, err = store.HasProcessed(ctx, "CCONTRACT", "e1")
	if err != nil || !seen {
		t.Fatalf("expected seen event, seen=%v err=%v", seen, err)
	}
}

func TestLastCursorRecovery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.LastCursor(ctx, "CCONTRACT")
	if err != nil {
		t.Fatalf("last cursor: %v", err)
	}
	if ok {
		t.Fatalf("expected no cursor on empty store")
	}

	base := time.Now().UTC().Add(-time.Minute)
	for i, id := range []string{"e1", "e2", "e3"} {
		ev := ProcessedEvent{
			EventID:     id,
			ContractID:  "CCONTRACT",
			TxHash:      "t",
			EventType:   "X",
			ProcessedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	cursor, ok, err := store.LastCursor(ctx, "CCONTRACT")
	if err != nil || !ok {
		t.Fatalf("last cursor: ok=%v err=%v", ok, err)
	}
	if cursor != "e3" {
		t.Fatalf("cursor: got %q, want e3", cursor)
	}
}

func TestRecentEventsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, id := range []string{"e1", "e2", "e3"} {
		ev := ProcessedEvent{
			EventID:     id,
			ContractID:  "CCONTRACT",
			TxHash:      "t",
			EventType:   "X",
			ProcessedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	events, err := store.RecentEvents(ctx, "CCONTRACT", 2)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventID != "e3" || events[1].EventID != "e2" {
		t.Fatalf("unexpected order: %s, %s", events[0].EventID, events[1].EventID)
	}
}

func TestClaimRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.GetClaim(ctx, "C1")
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if ok {
		t.Fatalf("expected absent claim")
	}

	c := claims.Claim{ID: "C1", Status: claims.StatusPending}
	if err := store.SaveClaim(ctx, c); err != nil {
		t.Fatalf("save claim: %v", err)
	}

	c.Status = claims.StatusApproved
	c.BlockchainTxHash = "abc"
	c.Notes = "updated"
	if err := store.SaveClaim(ctx, c); err != nil {
		t.Fatalf("update claim: %v", err)
	}

	got, ok, err := store.GetClaim(ctx, "C1")
	if err != nil || !ok {
		t.Fatalf("get claim after save: ok=%v err=%v", ok, err)
	}
	if got.Status != claims.StatusApproved || got.BlockchainTxHash != "abc" || got.Notes != "updated" {
		t.Fatalf("unexpected claim: %+v", got)
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	store.Close()
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}

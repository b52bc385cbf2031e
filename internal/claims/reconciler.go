package claims

import (
	"context"
	"fmt"
	"log/slog"
)

// Update carries one classified status-update event toward a claim.
type Update struct {
	ClaimID     string
	StatusToken string
	TxHash      string
	EventID     string
}

// Reconciler applies classified events to the claim store and records
// provenance. It is the only blockchain-driven writer of claim status.
type Reconciler struct {
	store Store
	log   *slog.Logger
}

// NewReconciler builds a reconciler over the given store.
func NewReconciler(store Store, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, log: log}
}

// Apply maps the update's status token and writes it to the claim when it
// differs from the current status. Returns whether a write occurred.
//
// An unknown claim is a benign skip: the claim may not exist locally yet or
// may belong to another subsystem. An already-applied status is a no-op,
// which keeps redelivery and manual replay idempotent even when the
// processed-event check has been bypassed.
func (r *Reconciler) Apply(ctx context.Context, u Update) (bool, error) {
	claim, ok, err := r.store.GetClaim(ctx, u.ClaimID)
	if err != nil {
		return false, fmt.Errorf("find claim %s: %w", u.ClaimID, err)
	}
	if !ok {
		r.log.Warn("claim not found, skipping event", "claim_id", u.ClaimID, "event_id", u.EventID)
		return false, nil
	}

	mapped := MapStatus(u.StatusToken)
	if claim.Status == mapped {
		r.log.Debug("claim already has status", "claim_id", u.ClaimID, "status", mapped)
		return false, nil
	}

	old := claim.Status
	claim.Status = mapped
	claim.BlockchainTxHash = u.TxHash
	claim.Notes = fmt.Sprintf("Status updated from %s to %s via blockchain event %s", old, mapped, u.EventID)

	if err := r.store.SaveClaim(ctx, claim); err != nil {
		return false, fmt.Errorf("save claim %s: %w", u.ClaimID, err)
	}

	r.log.Info("claim status updated", "claim_id", u.ClaimID, "from", old, "to", mapped, "event_id", u.EventID)
	return true, nil
}

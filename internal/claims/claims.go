package claims

import (
	"context"
	"strings"
	"time"
)

// Status is the claim lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
)

// Claim is the domain record whose status tracks on-chain adjudication.
type Claim struct {
	ID               string
	Status           Status
	BlockchainTxHash string
	Notes            string
	UpdatedAt        time.Time
}

// Store is the claim persistence consumed by the reconciler.
type Store interface {
	GetClaim(ctx context.Context, id string) (Claim, bool, error)
	SaveClaim(ctx context.Context, c Claim) error
}

// MapStatus maps an external status token to a claim status. The lookup is
// case-insensitive; unrecognized or absent tokens map to PROCESSING so a
// claim never lands in an unmapped state.
func MapStatus(token string) Status {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "approved":
		return StatusApproved
	case "rejected":
		return StatusRejected
	case "pending":
		return StatusPending
	default:
		return StatusProcessing
	}
}

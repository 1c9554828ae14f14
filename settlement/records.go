/*
records.go - Persistence boundary for policies and settlement records

PURPOSE:
  Defines the interface between the settlement engine and whatever stores
  its results. The engine writes structured records after every successful
  purchase and claim; it never depends on the store's schema beyond these
  fields. Implementations: settlement/store (in-memory) and store/sqlite.

APPEND-ONLY CONTRACT:
  Settlement records are append-only. The single exception to immutability
  is the policy status field, which receives exactly one terminal write
  (active -> claimed, or active -> expired). There is no other update and
  no delete.

ATOMICITY:
  WithTx ensures all-or-nothing multi-writes: settling a claim appends the
  claim record and flips the policy status in one transaction, so a crash
  can never leave a claimed policy without its record or vice versa.
*/
package settlement

import (
	"context"
	"time"
)

// =============================================================================
// SETTLEMENT RECORDS - What the engine emits to the outside world
// =============================================================================

// PurchaseRecord is persisted after every successful policy purchase.
type PurchaseRecord struct {
	PolicyID       PolicyID
	Holder         Address
	GrossAmount    Amount
	Fee            Amount
	Net            Amount
	Timestamp      time.Time
	TransactionRef string
}

// ClaimRecord is persisted after every successfully settled claim.
type ClaimRecord struct {
	PolicyID       PolicyID
	Holder         Address
	ClaimAmount    Amount
	ClaimPercent   string // total percentage applied, decimal string
	DaysHeld       int
	TimeBonus      string // bonus percentage component, decimal string
	Timestamp      time.Time
	TransactionRef string
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

// PolicyStore persists policies. Policies are immutable once written except
// for the single terminal status transition.
type PolicyStore interface {
	// CreatePolicy persists a new policy. The policy must be active.
	CreatePolicy(ctx context.Context, p Policy) error

	// GetPolicy returns a policy by ID, or ErrPolicyNotFound.
	GetPolicy(ctx context.Context, id PolicyID) (Policy, error)

	// ListPolicies returns all policies, newest first.
	ListPolicies(ctx context.Context) ([]Policy, error)

	// ListActivePurchasedBefore returns active policies purchased strictly
	// before the cutoff. Used by the expiry sweep.
	ListActivePurchasedBefore(ctx context.Context, cutoff time.Time) ([]Policy, error)

	// SetPolicyStatus performs the one terminal status write. Fails with
	// ErrPolicyNotActive if the policy already had its terminal write.
	SetPolicyStatus(ctx context.Context, id PolicyID, status PolicyStatus) error
}

// RecordStore persists settlement records. Append-only.
type RecordStore interface {
	AppendPurchase(ctx context.Context, rec PurchaseRecord) error
	AppendClaim(ctx context.Context, rec ClaimRecord) error

	// Purchases and Claims return records for a policy, oldest first.
	// An empty PolicyID returns everything.
	Purchases(ctx context.Context, id PolicyID) ([]PurchaseRecord, error)
	Claims(ctx context.Context, id PolicyID) ([]ClaimRecord, error)
}

// Store combines both persistence concerns.
type Store interface {
	PolicyStore
	RecordStore
}

// TxStore wraps Store with transaction support. If fn returns an error the
// whole transaction rolls back; otherwise it commits.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

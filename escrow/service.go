/*
service.go - Settlement orchestration

PURPOSE:
  Ties the pure computation (fees, claim curve) to the escrow and the record
  store. This is the layer the API talks to:

    PurchasePolicy: escrow purchase + policy row + purchase record
    QuoteClaim:     side-effect-free payout preview
    SettleClaim:    quote, pay out of custody, flip status, claim record
    ExpirePolicies: time-based active -> expired sweep

ATOMICITY:
  Money movement and persistence are two worlds. The money side is atomic
  inside the escrow; the persistence side is atomic inside the store's
  WithTx. If persistence fails after money moved, the money movement is
  compensated (purchase refunded, payout clawed back) so neither world
  ends up half-applied. A compensation that itself fails is never
  swallowed: it is logged and joined into the returned error, because at
  that point funds sit where no record says they should.

ERROR SEMANTICS:
  Every failure is terminal here. The service never retries; resubmission
  is the caller's decision.
*/
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/warp/settlement-engine/settlement"
)

// A policy term of zero means policies never expire on their own; the
// expiry sweep is a no-op until a term is configured. The claim curve's
// time bonus only accrues past a year, so a term shorter than 365 days
// makes the bonus unreachable.
const NoPolicyTerm = 0

// Service orchestrates purchases, claims, and expiry.
type Service struct {
	ledger *Ledger
	store  settlement.TxStore
	curve  settlement.ClaimCurve

	termDays int
	now      func() time.Time
}

// NewService creates a settlement service.
func NewService(ledger *Ledger, store settlement.TxStore) *Service {
	if ledger == nil {
		panic("ledger is required")
	}
	if store == nil {
		panic("store is required")
	}
	return &Service{
		ledger:   ledger,
		store:    store,
		termDays: NoPolicyTerm,
		now:      time.Now,
	}
}

// SetPolicyTerm sets the claimable term in days. Zero disables expiry.
func (s *Service) SetPolicyTerm(days int) { s.termDays = days }

// Ledger exposes the underlying escrow for balance queries and admin ops.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Store exposes the record store for read endpoints.
func (s *Service) Store() settlement.Store { return s.store }

// =============================================================================
// PURCHASE
// =============================================================================

// PurchasePolicy runs the escrow purchase, creates the policy, and persists
// the purchase record. If persistence fails the token transfers are
// compensated so the buyer is made whole.
func (s *Service) PurchasePolicy(ctx context.Context, buyer settlement.Address, gross settlement.Amount, memo string) (settlement.Policy, error) {
	policyID := settlement.PolicyID(uuid.NewString())

	event, err := s.ledger.Purchase(ctx, buyer, policyID, gross, memo)
	if err != nil {
		return settlement.Policy{}, err
	}

	policy := settlement.Policy{
		ID:          policyID,
		Holder:      buyer,
		Premium:     event.Gross,
		PurchasedAt: event.At,
		Status:      settlement.StatusActive,
	}

	record := settlement.PurchaseRecord{
		PolicyID:       policyID,
		Holder:         buyer,
		GrossAmount:    event.Gross,
		Fee:            event.Fee,
		Net:            event.Net,
		Timestamp:      event.At,
		TransactionRef: uuid.NewString(),
	}

	err = s.store.WithTx(ctx, func(st settlement.Store) error {
		if err := st.CreatePolicy(ctx, policy); err != nil {
			return err
		}
		return st.AppendPurchase(ctx, record)
	})
	if err != nil {
		if refundErr := s.ledger.RefundPurchase(ctx, event); refundErr != nil {
			log.Printf("[Service] Refund of purchase %s failed, buyer %s funds not restored: %v",
				policyID, buyer, refundErr)
			return settlement.Policy{}, fmt.Errorf(
				"failed to persist purchase and refund the buyer: %w", errors.Join(err, refundErr))
		}
		return settlement.Policy{}, fmt.Errorf("failed to persist purchase: %w", err)
	}

	return policy, nil
}

// =============================================================================
// CLAIMS
// =============================================================================

// QuoteClaim previews the claim payout for a policy as of the given time.
// Zero asOf means now. Read-only.
func (s *Service) QuoteClaim(ctx context.Context, id settlement.PolicyID, asOf time.Time) (settlement.ClaimQuote, error) {
	policy, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return settlement.ClaimQuote{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.curve.QuotePolicy(policy, asOf)
}

// SettleClaim settles an active policy: quotes the payout, pays it from
// custody to the holder, flips the status to claimed, and appends the claim
// record. The status flip and the record land in one store transaction; if
// that fails the payout is clawed back.
func (s *Service) SettleClaim(ctx context.Context, id settlement.PolicyID) (settlement.ClaimRecord, error) {
	policy, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return settlement.ClaimRecord{}, err
	}
	if policy.IsTerminal() {
		return settlement.ClaimRecord{}, &settlement.PolicyStateError{PolicyID: id, Status: policy.Status}
	}

	settledAt := s.now()
	quote, err := s.curve.QuotePolicy(policy, settledAt)
	if err != nil {
		return settlement.ClaimRecord{}, err
	}

	event, err := s.ledger.PayClaim(ctx, s.ledger.Owner(), policy.Holder, quote.ClaimAmount)
	if err != nil {
		return settlement.ClaimRecord{}, err
	}

	record := settlement.ClaimRecord{
		PolicyID:       id,
		Holder:         policy.Holder,
		ClaimAmount:    quote.ClaimAmount,
		ClaimPercent:   quote.TotalPercent.String(),
		DaysHeld:       quote.DaysHeld,
		TimeBonus:      quote.BonusPercent.String(),
		Timestamp:      event.At,
		TransactionRef: uuid.NewString(),
	}

	err = s.store.WithTx(ctx, func(st settlement.Store) error {
		if err := st.SetPolicyStatus(ctx, id, settlement.StatusClaimed); err != nil {
			return err
		}
		return st.AppendClaim(ctx, record)
	})
	if err != nil {
		if clawbackErr := s.ledger.ReclaimPayout(ctx, policy.Holder, quote.ClaimAmount); clawbackErr != nil {
			log.Printf("[Service] Clawback of claim payout for %s failed, custody short by %s: %v",
				id, quote.ClaimAmount, clawbackErr)
			return settlement.ClaimRecord{}, fmt.Errorf(
				"failed to persist claim and reclaim the payout: %w", errors.Join(err, clawbackErr))
		}
		return settlement.ClaimRecord{}, fmt.Errorf("failed to persist claim: %w", err)
	}

	return record, nil
}

// =============================================================================
// EXPIRY
// =============================================================================

// ExpirePolicies flips every active policy past its term to expired, as of
// the given time (zero means now). Returns the expired policy IDs. Each
// policy's terminal write is independent; one failure doesn't stop the sweep.
func (s *Service) ExpirePolicies(ctx context.Context, asOf time.Time) ([]settlement.PolicyID, error) {
	if s.termDays <= NoPolicyTerm {
		return nil, nil
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	cutoff := asOf.AddDate(0, 0, -s.termDays)

	stale, err := s.store.ListActivePurchasedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var expired []settlement.PolicyID
	for _, p := range stale {
		if err := s.store.SetPolicyStatus(ctx, p.ID, settlement.StatusExpired); err != nil {
			continue
		}
		expired = append(expired, p.ID)
	}
	return expired, nil
}

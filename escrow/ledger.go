/*
ledger.go - The escrow ledger

PURPOSE:
  Holds net premiums in custody and enforces the money-movement invariants:

    held balance == sum(net of purchases) - sum(gross of withdrawals)
                                          - sum(claim payouts)

  and the balance never goes negative.

OPERATIONS:
  Purchase:          buyer -> company (fee), buyer -> custody (net)
  Withdraw:          custody -> company (fee), custody -> recipient (net)
  PayClaim:          custody -> holder (no fee; collected at purchase)
  RefundPurchase:    compensating reversal of a purchase
  ReclaimPayout:     compensating reversal of a claim payout
  SetToken, SetCompanyWallet, TransferOwnership: owner-gated configuration

ATOMICITY:
  Each operation is an independent all-or-nothing step - there is no
  pending intermediate state. Token moves run inside the token's WithTx
  so a failure mid-sequence rolls back every transfer already made.

SERIALIZATION:
  A mutex totally orders mutating operations, standing in for the global
  serialization a chain would provide. Two concurrent withdrawals can
  never both pass the balance check against the same stale balance.
*/
package escrow

import (
	"context"
	"sync"
	"time"

	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// EVENTS - Emitted on successful operations
// =============================================================================

// PurchaseEvent is emitted after a successful purchase.
type PurchaseEvent struct {
	Buyer    settlement.Address
	PolicyID settlement.PolicyID
	Gross    settlement.Amount
	Fee      settlement.Amount
	Net      settlement.Amount
	Memo     string
	At       time.Time
}

// WithdrawalEvent is emitted after a successful withdrawal or claim payout.
type WithdrawalEvent struct {
	Recipient settlement.Address
	Net       settlement.Amount
	Fee       settlement.Amount
	At        time.Time
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the escrow. Beyond configuration it is stateless; custody is
// whatever the token says the escrow account holds.
type Ledger struct {
	mu sync.Mutex

	owner   settlement.Address
	token   TxToken
	company settlement.Address
	account settlement.Address // custody address

	fees settlement.FeeCalculator
	now  func() time.Time
}

// NewLedger creates an escrow ledger.
func NewLedger(owner settlement.Address, token TxToken, company, account settlement.Address) *Ledger {
	if token == nil {
		panic("token is required")
	}
	return &Ledger{
		owner:   owner,
		token:   token,
		company: company,
		account: account,
		now:     time.Now,
	}
}

// Account returns the custody address.
func (l *Ledger) Account() settlement.Address { return l.account }

// Owner returns the current owner.
func (l *Ledger) Owner() settlement.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

// CompanyWallet returns the current fee destination.
func (l *Ledger) CompanyWallet() settlement.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.company
}

// Balance returns the custody balance.
func (l *Ledger) Balance(ctx context.Context) (settlement.Amount, error) {
	return l.token.BalanceOf(ctx, l.account)
}

// =============================================================================
// PURCHASE
// =============================================================================

// Purchase pulls the purchase fee from the buyer to the company wallet and
// the net premium into custody. Both transfers land or neither does. The
// buyer must have approved at least the gross amount for the escrow account.
func (l *Ledger) Purchase(ctx context.Context, buyer settlement.Address, policyID settlement.PolicyID, gross settlement.Amount, memo string) (PurchaseEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if buyer.IsZero() {
		return PurchaseEvent{}, settlement.ErrInvalidAddress
	}

	breakdown, err := l.fees.PurchaseFee(gross)
	if err != nil {
		return PurchaseEvent{}, err
	}

	err = l.token.WithTx(ctx, func(t Token) error {
		if breakdown.Fee.IsPositive() {
			if err := t.TransferFrom(ctx, l.account, buyer, l.company, breakdown.Fee); err != nil {
				return err
			}
		}
		return t.TransferFrom(ctx, l.account, buyer, l.account, breakdown.Net)
	})
	if err != nil {
		return PurchaseEvent{}, err
	}

	return PurchaseEvent{
		Buyer:    buyer,
		PolicyID: policyID,
		Gross:    breakdown.Gross,
		Fee:      breakdown.Fee,
		Net:      breakdown.Net,
		Memo:     memo,
		At:       l.now(),
	}, nil
}

// =============================================================================
// WITHDRAW
// =============================================================================

// Withdraw pays the withdrawal fee to the company wallet and the net to the
// recipient, out of custody. Owner-only.
func (l *Ledger) Withdraw(ctx context.Context, caller settlement.Address, amount settlement.Amount, recipient settlement.Address) (WithdrawalEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return WithdrawalEvent{}, settlement.ErrNotOwner
	}
	if recipient.IsZero() {
		return WithdrawalEvent{}, settlement.ErrInvalidAddress
	}

	breakdown, err := l.fees.WithdrawFee(amount)
	if err != nil {
		return WithdrawalEvent{}, err
	}

	if err := l.checkCustody(ctx, amount); err != nil {
		return WithdrawalEvent{}, err
	}

	err = l.token.WithTx(ctx, func(t Token) error {
		// Fee transfer is skipped entirely when the floor yields zero.
		if breakdown.Fee.IsPositive() {
			if err := t.Transfer(ctx, l.account, l.company, breakdown.Fee); err != nil {
				return err
			}
		}
		return t.Transfer(ctx, l.account, recipient, breakdown.Net)
	})
	if err != nil {
		return WithdrawalEvent{}, err
	}

	return WithdrawalEvent{
		Recipient: recipient,
		Net:       breakdown.Net,
		Fee:       breakdown.Fee,
		At:        l.now(),
	}, nil
}

// PayClaim pays a settled claim out of custody, fee-free: the company's cut
// was already taken when the premium came in. Owner-only.
func (l *Ledger) PayClaim(ctx context.Context, caller settlement.Address, recipient settlement.Address, amount settlement.Amount) (WithdrawalEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return WithdrawalEvent{}, settlement.ErrNotOwner
	}
	if recipient.IsZero() {
		return WithdrawalEvent{}, settlement.ErrInvalidAddress
	}
	if !amount.IsPositive() {
		return WithdrawalEvent{}, settlement.ErrInvalidAmount
	}

	if err := l.checkCustody(ctx, amount); err != nil {
		return WithdrawalEvent{}, err
	}

	err := l.token.WithTx(ctx, func(t Token) error {
		return t.Transfer(ctx, l.account, recipient, amount)
	})
	if err != nil {
		return WithdrawalEvent{}, err
	}

	return WithdrawalEvent{Recipient: recipient, Net: amount, At: l.now()}, nil
}

// =============================================================================
// COMPENSATION - Reversals for operations whose persistence failed
// =============================================================================

// RefundPurchase reverses a completed purchase: fee back out of the company
// wallet, net back out of custody. Runs under the ledger mutex so the wallet
// configuration cannot change between the purchase and its reversal legs.
func (l *Ledger) RefundPurchase(ctx context.Context, event PurchaseEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.token.WithTx(ctx, func(t Token) error {
		if event.Fee.IsPositive() {
			if err := t.Transfer(ctx, l.company, event.Buyer, event.Fee); err != nil {
				return err
			}
		}
		return t.Transfer(ctx, l.account, event.Buyer, event.Net)
	})
}

// ReclaimPayout returns a paid claim to custody.
func (l *Ledger) ReclaimPayout(ctx context.Context, holder settlement.Address, amount settlement.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.token.WithTx(ctx, func(t Token) error {
		return t.Transfer(ctx, holder, l.account, amount)
	})
}

// checkCustody rejects amounts exceeding the held balance. Called under the
// mutex so the check and the subsequent transfers cannot interleave with
// another operation's.
func (l *Ledger) checkCustody(ctx context.Context, amount settlement.Amount) error {
	held, err := l.token.BalanceOf(ctx, l.account)
	if err != nil {
		return err
	}
	if amount.GreaterThan(held) {
		return &settlement.InsufficientBalanceError{Available: held, Requested: amount}
	}
	return nil
}

// =============================================================================
// CONFIGURATION - Owner-gated mutators
// =============================================================================

// SetToken swaps the value-transfer asset. Owner-only.
func (l *Ledger) SetToken(caller settlement.Address, token TxToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return settlement.ErrNotOwner
	}
	if token == nil {
		return settlement.ErrInvalidAddress
	}
	l.token = token
	return nil
}

// SetCompanyWallet changes the fee destination. Owner-only.
func (l *Ledger) SetCompanyWallet(caller, wallet settlement.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return settlement.ErrNotOwner
	}
	l.company = wallet
	return nil
}

// TransferOwnership hands the escrow to a new owner. Owner-only; the zero
// address is rejected so the escrow can never be orphaned.
func (l *Ledger) TransferOwnership(caller, newOwner settlement.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return settlement.ErrNotOwner
	}
	if newOwner.IsZero() {
		return settlement.ErrInvalidAddress
	}
	l.owner = newOwner
	return nil
}

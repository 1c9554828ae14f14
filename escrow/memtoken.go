package escrow

import (
	"context"
	"sync"

	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// MEMORY TOKEN - In-memory Token implementation (for testing/dev)
// =============================================================================

// MemToken is an in-memory token with balances and allowances. It stands in
// for the deployed ERC-20 in tests and the dev server.
type MemToken struct {
	mu         sync.RWMutex
	balances   map[settlement.Address]settlement.Amount
	allowances map[allowanceKey]settlement.Amount
}

type allowanceKey struct {
	Owner   settlement.Address
	Spender settlement.Address
}

func NewMemToken() *MemToken {
	return &MemToken{
		balances:   make(map[settlement.Address]settlement.Amount),
		allowances: make(map[allowanceKey]settlement.Amount),
	}
}

// Mint credits an address out of thin air. Seeding only.
func (t *MemToken) Mint(addr settlement.Address, amount settlement.Amount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[addr] = t.balances[addr].Add(amount)
}

func (t *MemToken) Transfer(_ context.Context, from, to settlement.Address, amount settlement.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferLocked(from, to, amount)
}

func (t *MemToken) TransferFrom(_ context.Context, spender, from, to settlement.Address, amount settlement.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferFromLocked(spender, from, to, amount)
}

func (t *MemToken) Approve(_ context.Context, owner, spender settlement.Address, amount settlement.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{Owner: owner, Spender: spender}] = amount
	return nil
}

func (t *MemToken) Allowance(_ context.Context, owner, spender settlement.Address) (settlement.Amount, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowances[allowanceKey{Owner: owner, Spender: spender}], nil
}

func (t *MemToken) BalanceOf(_ context.Context, addr settlement.Address) (settlement.Amount, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[addr], nil
}

func (t *MemToken) transferLocked(from, to settlement.Address, amount settlement.Amount) error {
	if !amount.IsPositive() {
		return settlement.ErrInvalidAmount
	}
	if t.balances[from].LessThan(amount) {
		return settlement.ErrTransferFailed
	}
	t.balances[from] = t.balances[from].Sub(amount)
	t.balances[to] = t.balances[to].Add(amount)
	return nil
}

func (t *MemToken) transferFromLocked(spender, from, to settlement.Address, amount settlement.Amount) error {
	if !amount.IsPositive() {
		return settlement.ErrInvalidAmount
	}

	k := allowanceKey{Owner: from, Spender: spender}
	allowed := t.allowances[k]
	if allowed.LessThan(amount) {
		return &settlement.InsufficientAllowanceError{
			Owner:     from,
			Spender:   spender,
			Allowance: allowed,
			Requested: amount,
		}
	}

	if err := t.transferLocked(from, to, amount); err != nil {
		return err
	}
	t.allowances[k] = allowed.Sub(amount)
	return nil
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// WithTx executes fn against a transactional view. Balances and allowances
// are snapshotted up front and restored if fn fails.
func (t *MemToken) WithTx(ctx context.Context, fn func(Token) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.snapshot()

	if err := fn(&memTokenView{parent: t}); err != nil {
		t.restore(snapshot)
		return err
	}
	return nil
}

func (t *MemToken) snapshot() memTokenSnapshot {
	balances := make(map[settlement.Address]settlement.Amount, len(t.balances))
	for k, v := range t.balances {
		balances[k] = v
	}
	allowances := make(map[allowanceKey]settlement.Amount, len(t.allowances))
	for k, v := range t.allowances {
		allowances[k] = v
	}
	return memTokenSnapshot{balances: balances, allowances: allowances}
}

func (t *MemToken) restore(s memTokenSnapshot) {
	t.balances = s.balances
	t.allowances = s.allowances
}

type memTokenSnapshot struct {
	balances   map[settlement.Address]settlement.Amount
	allowances map[allowanceKey]settlement.Amount
}

// memTokenView operates on the parent, which already holds the lock and the
// pre-transaction snapshot.
type memTokenView struct {
	parent *MemToken
}

func (v *memTokenView) Transfer(_ context.Context, from, to settlement.Address, amount settlement.Amount) error {
	return v.parent.transferLocked(from, to, amount)
}

func (v *memTokenView) TransferFrom(_ context.Context, spender, from, to settlement.Address, amount settlement.Amount) error {
	return v.parent.transferFromLocked(spender, from, to, amount)
}

func (v *memTokenView) Approve(_ context.Context, owner, spender settlement.Address, amount settlement.Amount) error {
	v.parent.allowances[allowanceKey{Owner: owner, Spender: spender}] = amount
	return nil
}

func (v *memTokenView) Allowance(_ context.Context, owner, spender settlement.Address) (settlement.Amount, error) {
	return v.parent.allowances[allowanceKey{Owner: owner, Spender: spender}], nil
}

func (v *memTokenView) BalanceOf(_ context.Context, addr settlement.Address) (settlement.Amount, error) {
	return v.parent.balances[addr], nil
}

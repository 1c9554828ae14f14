// Package store provides in-memory settlement.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	policies  map[settlement.PolicyID]settlement.Policy
	order     []settlement.PolicyID // insertion order, for stable listings
	purchases []settlement.PurchaseRecord
	claims    []settlement.ClaimRecord
}

func NewMemory() *Memory {
	return &Memory{
		policies: make(map[settlement.PolicyID]settlement.Policy),
	}
}

// CreatePolicy persists a new policy.
func (m *Memory) CreatePolicy(_ context.Context, p settlement.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPolicyLocked(p)
}

func (m *Memory) createPolicyLocked(p settlement.Policy) error {
	if _, exists := m.policies[p.ID]; !exists {
		m.order = append(m.order, p.ID)
	}
	m.policies[p.ID] = p
	return nil
}

func (m *Memory) GetPolicy(_ context.Context, id settlement.PolicyID) (settlement.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return settlement.Policy{}, settlement.ErrPolicyNotFound
	}
	return p, nil
}

func (m *Memory) ListPolicies(_ context.Context) ([]settlement.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]settlement.Policy, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.policies[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].PurchasedAt.After(result[j].PurchasedAt)
	})
	return result, nil
}

func (m *Memory) ListActivePurchasedBefore(_ context.Context, cutoff time.Time) ([]settlement.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []settlement.Policy
	for _, id := range m.order {
		p := m.policies[id]
		if p.Status == settlement.StatusActive && p.PurchasedAt.Before(cutoff) {
			result = append(result, p)
		}
	}
	return result, nil
}

// SetPolicyStatus performs the single terminal status write.
func (m *Memory) SetPolicyStatus(_ context.Context, id settlement.PolicyID, status settlement.PolicyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setStatusLocked(id, status)
}

func (m *Memory) setStatusLocked(id settlement.PolicyID, status settlement.PolicyStatus) error {
	p, ok := m.policies[id]
	if !ok {
		return settlement.ErrPolicyNotFound
	}
	if p.IsTerminal() {
		return &settlement.PolicyStateError{PolicyID: id, Status: p.Status}
	}
	p.Status = status
	m.policies[id] = p
	return nil
}

func (m *Memory) AppendPurchase(_ context.Context, rec settlement.PurchaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = append(m.purchases, rec)
	return nil
}

func (m *Memory) AppendClaim(_ context.Context, rec settlement.ClaimRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims = append(m.claims, rec)
	return nil
}

func (m *Memory) Purchases(_ context.Context, id settlement.PolicyID) ([]settlement.PurchaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []settlement.PurchaseRecord
	for _, rec := range m.purchases {
		if id == "" || rec.PolicyID == id {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (m *Memory) Claims(_ context.Context, id settlement.PolicyID) ([]settlement.ClaimRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []settlement.ClaimRecord
	for _, rec := range m.claims {
		if id == "" || rec.PolicyID == id {
			result = append(result, rec)
		}
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against a transactional view. For the memory store this
// is simulated with a snapshot, restored if fn fails.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(settlement.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	policies := make(map[settlement.PolicyID]settlement.Policy, len(tm.policies))
	for k, v := range tm.policies {
		policies[k] = v
	}
	return memorySnapshot{
		policies:  policies,
		order:     append([]settlement.PolicyID{}, tm.order...),
		purchases: append([]settlement.PurchaseRecord{}, tm.purchases...),
		claims:    append([]settlement.ClaimRecord{}, tm.claims...),
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.policies = s.policies
	tm.order = s.order
	tm.purchases = s.purchases
	tm.claims = s.claims
}

type memorySnapshot struct {
	policies  map[settlement.PolicyID]settlement.Policy
	order     []settlement.PolicyID
	purchases []settlement.PurchaseRecord
	claims    []settlement.ClaimRecord
}

// txMemoryView writes directly to the parent, which holds the lock and the
// pre-transaction snapshot for rollback.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) CreatePolicy(_ context.Context, p settlement.Policy) error {
	return tv.parent.createPolicyLocked(p)
}

func (tv *txMemoryView) GetPolicy(_ context.Context, id settlement.PolicyID) (settlement.Policy, error) {
	p, ok := tv.parent.policies[id]
	if !ok {
		return settlement.Policy{}, settlement.ErrPolicyNotFound
	}
	return p, nil
}

func (tv *txMemoryView) ListPolicies(_ context.Context) ([]settlement.Policy, error) {
	result := make([]settlement.Policy, 0, len(tv.parent.order))
	for _, id := range tv.parent.order {
		result = append(result, tv.parent.policies[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].PurchasedAt.After(result[j].PurchasedAt)
	})
	return result, nil
}

func (tv *txMemoryView) ListActivePurchasedBefore(_ context.Context, cutoff time.Time) ([]settlement.Policy, error) {
	var result []settlement.Policy
	for _, id := range tv.parent.order {
		p := tv.parent.policies[id]
		if p.Status == settlement.StatusActive && p.PurchasedAt.Before(cutoff) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (tv *txMemoryView) SetPolicyStatus(_ context.Context, id settlement.PolicyID, status settlement.PolicyStatus) error {
	return tv.parent.setStatusLocked(id, status)
}

func (tv *txMemoryView) AppendPurchase(_ context.Context, rec settlement.PurchaseRecord) error {
	tv.parent.purchases = append(tv.parent.purchases, rec)
	return nil
}

func (tv *txMemoryView) AppendClaim(_ context.Context, rec settlement.ClaimRecord) error {
	tv.parent.claims = append(tv.parent.claims, rec)
	return nil
}

func (tv *txMemoryView) Purchases(_ context.Context, id settlement.PolicyID) ([]settlement.PurchaseRecord, error) {
	var result []settlement.PurchaseRecord
	for _, rec := range tv.parent.purchases {
		if id == "" || rec.PolicyID == id {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (tv *txMemoryView) Claims(_ context.Context, id settlement.PolicyID) ([]settlement.ClaimRecord, error) {
	var result []settlement.ClaimRecord
	for _, rec := range tv.parent.claims {
		if id == "" || rec.PolicyID == id {
			result = append(result, rec)
		}
	}
	return result, nil
}

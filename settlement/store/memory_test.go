package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/settlement/store"
)

func policy(id string, purchasedAt time.Time) settlement.Policy {
	return settlement.Policy{
		ID:          settlement.PolicyID(id),
		Holder:      "alice",
		Premium:     settlement.MustTokens("10"),
		PurchasedAt: purchasedAt,
		Status:      settlement.StatusActive,
	}
}

func TestMemory_PolicyLifecycle(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.CreatePolicy(ctx, policy("pol-1", now)))

	got, err := st.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusActive, got.Status)

	require.NoError(t, st.SetPolicyStatus(ctx, "pol-1", settlement.StatusClaimed))

	// Second terminal write is rejected
	err = st.SetPolicyStatus(ctx, "pol-1", settlement.StatusExpired)
	var stateErr *settlement.PolicyStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, settlement.StatusClaimed, stateErr.Status)
}

func TestMemory_GetPolicy_NotFound(t *testing.T) {
	st := store.NewMemory()

	_, err := st.GetPolicy(context.Background(), "missing")
	assert.ErrorIs(t, err, settlement.ErrPolicyNotFound)
}

func TestMemory_ListActivePurchasedBefore(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.CreatePolicy(ctx, policy("old", now.AddDate(0, 0, -40))))
	require.NoError(t, st.CreatePolicy(ctx, policy("fresh", now)))

	stale, err := st.ListActivePurchasedBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, settlement.PolicyID("old"), stale[0].ID)
}

func TestTxMemory_RollbackRestoresEverything(t *testing.T) {
	// GIVEN: A store with one policy
	// WHEN: A transaction adds a policy and a record, then fails
	// THEN: The store looks exactly like before the transaction

	st := store.NewTxMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	boom := errors.New("boom")

	require.NoError(t, st.CreatePolicy(ctx, policy("pol-1", now)))

	err := st.WithTx(ctx, func(tx settlement.Store) error {
		if err := tx.CreatePolicy(ctx, policy("pol-2", now)); err != nil {
			return err
		}
		if err := tx.AppendPurchase(ctx, settlement.PurchaseRecord{
			PolicyID:       "pol-2",
			Holder:         "alice",
			GrossAmount:    settlement.MustTokens("10"),
			Fee:            settlement.MustTokens("0.2"),
			Net:            settlement.MustTokens("9.8"),
			Timestamp:      now,
			TransactionRef: "ref-1",
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.GetPolicy(ctx, "pol-2")
	assert.ErrorIs(t, err, settlement.ErrPolicyNotFound)

	records, err := st.Purchases(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, records)

	policies, err := st.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Len(t, policies, 1, "pre-transaction state should survive")
}

func TestTxMemory_ListPoliciesInsideTx_NewestFirst(t *testing.T) {
	// GIVEN: Policies created out of purchase order, one inside a transaction
	// WHEN: Listing inside the transaction
	// THEN: The view orders newest first, same as the store itself

	st := store.NewTxMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.CreatePolicy(ctx, policy("older", now.AddDate(0, 0, -2))))

	err := st.WithTx(ctx, func(tx settlement.Store) error {
		if err := tx.CreatePolicy(ctx, policy("newest", now)); err != nil {
			return err
		}
		listed, err := tx.ListPolicies(ctx)
		if err != nil {
			return err
		}
		require.Len(t, listed, 2)
		assert.Equal(t, settlement.PolicyID("newest"), listed[0].ID)
		assert.Equal(t, settlement.PolicyID("older"), listed[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestTxMemory_CommitKeepsWrites(t *testing.T) {
	st := store.NewTxMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	err := st.WithTx(ctx, func(tx settlement.Store) error {
		return tx.CreatePolicy(ctx, policy("pol-1", now))
	})
	require.NoError(t, err)

	_, err = st.GetPolicy(ctx, "pol-1")
	assert.NoError(t, err)
}

package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func activePolicy(id string, purchasedAt time.Time) settlement.Policy {
	return settlement.Policy{
		ID:          settlement.PolicyID(id),
		Holder:      "alice",
		Premium:     settlement.MustTokens("10"),
		PurchasedAt: purchasedAt,
		Status:      settlement.StatusActive,
	}
}

// =============================================================================
// POLICY TESTS
// =============================================================================

func TestSQLite_Policy_RoundTrip(t *testing.T) {
	// GIVEN: A policy with a fractional premium and sub-second timestamp
	// WHEN: Writing and reading it back
	// THEN: Every field survives exactly

	st := newTestStore(t)
	ctx := context.Background()

	purchasedAt := time.Date(2026, time.March, 14, 9, 26, 53, 589793000, time.UTC)
	policy := settlement.Policy{
		ID:          "pol-1",
		Holder:      "alice",
		Premium:     settlement.MustTokens("123.456789012345678901"),
		PurchasedAt: purchasedAt,
		Status:      settlement.StatusActive,
	}
	require.NoError(t, st.CreatePolicy(ctx, policy))

	got, err := st.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)

	assert.Equal(t, policy.ID, got.ID)
	assert.Equal(t, policy.Holder, got.Holder)
	assert.True(t, got.Premium.Equal(policy.Premium), "premium should survive exactly, got %s", got.Premium)
	assert.True(t, got.PurchasedAt.Equal(purchasedAt))
	assert.Equal(t, settlement.StatusActive, got.Status)
}

func TestSQLite_GetPolicy_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetPolicy(context.Background(), "no-such-policy")
	assert.ErrorIs(t, err, settlement.ErrPolicyNotFound)
}

func TestSQLite_CreatePolicy_DuplicateIDRejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	policy := activePolicy("pol-1", time.Now().UTC())
	require.NoError(t, st.CreatePolicy(ctx, policy))

	err := st.CreatePolicy(ctx, policy)
	assert.Error(t, err, "primary key should reject a duplicate policy ID")
}

func TestSQLite_ListActivePurchasedBefore(t *testing.T) {
	// GIVEN: An old active policy, a fresh one, and an old claimed one
	// WHEN: Listing actives purchased before the cutoff
	// THEN: Only the old active policy comes back

	st := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := activePolicy("old", now.AddDate(0, 0, -40))
	fresh := activePolicy("fresh", now.AddDate(0, 0, -5))
	claimed := activePolicy("claimed", now.AddDate(0, 0, -40))

	require.NoError(t, st.CreatePolicy(ctx, old))
	require.NoError(t, st.CreatePolicy(ctx, fresh))
	require.NoError(t, st.CreatePolicy(ctx, claimed))
	require.NoError(t, st.SetPolicyStatus(ctx, claimed.ID, settlement.StatusClaimed))

	stale, err := st.ListActivePurchasedBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)

	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}

// =============================================================================
// TERMINAL STATUS TESTS
// =============================================================================

func TestSQLite_SetPolicyStatus_SingleTerminalWrite(t *testing.T) {
	// GIVEN: A policy already claimed
	// WHEN: Writing any second terminal status
	// THEN: The conditional UPDATE rejects it and reports the current status

	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreatePolicy(ctx, activePolicy("pol-1", time.Now().UTC())))
	require.NoError(t, st.SetPolicyStatus(ctx, "pol-1", settlement.StatusClaimed))

	err := st.SetPolicyStatus(ctx, "pol-1", settlement.StatusExpired)

	var stateErr *settlement.PolicyStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, settlement.StatusClaimed, stateErr.Status)

	got, err := st.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusClaimed, got.Status, "first terminal write should stand")
}

func TestSQLite_SetPolicyStatus_UnknownPolicy(t *testing.T) {
	st := newTestStore(t)

	err := st.SetPolicyStatus(context.Background(), "no-such-policy", settlement.StatusClaimed)
	assert.ErrorIs(t, err, settlement.ErrPolicyNotFound)
}

// =============================================================================
// RECORD TESTS
// =============================================================================

func TestSQLite_PurchaseRecord_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := settlement.PurchaseRecord{
		PolicyID:       "pol-1",
		Holder:         "alice",
		GrossAmount:    settlement.MustTokens("10"),
		Fee:            settlement.MustTokens("0.2"),
		Net:            settlement.MustTokens("9.8"),
		Timestamp:      time.Now().UTC().Truncate(time.Microsecond),
		TransactionRef: "ref-1",
	}
	require.NoError(t, st.AppendPurchase(ctx, rec))

	records, err := st.Purchases(ctx, "pol-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.True(t, got.GrossAmount.Equal(rec.GrossAmount))
	assert.True(t, got.Fee.Equal(rec.Fee))
	assert.True(t, got.Net.Equal(rec.Net))
	assert.True(t, got.Fee.Add(got.Net).Equal(got.GrossAmount), "stored record should reconcile")
	assert.Equal(t, "ref-1", got.TransactionRef)
}

func TestSQLite_ClaimRecord_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := settlement.ClaimRecord{
		PolicyID:       "pol-1",
		Holder:         "alice",
		ClaimAmount:    settlement.MustTokens("10.5"),
		ClaimPercent:   "105",
		DaysHeld:       400,
		TimeBonus:      "5",
		Timestamp:      time.Now().UTC().Truncate(time.Microsecond),
		TransactionRef: "ref-2",
	}
	require.NoError(t, st.AppendClaim(ctx, rec))

	records, err := st.Claims(ctx, "pol-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.True(t, got.ClaimAmount.Equal(rec.ClaimAmount))
	assert.Equal(t, "105", got.ClaimPercent)
	assert.Equal(t, 400, got.DaysHeld)
	assert.Equal(t, "5", got.TimeBonus)
}

func TestSQLite_Records_DuplicateRefRejected(t *testing.T) {
	// The transaction_ref UNIQUE constraint makes record appends idempotent
	// against accidental resubmission.

	st := newTestStore(t)
	ctx := context.Background()

	rec := settlement.PurchaseRecord{
		PolicyID:       "pol-1",
		Holder:         "alice",
		GrossAmount:    settlement.MustTokens("10"),
		Fee:            settlement.MustTokens("0.2"),
		Net:            settlement.MustTokens("9.8"),
		Timestamp:      time.Now().UTC(),
		TransactionRef: "ref-dup",
	}
	require.NoError(t, st.AppendPurchase(ctx, rec))
	assert.Error(t, st.AppendPurchase(ctx, rec))
}

func TestSQLite_Records_EmptyIDListsEverything(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i, id := range []settlement.PolicyID{"pol-1", "pol-2"} {
		rec := settlement.PurchaseRecord{
			PolicyID:       id,
			Holder:         "alice",
			GrossAmount:    settlement.MustTokens("10"),
			Fee:            settlement.MustTokens("0.2"),
			Net:            settlement.MustTokens("9.8"),
			Timestamp:      time.Now().UTC(),
			TransactionRef: string(id) + "-ref",
		}
		require.NoError(t, st.AppendPurchase(ctx, rec), "record %d", i)
	}

	all, err := st.Purchases(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := st.Purchases(ctx, "pol-1")
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestSQLite_WithTx_CommitsTogether(t *testing.T) {
	// GIVEN: A transaction writing a policy and its purchase record
	// WHEN: The function succeeds
	// THEN: Both rows are visible afterwards

	st := newTestStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx settlement.Store) error {
		if err := tx.CreatePolicy(ctx, activePolicy("pol-1", time.Now().UTC())); err != nil {
			return err
		}
		return tx.AppendPurchase(ctx, settlement.PurchaseRecord{
			PolicyID:       "pol-1",
			Holder:         "alice",
			GrossAmount:    settlement.MustTokens("10"),
			Fee:            settlement.MustTokens("0.2"),
			Net:            settlement.MustTokens("9.8"),
			Timestamp:      time.Now().UTC(),
			TransactionRef: "ref-tx",
		})
	})
	require.NoError(t, err)

	_, err = st.GetPolicy(ctx, "pol-1")
	assert.NoError(t, err)

	records, err := st.Purchases(ctx, "pol-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSQLite_WithTx_RollsBackTogether(t *testing.T) {
	// GIVEN: A transaction that writes a policy then fails
	// WHEN: The function returns an error
	// THEN: Nothing is visible afterwards

	st := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(tx settlement.Store) error {
		if err := tx.CreatePolicy(ctx, activePolicy("pol-1", time.Now().UTC())); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.GetPolicy(ctx, "pol-1")
	assert.ErrorIs(t, err, settlement.ErrPolicyNotFound)
}

func TestSQLite_WithTx_StatusWriteAndClaimRecordAtomic(t *testing.T) {
	// GIVEN: An active policy
	// WHEN: A transaction flips the status but fails appending the record
	// THEN: The policy stays active and can still be settled

	st := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	require.NoError(t, st.CreatePolicy(ctx, activePolicy("pol-1", time.Now().UTC())))

	err := st.WithTx(ctx, func(tx settlement.Store) error {
		if err := tx.SetPolicyStatus(ctx, "pol-1", settlement.StatusClaimed); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := st.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusActive, got.Status)
}

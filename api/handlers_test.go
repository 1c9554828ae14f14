package api_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/settlement-engine/api"
	"github.com/warp/settlement-engine/escrow"
	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/settlement/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	owner   = "owner"
	company = "company"
	custody = "escrow"
	alice   = "alice"
)

// newTestServer wires a full stack on an in-memory store and token, with
// alice funded and approved.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	token := escrow.NewMemToken()
	token.Mint(alice, settlement.MustTokens("1000"))

	ledger := escrow.NewLedger(owner, token, company, custody)
	require.NoError(t, token.Approve(context.Background(), alice, custody, settlement.MustTokens("1000")))

	service := escrow.NewService(ledger, store.NewTxMemory())

	handler := api.NewHandler(service)
	handler.DevToken = token

	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func purchasePolicy(t *testing.T, server *httptest.Server, amount string) api.PolicyDTO {
	t.Helper()

	resp := postJSON(t, server.URL+"/api/policies", api.PurchaseRequest{
		Buyer:  alice,
		Amount: amount,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.PolicyDTO](t, resp)
}

// =============================================================================
// POLICY ENDPOINT TESTS
// =============================================================================

func TestAPI_PurchasePolicy(t *testing.T) {
	// GIVEN: A funded, approved buyer
	// WHEN: POSTing a 10-token purchase
	// THEN: 201 with an active policy

	server := newTestServer(t)

	policy := purchasePolicy(t, server, "10")

	assert.NotEmpty(t, policy.ID)
	assert.Equal(t, alice, policy.Holder)
	assert.Equal(t, "10", policy.Premium)
	assert.Equal(t, "active", policy.Status)
}

func TestAPI_PurchasePolicy_InvalidAmount(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/policies", api.PurchaseRequest{
		Buyer:  alice,
		Amount: "not-a-number",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_PurchasePolicy_NoAllowance(t *testing.T) {
	// Bob never approved the escrow; the allowance failure surfaces as 400.

	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/policies", api.PurchaseRequest{
		Buyer:  "bob",
		Amount: "10",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetPolicy_NotFound(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/policies/no-such-policy")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListPolicies(t *testing.T) {
	server := newTestServer(t)

	purchasePolicy(t, server, "10")
	purchasePolicy(t, server, "20")

	resp, err := http.Get(server.URL + "/api/policies")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	policies := decode[[]api.PolicyDTO](t, resp)
	assert.Len(t, policies, 2)
}

// =============================================================================
// QUOTE AND CLAIM ENDPOINT TESTS
// =============================================================================

func TestAPI_QuoteClaim_ImmediateClaim(t *testing.T) {
	// GIVEN: A freshly purchased 10-token policy
	// WHEN: Quoting
	// THEN: 0.5% of premium, policy untouched

	server := newTestServer(t)
	policy := purchasePolicy(t, server, "10")

	resp, err := http.Get(server.URL + "/api/policies/" + policy.ID + "/quote")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	quote := decode[api.ClaimQuoteDTO](t, resp)
	assert.Equal(t, policy.ID, quote.PolicyID)
	assert.Equal(t, 0, quote.DaysHeld)
	assert.Equal(t, "0.5", quote.TotalPercent)
	assert.Equal(t, "0.05", quote.ClaimAmount)
}

func TestAPI_QuoteClaim_AsOfFuture(t *testing.T) {
	// The as_of query parameter quotes a what-if hold of 400 days.

	server := newTestServer(t)
	policy := purchasePolicy(t, server, "10")

	// The serialized timestamp drops sub-second precision, so shift 401 days
	// to land squarely on a 400-day hold.
	purchased := decode[api.PolicyDTO](t, mustGet(t, server.URL+"/api/policies/"+policy.ID))
	asOf, err := timeParse(purchased.PurchasedAt, 401)
	require.NoError(t, err)

	resp, getErr := http.Get(server.URL + "/api/policies/" + policy.ID + "/quote?as_of=" + asOf)
	require.NoError(t, getErr)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	quote := decode[api.ClaimQuoteDTO](t, resp)
	assert.GreaterOrEqual(t, quote.DaysHeld, 400)
	assert.Equal(t, "105", quote.TotalPercent)
	assert.Equal(t, "10.5", quote.ClaimAmount)
}

func TestAPI_QuoteClaim_BadAsOf(t *testing.T) {
	server := newTestServer(t)
	policy := purchasePolicy(t, server, "10")

	resp, err := http.Get(server.URL + "/api/policies/" + policy.ID + "/quote?as_of=yesterday")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_SettleClaim(t *testing.T) {
	// GIVEN: An active policy
	// WHEN: POSTing a claim
	// THEN: 200 with the claim record; a second claim conflicts

	server := newTestServer(t)
	policy := purchasePolicy(t, server, "10")

	resp := postJSON(t, server.URL+"/api/policies/"+policy.ID+"/claim", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	record := decode[api.ClaimRecordDTO](t, resp)
	assert.Equal(t, policy.ID, record.PolicyID)
	assert.Equal(t, "0.05", record.ClaimAmount)
	assert.NotEmpty(t, record.TransactionRef)

	// Second claim hits the terminal status
	resp = postJSON(t, server.URL+"/api/policies/"+policy.ID+"/claim", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// =============================================================================
// ESCROW ENDPOINT TESTS
// =============================================================================

func TestAPI_GetEscrow(t *testing.T) {
	server := newTestServer(t)
	purchasePolicy(t, server, "10")

	resp := mustGet(t, server.URL+"/api/escrow")
	info := decode[api.EscrowDTO](t, resp)

	assert.Equal(t, owner, info.Owner)
	assert.Equal(t, company, info.CompanyWallet)
	assert.Equal(t, "9.8", info.HeldBalance)
}

func TestAPI_Withdraw_OwnerOnly(t *testing.T) {
	server := newTestServer(t)
	purchasePolicy(t, server, "10")

	// Non-owner is forbidden
	resp := postJSON(t, server.URL+"/api/escrow/withdraw", api.WithdrawRequest{
		Caller:    alice,
		Amount:    "1",
		Recipient: alice,
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Owner succeeds
	resp = postJSON(t, server.URL+"/api/escrow/withdraw", api.WithdrawRequest{
		Caller:    owner,
		Amount:    "9.8",
		Recipient: "treasury",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	withdrawal := decode[api.WithdrawalDTO](t, resp)
	assert.Equal(t, "treasury", withdrawal.Recipient)
	assert.Equal(t, "0.049", withdrawal.Fee)
	assert.Equal(t, "9.751", withdrawal.Net)
}

func TestAPI_Withdraw_ExceedsCustody(t *testing.T) {
	server := newTestServer(t)
	purchasePolicy(t, server, "10")

	resp := postJSON(t, server.URL+"/api/escrow/withdraw", api.WithdrawRequest{
		Caller:    owner,
		Amount:    "9999",
		Recipient: "treasury",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_FeeConfig(t *testing.T) {
	server := newTestServer(t)

	resp := mustGet(t, server.URL+"/api/escrow/fees")
	config := decode[api.FeeConfigDTO](t, resp)

	assert.Equal(t, int64(200), config.PurchaseFeeBPS)
	assert.Equal(t, int64(50), config.WithdrawFeeBPS)
}

// =============================================================================
// TOKEN ENDPOINT TESTS
// =============================================================================

func TestAPI_FaucetAndBalance(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/token/faucet", api.FaucetRequest{
		Address: "carol",
		Amount:  "42",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got := decode[api.BalanceDTO](t, mustGet(t, server.URL+"/api/token/balance/carol"))
	assert.Equal(t, "42", got.Balance)
}

func TestAPI_ApproveEnablesPurchase(t *testing.T) {
	// GIVEN: Carol funded by the faucet but not yet approved
	// WHEN: She approves the escrow and purchases
	// THEN: The purchase succeeds

	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/token/faucet", api.FaucetRequest{Address: "carol", Amount: "100"})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, server.URL+"/api/token/approve", api.ApproveRequest{Owner: "carol", Amount: "100"})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, server.URL+"/api/policies", api.PurchaseRequest{Buyer: "carol", Amount: "10"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// HELPERS
// =============================================================================

func mustGet(t *testing.T, url string) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp
}

// timeParse shifts an RFC3339 timestamp by whole days, for as_of parameters.
func timeParse(rfc3339 string, addDays int) (string, error) {
	ts, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return "", err
	}
	return ts.AddDate(0, 0, addDays).UTC().Format(time.RFC3339), nil
}

/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the settlement engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Policies:
    GET    /api/policies                List all policies
    POST   /api/policies                Purchase a policy
    GET    /api/policies/{id}           Get policy details
    GET    /api/policies/{id}/quote     Preview claim payout (read-only)
    POST   /api/policies/{id}/claim     Settle the claim
    GET    /api/policies/{id}/records   Purchase + claim records

  Escrow:
    GET    /api/escrow                  Configuration + custody balance
    POST   /api/escrow/withdraw         Owner withdrawal
    POST   /api/escrow/company-wallet   Change fee destination
    POST   /api/escrow/ownership        Transfer ownership
    GET    /api/escrow/fees             Fee schedule (public constants)

  Records:
    GET    /api/records/purchases       All purchase records
    GET    /api/records/claims          All claim records

  Admin:
    POST   /api/admin/expire            Run the expiry sweep now

  Token (dev facilities, backed by the in-memory token):
    POST   /api/token/faucet            Mint demo tokens
    POST   /api/token/approve           Approve the escrow as spender
    GET    /api/token/balance/{address} Token balance

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, insufficient balance/allowance
  - 403: Owner-gated operation called by a non-owner
  - 404: Resource not found
  - 409: Policy already terminal
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/warp/settlement-engine/escrow"
	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *escrow.Service

	// DevToken enables the faucet/approve endpoints when the server runs
	// against the in-memory token. Nil in any real deployment.
	DevToken *escrow.MemToken
}

// NewHandler creates a new handler around the settlement service.
func NewHandler(service *escrow.Service) *Handler {
	return &Handler{Service: service}
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns all policies, newest first.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Service.Store().ListPolicies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPolicy returns a single policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := settlement.PolicyID(chi.URLParam(r, "id"))

	policy, err := h.Service.Store().GetPolicy(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(policy))
}

// PurchasePolicy buys a policy: fee to the company wallet, net premium into
// custody, policy + purchase record persisted.
func (h *Handler) PurchasePolicy(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	gross, err := settlement.AmountFromTokens(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	policy, err := h.Service.PurchasePolicy(r.Context(), settlement.Address(req.Buyer), gross, req.Memo)
	if err != nil {
		writeDomainError(w, "Purchase failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPolicyDTO(policy))
}

// QuoteClaim previews the claim payout. Read-only, callable any number of
// times. Accepts ?as_of=RFC3339 for historical/what-if quotes.
func (h *Handler) QuoteClaim(w http.ResponseWriter, r *http.Request) {
	id := settlement.PolicyID(chi.URLParam(r, "id"))

	var asOf time.Time
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of (use RFC3339)", err)
			return
		}
		asOf = t
	}

	quote, err := h.Service.QuoteClaim(r.Context(), id, asOf)
	if err != nil {
		writeDomainError(w, "Quote failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimQuoteDTO(quote))
}

// SettleClaim settles an active policy's claim.
func (h *Handler) SettleClaim(w http.ResponseWriter, r *http.Request) {
	id := settlement.PolicyID(chi.URLParam(r, "id"))

	record, err := h.Service.SettleClaim(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Claim failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimRecordDTO(record))
}

// GetPolicyRecords returns the purchase and claim records for one policy.
func (h *Handler) GetPolicyRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := settlement.PolicyID(chi.URLParam(r, "id"))

	purchases, err := h.Service.Store().Purchases(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load purchase records", err)
		return
	}
	claims, err := h.Service.Store().Claims(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load claim records", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"purchases": toPurchaseRecordDTOs(purchases),
		"claims":    toClaimRecordDTOs(claims),
	})
}

// =============================================================================
// ESCROW HANDLERS
// =============================================================================

// GetEscrow returns the escrow configuration and custody balance.
func (h *Handler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	ledger := h.Service.Ledger()

	held, err := ledger.Balance(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}

	writeJSON(w, http.StatusOK, EscrowDTO{
		Account:       string(ledger.Account()),
		Owner:         string(ledger.Owner()),
		CompanyWallet: string(ledger.CompanyWallet()),
		HeldBalance:   held.Tokens().String(),
	})
}

// Withdraw pays custody out to a recipient, fee to the company wallet.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := settlement.AmountFromTokens(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	event, err := h.Service.Ledger().Withdraw(r.Context(),
		settlement.Address(req.Caller), amount, settlement.Address(req.Recipient))
	if err != nil {
		writeDomainError(w, "Withdrawal failed", err)
		return
	}

	writeJSON(w, http.StatusOK, WithdrawalDTO{
		Recipient: string(event.Recipient),
		Net:       event.Net.Tokens().String(),
		Fee:       event.Fee.Tokens().String(),
		At:        event.At.UTC().Format(time.RFC3339),
	})
}

// SetCompanyWallet changes the fee destination.
func (h *Handler) SetCompanyWallet(w http.ResponseWriter, r *http.Request) {
	var req CompanyWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Service.Ledger().SetCompanyWallet(
		settlement.Address(req.Caller), settlement.Address(req.Wallet))
	if err != nil {
		writeDomainError(w, "Failed to set company wallet", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransferOwnership hands the escrow to a new owner.
func (h *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req OwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Service.Ledger().TransferOwnership(
		settlement.Address(req.Caller), settlement.Address(req.NewOwner))
	if err != nil {
		writeDomainError(w, "Failed to transfer ownership", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFeeConfig returns the fixed fee schedule.
func (h *Handler) GetFeeConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FeeConfigDTO{
		PurchaseFeeBPS: settlement.PurchaseFeeBPS,
		WithdrawFeeBPS: settlement.WithdrawFeeBPS,
	})
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// ListPurchaseRecords returns every purchase record.
func (h *Handler) ListPurchaseRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.Store().Purchases(r.Context(), "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load purchase records", err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseRecordDTOs(records))
}

// ListClaimRecords returns every claim record.
func (h *Handler) ListClaimRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.Store().Claims(r.Context(), "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load claim records", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimRecordDTOs(records))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ExpirePolicies runs the expiry sweep immediately.
func (h *Handler) ExpirePolicies(w http.ResponseWriter, r *http.Request) {
	expired, err := h.Service.ExpirePolicies(r.Context(), time.Time{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Expiry sweep failed", err)
		return
	}

	ids := make([]string, len(expired))
	for i, id := range expired {
		ids[i] = string(id)
	}
	writeJSON(w, http.StatusOK, ExpireResultDTO{Expired: ids})
}

// =============================================================================
// TOKEN HANDLERS (dev facilities)
// =============================================================================

// Faucet mints demo tokens. Only available with the in-memory token.
func (h *Handler) Faucet(w http.ResponseWriter, r *http.Request) {
	if h.DevToken == nil {
		writeError(w, http.StatusNotFound, "Faucet is not available", nil)
		return
	}

	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := settlement.AmountFromTokens(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	h.DevToken.Mint(settlement.Address(req.Address), amount)
	w.WriteHeader(http.StatusNoContent)
}

// Approve pre-approves the escrow account as spender for a buyer.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	if h.DevToken == nil {
		writeError(w, http.StatusNotFound, "Approve is not available", nil)
		return
	}

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := settlement.AmountFromTokens(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	err = h.DevToken.Approve(r.Context(),
		settlement.Address(req.Owner), h.Service.Ledger().Account(), amount)
	if err != nil {
		writeDomainError(w, "Approve failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TokenBalance returns the token balance of an address.
func (h *Handler) TokenBalance(w http.ResponseWriter, r *http.Request) {
	if h.DevToken == nil {
		writeError(w, http.StatusNotFound, "Balance lookup is not available", nil)
		return
	}

	addr := settlement.Address(chi.URLParam(r, "address"))
	balance, err := h.DevToken.BalanceOf(r.Context(), addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		Address: string(addr),
		Balance: balance.Tokens().String(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func toPurchaseRecordDTOs(records []settlement.PurchaseRecord) []PurchaseRecordDTO {
	dtos := make([]PurchaseRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toPurchaseRecordDTO(rec)
	}
	return dtos
}

func toClaimRecordDTOs(records []settlement.ClaimRecord) []ClaimRecordDTO {
	dtos := make([]ClaimRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toClaimRecordDTO(rec)
	}
	return dtos
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case settlement.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, settlement.ErrNotOwner):
		writeError(w, http.StatusForbidden, message, err)
	case errors.Is(err, settlement.ErrPolicyNotActive):
		writeError(w, http.StatusConflict, message, err)
	case settlement.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

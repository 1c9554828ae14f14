/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Amounts cross
  the wire as whole-token decimal strings ("9.8"), never floats - clients
  render them as-is and the server re-parses them into base units.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// POLICY TYPES
// =============================================================================

// PolicyDTO represents a policy in API responses.
type PolicyDTO struct {
	ID          string `json:"id"`
	Holder      string `json:"holder"`
	Premium     string `json:"premium"`
	PurchasedAt string `json:"purchased_at"`
	Status      string `json:"status"`
}

func toPolicyDTO(p settlement.Policy) PolicyDTO {
	return PolicyDTO{
		ID:          string(p.ID),
		Holder:      string(p.Holder),
		Premium:     p.Premium.Tokens().String(),
		PurchasedAt: p.PurchasedAt.UTC().Format(time.RFC3339),
		Status:      string(p.Status),
	}
}

// PurchaseRequest is the request to buy a policy.
type PurchaseRequest struct {
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"` // gross premium in whole tokens
	Memo   string `json:"memo,omitempty"`
}

// =============================================================================
// CLAIM TYPES
// =============================================================================

// ClaimQuoteDTO is the side-effect-free claim preview.
type ClaimQuoteDTO struct {
	PolicyID     string `json:"policy_id"`
	DaysHeld     int    `json:"days_held"`
	ClaimPercent string `json:"claim_percent"`
	BonusPercent string `json:"bonus_percent"`
	TotalPercent string `json:"total_percent"`
	ClaimAmount  string `json:"claim_amount"`
}

func toClaimQuoteDTO(q settlement.ClaimQuote) ClaimQuoteDTO {
	return ClaimQuoteDTO{
		PolicyID:     string(q.PolicyID),
		DaysHeld:     q.DaysHeld,
		ClaimPercent: q.ClaimPercent.String(),
		BonusPercent: q.BonusPercent.String(),
		TotalPercent: q.TotalPercent.String(),
		ClaimAmount:  q.ClaimAmount.Tokens().String(),
	}
}

// ClaimRecordDTO is a settled claim in API responses.
type ClaimRecordDTO struct {
	PolicyID       string `json:"policy_id"`
	Holder         string `json:"holder"`
	ClaimAmount    string `json:"claim_amount"`
	ClaimPercent   string `json:"claim_percent"`
	DaysHeld       int    `json:"days_held"`
	TimeBonus      string `json:"time_bonus"`
	Timestamp      string `json:"timestamp"`
	TransactionRef string `json:"transaction_ref"`
}

func toClaimRecordDTO(rec settlement.ClaimRecord) ClaimRecordDTO {
	return ClaimRecordDTO{
		PolicyID:       string(rec.PolicyID),
		Holder:         string(rec.Holder),
		ClaimAmount:    rec.ClaimAmount.Tokens().String(),
		ClaimPercent:   rec.ClaimPercent,
		DaysHeld:       rec.DaysHeld,
		TimeBonus:      rec.TimeBonus,
		Timestamp:      rec.Timestamp.UTC().Format(time.RFC3339),
		TransactionRef: rec.TransactionRef,
	}
}

// =============================================================================
// PURCHASE RECORD TYPES
// =============================================================================

// PurchaseRecordDTO is a settled purchase in API responses.
type PurchaseRecordDTO struct {
	PolicyID       string `json:"policy_id"`
	Holder         string `json:"holder"`
	GrossAmount    string `json:"gross_amount"`
	Fee            string `json:"fee"`
	Net            string `json:"net"`
	Timestamp      string `json:"timestamp"`
	TransactionRef string `json:"transaction_ref"`
}

func toPurchaseRecordDTO(rec settlement.PurchaseRecord) PurchaseRecordDTO {
	return PurchaseRecordDTO{
		PolicyID:       string(rec.PolicyID),
		Holder:         string(rec.Holder),
		GrossAmount:    rec.GrossAmount.Tokens().String(),
		Fee:            rec.Fee.Tokens().String(),
		Net:            rec.Net.Tokens().String(),
		Timestamp:      rec.Timestamp.UTC().Format(time.RFC3339),
		TransactionRef: rec.TransactionRef,
	}
}

// =============================================================================
// ESCROW TYPES
// =============================================================================

// EscrowDTO is the escrow configuration and custody balance.
type EscrowDTO struct {
	Account       string `json:"account"`
	Owner         string `json:"owner"`
	CompanyWallet string `json:"company_wallet"`
	HeldBalance   string `json:"held_balance"`
}

// WithdrawRequest is the owner's request to pay out of custody.
type WithdrawRequest struct {
	Caller    string `json:"caller"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

// WithdrawalDTO reports a completed withdrawal.
type WithdrawalDTO struct {
	Recipient string `json:"recipient"`
	Net       string `json:"net"`
	Fee       string `json:"fee"`
	At        string `json:"at"`
}

// OwnershipRequest transfers escrow ownership.
type OwnershipRequest struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"new_owner"`
}

// CompanyWalletRequest changes the fee destination.
type CompanyWalletRequest struct {
	Caller string `json:"caller"`
	Wallet string `json:"wallet"`
}

// FeeConfigDTO exposes the fixed, public fee schedule.
type FeeConfigDTO struct {
	PurchaseFeeBPS int64 `json:"purchase_fee_bps"`
	WithdrawFeeBPS int64 `json:"withdraw_fee_bps"`
}

// =============================================================================
// TOKEN TYPES (dev facilities)
// =============================================================================

// FaucetRequest mints demo tokens to an address.
type FaucetRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// ApproveRequest pre-approves the escrow to pull a buyer's tokens.
type ApproveRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

// BalanceDTO is a token balance.
type BalanceDTO struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// =============================================================================
// MISC
// =============================================================================

// ExpireResultDTO reports an expiry sweep.
type ExpireResultDTO struct {
	Expired []string `json:"expired"`
}

// ErrorResponse is the standard error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

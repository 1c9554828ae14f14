/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure in the engine is terminal and non-retryable: a failed
  purchase or withdrawal leaves state byte-for-byte unchanged. Retry
  policy belongs to the calling layer.

ERROR CATEGORIES:
  1. Input errors - non-positive amounts, future timestamps, zero address
  2. Token errors - allowance or transfer failures
  3. Authorization errors - owner-gated operations
  4. Policy errors - missing or already-terminal policies

USAGE:
  Callers match with errors.Is():

    if errors.Is(err, settlement.ErrInsufficientBalance) {
        // withdrawal exceeded custody; balance is unchanged
    }
*/
package settlement

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for non-positive amounts. A zero amount
	// is rejected, never silently treated as a zero fee.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTimestamp is returned when a policy's purchase timestamp
	// lies in the future relative to the claim evaluation time.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInsufficientAllowance is returned when a buyer has not pre-approved
	// enough tokens for the escrow to pull.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrTransferFailed is returned when a token movement fails.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrInsufficientBalance is returned when a withdrawal or payout exceeds
	// the escrow's current custody.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotOwner is returned when an owner-gated operation is called by
	// anyone else.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrInvalidAddress is returned on zero-address misuse.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrPolicyNotFound is returned when a referenced policy doesn't exist.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPolicyNotActive is returned when claiming or expiring a policy that
	// has already had its terminal status write.
	ErrPolicyNotActive = errors.New("policy is not active")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError details a custody shortage.
type InsufficientBalanceError struct {
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InsufficientAllowanceError details a missing token approval.
type InsufficientAllowanceError struct {
	Owner     Address
	Spender   Address
	Allowance Amount
	Requested Amount
}

func (e *InsufficientAllowanceError) Error() string {
	return fmt.Sprintf("insufficient allowance: %s approved %s for %s, requested %s",
		e.Owner, e.Allowance, e.Spender, e.Requested)
}

func (e *InsufficientAllowanceError) Unwrap() error { return ErrInsufficientAllowance }

// PolicyStateError details an attempted second terminal write.
type PolicyStateError struct {
	PolicyID PolicyID
	Status   PolicyStatus
}

func (e *PolicyStateError) Error() string {
	return fmt.Sprintf("policy %s is %s, expected active", e.PolicyID, e.Status)
}

func (e *PolicyStateError) Unwrap() error { return ErrPolicyNotActive }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than an engine fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrInsufficientAllowance) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrPolicyNotActive)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound)
}

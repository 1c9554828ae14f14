/*
Package settlement provides the core fee and claim computation engine.

PURPOSE:
  This package contains the pure, deterministic settlement math: basis-point
  fee splitting, the time-based claim payout curve, and the record types the
  surrounding system persists. Nothing in here touches a network, a database,
  or a clock - callers pass time in explicitly.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A token quantity in integer base units (10^18 per token)
  - Address: A wallet address (opaque string, zero value = zero address)
  - Policy: A purchased insurance policy with a single terminal transition
  - FeeBreakdown: The exact (gross, fee, net) split of a payment
  - ClaimQuote: A derived, side-effect-free claim payout preview

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal over integer base units - no floats
  2. Conservation: Fee + Net == Gross always, to the base unit
  3. Determinism: Same inputs always produce byte-identical outputs
  4. Single terminal write: A policy is claimed or expired exactly once

SEE ALSO:
  - fees.go: Basis-point fee calculator
  - claims.go: Piecewise claim payout curve
  - records.go: Persistence boundary interfaces
*/
package settlement

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Token quantity in integer base units
// =============================================================================

// TokenDecimals is the number of decimal places in the token's smallest unit.
const TokenDecimals = 18

var baseUnitScale = decimal.New(1, TokenDecimals) // 10^18

// Amount is a token quantity expressed in integer base units.
// All settlement arithmetic happens on base units so that fee splits and
// payout percentages never leak fractions of the smallest unit.
type Amount struct {
	Value decimal.Decimal
}

// NewAmount creates an Amount from raw base units.
func NewAmount(baseUnits int64) Amount {
	return Amount{Value: decimal.NewFromInt(baseUnits)}
}

// AmountFromTokens converts a whole-token decimal string ("10", "9.8") into
// base units, truncating anything below the smallest unit.
func AmountFromTokens(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d.Mul(baseUnitScale).Floor()}, nil
}

// MustTokens is AmountFromTokens for trusted literals (tests, seed data).
func MustTokens(s string) Amount {
	a, err := AmountFromTokens(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Tokens returns the amount as a whole-token decimal for display.
// Shift is an exact exponent adjustment, so even a single base unit
// survives. Settlement math must never round-trip through this.
func (a Amount) Tokens() decimal.Decimal { return a.Value.Shift(-TokenDecimals) }

func (a Amount) Zero() Amount              { return Amount{Value: decimal.Zero} }
func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }

func (a Amount) String() string { return a.Value.String() }

// =============================================================================
// ADDRESS - Wallet address
// =============================================================================

// Address identifies a wallet. The empty string is the zero address.
type Address string

// ZeroAddress is the null address; ownership can never be transferred to it.
const ZeroAddress Address = ""

func (a Address) IsZero() bool { return a == ZeroAddress }

// =============================================================================
// FEE BREAKDOWN - Exact split of a payment
// =============================================================================

// FeeBreakdown is the result of applying a basis-point fee to a gross amount.
// Invariant: Fee.Add(Net).Equal(Gross) always holds.
type FeeBreakdown struct {
	Gross Amount
	Fee   Amount
	Net   Amount
}

// =============================================================================
// POLICY - A purchased insurance policy
// =============================================================================

type PolicyID string

type PolicyStatus string

const (
	StatusActive  PolicyStatus = "active"
	StatusClaimed PolicyStatus = "claimed"
	StatusExpired PolicyStatus = "expired"
)

// Policy is created by a purchase and terminally mutated exactly once:
// active -> claimed (settled claim) or active -> expired (term elapsed).
type Policy struct {
	ID          PolicyID
	Holder      Address
	Premium     Amount // gross premium paid, fee included
	PurchasedAt time.Time
	Status      PolicyStatus
}

// IsTerminal reports whether the policy has had its one terminal write.
func (p Policy) IsTerminal() bool { return p.Status != StatusActive }

// =============================================================================
// CLAIM QUOTE - Derived payout preview
// =============================================================================

// ClaimQuote is a pure derivation from (policy, asOf). It has no persisted
// identity and computing it any number of times has no side effects.
type ClaimQuote struct {
	PolicyID     PolicyID
	DaysHeld     int
	ClaimPercent decimal.Decimal // base percentage from the schedule
	BonusPercent decimal.Decimal // time bonus past one year
	TotalPercent decimal.Decimal // min(base+bonus, cap)
	ClaimAmount  Amount
}

// =============================================================================
// TIME HELPERS
// =============================================================================

// DaysBetween returns whole days elapsed between from and to, flooring
// partial days. Negative whenever 'to' precedes 'from', even by an hour,
// so a purchase timestamp in the future is always detectable.
func DaysBetween(from, to time.Time) int {
	return int(math.Floor(to.Sub(from).Hours() / 24))
}

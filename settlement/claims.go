/*
claims.go - Time-based claim payout curve

PURPOSE:
  Maps (premium paid, days held) to a claim payout via a piecewise,
  monotonically non-decreasing percentage schedule. The curve rewards
  longer holding - an immediate flip-claim recovers almost nothing,
  a multi-year hold earns a bonus - while the 120% cap guarantees a
  policy can never return more than 1.2x its premium.

SCHEDULE (first match wins):
  days <= 1        base 0.5%
  days 2..7        base 5% + 0.5% per day
  days 8..30       base 10% + 1% per week held
  days 31..90      base 25% + 2% per month held
  days 91..180     base 50% + 3% per month past the third
  days 181..365    base 75% + 2% per month past the sixth
  days > 365       base 100%, bonus 5% per full year held

  weeks  = floor(days / 7)
  months = floor(days / 30)
  years  = floor(days / 365)

  total = min(base + bonus, 120%)
  claim = floor(premium * total / 100)

DETERMINISM:
  Pure function of its inputs. No clock, no randomness. Callers derive
  daysHeld from timestamps and pass it in; QuotePolicy does that for them.
*/
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLAIM CURVE
// =============================================================================

// MaxClaimPercent caps the total payout percentage at 120% of premium.
var MaxClaimPercent = decimal.NewFromInt(120)

var oneHundred = decimal.NewFromInt(100)

// ClaimCurve computes claim payout quotes. Stateless; the zero value is usable.
type ClaimCurve struct{}

// Quote computes the claim payout for a premium held the given number of days.
// Fails with ErrInvalidTimestamp when daysHeld is negative and with
// ErrInvalidAmount when the premium is not strictly positive.
func (ClaimCurve) Quote(premium Amount, daysHeld int) (ClaimQuote, error) {
	if daysHeld < 0 {
		return ClaimQuote{}, ErrInvalidTimestamp
	}
	if !premium.IsPositive() {
		return ClaimQuote{}, ErrInvalidAmount
	}

	base, bonus := schedulePercent(daysHeld)

	total := base.Add(bonus)
	if total.GreaterThan(MaxClaimPercent) {
		total = MaxClaimPercent
	}

	claim := Amount{Value: premium.Value.Mul(total).Div(oneHundred).Floor()}

	return ClaimQuote{
		DaysHeld:     daysHeld,
		ClaimPercent: base,
		BonusPercent: bonus,
		TotalPercent: total,
		ClaimAmount:  claim,
	}, nil
}

// QuotePolicy derives daysHeld from the policy's purchase timestamp and
// quotes against its premium. Read-only; callable any number of times.
func (c ClaimCurve) QuotePolicy(policy Policy, asOf time.Time) (ClaimQuote, error) {
	quote, err := c.Quote(policy.Premium, DaysBetween(policy.PurchasedAt, asOf))
	if err != nil {
		return ClaimQuote{}, err
	}
	quote.PolicyID = policy.ID
	return quote, nil
}

// schedulePercent evaluates the piecewise schedule, first match wins.
// Returns (base, bonus); bonus is zero for anything held a year or less.
func schedulePercent(days int) (base, bonus decimal.Decimal) {
	weeks := int64(days / 7)
	months := int64(days / 30)
	years := int64(days / 365)

	switch {
	case days <= 1:
		return decimal.NewFromFloat(0.5), decimal.Zero

	case days <= 7:
		// 5% + 0.5% per day
		return decimal.NewFromInt(5).Add(
			decimal.NewFromFloat(0.5).Mul(decimal.NewFromInt(int64(days)))), decimal.Zero

	case days <= 30:
		// 10% + 1% per week
		return decimal.NewFromInt(10 + weeks), decimal.Zero

	case days <= 90:
		// 25% + 2% per month
		return decimal.NewFromInt(25 + 2*months), decimal.Zero

	case days <= 180:
		// 50% + 3% per month past the third
		return decimal.NewFromInt(50 + 3*(months-3)), decimal.Zero

	case days <= 365:
		// 75% + 2% per month past the sixth
		return decimal.NewFromInt(75 + 2*(months-6)), decimal.Zero

	default:
		return oneHundred, decimal.NewFromInt(5 * years)
	}
}

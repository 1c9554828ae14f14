/*
fees.go - Basis-point fee calculator

PURPOSE:
  Converts a gross amount into an exact (fee, net) pair for policy
  purchases and escrow withdrawals. This is the single source of truth
  for fee math - both the escrow and any off-chain quoting read the
  same constants, so they can never disagree.

NUMERIC SEMANTICS:
  fee = floor(gross * bps / 10000)
  net = gross - fee

  Division is floored, never rounded up, which guarantees the escrow
  never pays out more than it holds. The pair always reconciles:
  fee + net == gross exactly, with no rounding leakage.

FEE SCHEDULE:
  Purchase:   200 bps (2.00%)
  Withdrawal:  50 bps (0.50%)
*/
package settlement

import "github.com/shopspring/decimal"

// =============================================================================
// FEE CONSTANTS - Fixed, public configuration
// =============================================================================

// Fee rates in basis points (1 bp = 0.01%).
const (
	PurchaseFeeBPS int64 = 200 // 2.00% taken on policy purchase
	WithdrawFeeBPS int64 = 50  // 0.50% taken on escrow withdrawal
)

var tenThousand = decimal.NewFromInt(10000)

// =============================================================================
// FEE CALCULATOR
// =============================================================================

// FeeCalculator computes fee splits. It is stateless; the zero value is usable.
type FeeCalculator struct{}

// PurchaseFee splits a gross purchase amount at the purchase rate.
// Fails with ErrInvalidAmount when gross is not strictly positive.
func (FeeCalculator) PurchaseFee(gross Amount) (FeeBreakdown, error) {
	return split(gross, PurchaseFeeBPS)
}

// WithdrawFee splits a gross withdrawal amount at the withdrawal rate.
// Fails with ErrInvalidAmount when gross is not strictly positive.
func (FeeCalculator) WithdrawFee(gross Amount) (FeeBreakdown, error) {
	return split(gross, WithdrawFeeBPS)
}

func split(gross Amount, bps int64) (FeeBreakdown, error) {
	if !gross.IsPositive() {
		return FeeBreakdown{}, ErrInvalidAmount
	}

	fee := Amount{Value: gross.Value.Mul(decimal.NewFromInt(bps)).Div(tenThousand).Floor()}
	net := gross.Sub(fee)

	return FeeBreakdown{Gross: gross, Fee: fee, Net: net}, nil
}

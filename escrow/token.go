/*
Package escrow holds net policy premiums and moves money between buyer,
custody, and the company wallet.

PURPOSE:
  This package reproduces the on-chain escrow contract's semantics off-chain:
  purchase pulls fee + net from the buyer, withdrawal pays net to a recipient
  and fee to the company, and every operation is all-or-nothing. The token
  the escrow moves is an injected capability, not a concrete asset - any
  ERC-20-shaped implementation satisfies it.

KEY CONCEPTS IN THIS FILE (token.go):
  - Token: The transfer capability set the escrow consumes
  - TxToken: Token with all-or-nothing multi-transfer support
  - Senders are explicit: there is no ambient "caller" off-chain, so every
    move names the account it debits and TransferFrom names its spender

SEE ALSO:
  - memtoken.go: In-memory Token for tests and the dev server
  - ledger.go: The escrow itself
*/
package escrow

import (
	"context"

	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// TOKEN - Value-transfer capability consumed by the escrow
// =============================================================================

// Token is the ERC-20-shaped interface the escrow depends on.
type Token interface {
	// Transfer moves amount from 'from' to 'to'.
	// Fails with ErrTransferFailed when 'from' lacks the balance.
	Transfer(ctx context.Context, from, to settlement.Address, amount settlement.Amount) error

	// TransferFrom moves amount from 'from' to 'to' on behalf of 'spender',
	// consuming allowance. Fails with ErrInsufficientAllowance when the
	// spender's approval is too small, ErrTransferFailed on missing balance.
	TransferFrom(ctx context.Context, spender, from, to settlement.Address, amount settlement.Amount) error

	// Approve lets 'spender' move up to 'amount' of 'owner's tokens.
	Approve(ctx context.Context, owner, spender settlement.Address, amount settlement.Amount) error

	// Allowance returns how much 'spender' may still move for 'owner'.
	Allowance(ctx context.Context, owner, spender settlement.Address) (settlement.Amount, error)

	// BalanceOf returns the balance of an address.
	BalanceOf(ctx context.Context, addr settlement.Address) (settlement.Amount, error)
}

// TxToken extends Token with atomic multi-transfer sequences. The escrow
// requires this: a purchase is two transfers that must both land or neither.
type TxToken interface {
	Token

	// WithTx executes fn against a transactional view. If fn returns an
	// error every transfer made inside it is rolled back.
	WithTx(ctx context.Context, fn func(Token) error) error
}

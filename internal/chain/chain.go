package chain

import (
	"context"
	"math/big"
)

// Receipt is the inclusion outcome of a submitted transaction.
type Receipt struct {
	TxHash  string
	Success bool
}

// TxHandle is a submitted transaction awaiting inclusion. Await has no
// timeout of its own; callers bound it with ctx and surface "still pending"
// on cancellation instead of failing spuriously.
type TxHandle interface {
	Hash() string
	Await(ctx context.Context) (Receipt, error)
}

// Reader is the read-only on-chain boundary.
type Reader interface {
	CheckAccess(ctx context.Context, account string) (bool, error)
	BalanceOf(ctx context.Context, account string) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender string) (*big.Int, error)
	NativeBalance(ctx context.Context, account string) (*big.Int, error)
}

// Writer is the transaction-submitting on-chain boundary.
type Writer interface {
	Approve(ctx context.Context, spender string, amount *big.Int) (TxHandle, error)
	Purchase(ctx context.Context) (TxHandle, error)
	Stake(ctx context.Context, amount *big.Int) (TxHandle, error)
	Unstake(ctx context.Context, amount *big.Int) (TxHandle, error)
}

package wallet

import (
	"context"
	"fmt"

	"github.com/gustavo/advisor-cli/internal/registry"
)

// EventKind identifies a provider-side session change.
type EventKind int

const (
	EventAccountsChanged EventKind = iota
	EventChainChanged
)

// Event is a notification pushed by a Provider. AccountsChanged carries the
// new active account list (possibly empty); ChainChanged carries the new
// chain id.
type Event struct {
	Kind     EventKind
	Accounts []string
	ChainID  int64
}

// Provider is the wallet boundary. Implementations are treated as
// adversarial: every call may reject, hang, or return stale data, so all
// blocking calls take a context.
type Provider interface {
	// RequestAccounts asks for account access and may prompt the user.
	RequestAccounts(ctx context.Context) ([]string, error)
	// Accounts returns already-granted accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (int64, error)
	// SwitchChain moves the provider to chainID. A chain the provider has
	// never seen is reported with UnknownChainError so the caller can
	// register it and retry.
	SwitchChain(ctx context.Context, chainID int64) error
	AddChain(ctx context.Context, params registry.NetworkParams) error
	Events() <-chan Event
	Close() error
}

// UnknownChainError reports a switch request for a chain the provider has
// no configuration for.
type UnknownChainError struct {
	ChainID int64
}

func (e *UnknownChainError) Error() string {
	return fmt.Sprintf("chain id %d is not known to the wallet provider", e.ChainID)
}

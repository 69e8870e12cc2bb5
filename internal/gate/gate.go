package gate

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/gustavo/advisor-cli/internal/chain"
	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/model"
)

// State is the lifecycle of one entitlement record.
type State string

const (
	StateLocked      State = "locked"
	StateChecking    State = "checking"
	StateAuthorizing State = "authorizing"
	StatePurchasing  State = "purchasing"
	StateUnlocked    State = "unlocked"
	StateFailed      State = "failed"
)

// Epochs reports the current session epoch. An unlock sequence captures the
// epoch at its start and discards its outcome if the session moved on.
type Epochs interface {
	Epoch() uint64
}

type record struct {
	state      State
	lastErr    error
	txApprove  string
	txPurchase string

	// done is non-nil while an unlock sequence is in flight. Concurrent
	// callers for the same (account, featureKey) wait on it instead of
	// starting a second transaction sequence.
	done chan struct{}
}

// Gate turns "not entitled" into "entitled" through an authorize-then-
// purchase on-chain sequence, reconciling against contract state rather
// than trusting transaction inclusion.
type Gate struct {
	mu      sync.Mutex
	records map[string]*record

	reader  chain.Reader
	writer  chain.Writer
	epochs  Epochs
	spender string
	fee     *big.Int
}

func New(reader chain.Reader, writer chain.Writer, epochs Epochs, spender string, fee *big.Int) *Gate {
	return &Gate{
		records: make(map[string]*record),
		reader:  reader,
		writer:  writer,
		epochs:  epochs,
		spender: spender,
		fee:     fee,
	}
}

func recordKey(account, featureKey string) string {
	return account + "|" + featureKey
}

// EnsureUnlocked drives the entitlement record for (account, featureKey) to
// Unlocked, or reports why it could not. Re-invoking after Unlocked is a
// no-op with zero on-chain calls.
func (g *Gate) EnsureUnlocked(ctx context.Context, account, featureKey string) (model.EntitlementView, error) {
	key := recordKey(account, featureKey)

	g.mu.Lock()
	rec, ok := g.records[key]
	if !ok {
		rec = &record{state: StateLocked}
		g.records[key] = rec
	}
	if rec.state == StateUnlocked {
		view := g.viewLocked(rec, account, featureKey)
		g.mu.Unlock()
		return view, nil
	}
	if rec.done != nil {
		// Attach to the in-flight attempt.
		done := rec.done
		g.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			// The sequence keeps running; this caller just stops waiting for
			// it, so the outcome is unknown rather than failed.
			return model.EntitlementView{}, clierr.Wrap(clierr.CodeUnconfirmed, "cancelled while waiting for in-flight unlock", ctx.Err())
		}
		g.mu.Lock()
		view := g.viewLocked(rec, account, featureKey)
		err := rec.lastErr
		g.mu.Unlock()
		return view, err
	}
	rec.done = make(chan struct{})
	rec.state = StateChecking
	rec.lastErr = nil
	startEpoch := g.epochs.Epoch()
	g.mu.Unlock()

	finalState, err := g.runSequence(ctx, rec, account)

	g.mu.Lock()
	rec.state = finalState
	rec.lastErr = err
	close(rec.done)
	rec.done = nil
	if g.epochs.Epoch() != startEpoch {
		// The session changed mid-sequence. The outcome still resolves the
		// waiters attached to this record, but it must not survive into the
		// new session's record set.
		if g.records[key] == rec {
			delete(g.records, key)
		}
	}
	view := g.viewLocked(rec, account, featureKey)
	g.mu.Unlock()
	return view, err
}

// runSequence executes check, authorize, purchase, and the confirming
// re-check. It returns the terminal state for the record alongside the
// error surfaced to the caller.
func (g *Gate) runSequence(ctx context.Context, rec *record, account string) (State, error) {
	granted, err := g.reader.CheckAccess(ctx, account)
	if err != nil {
		return StateFailed, clierr.Wrap(clierr.CodeProviderUnavailable, "read entitlement", err)
	}
	if granted {
		return StateUnlocked, nil
	}

	g.setState(rec, StateAuthorizing)
	balance, err := g.reader.BalanceOf(ctx, account)
	if err != nil {
		return StateFailed, clierr.Wrap(clierr.CodeProviderUnavailable, "read token balance", err)
	}
	if balance.Cmp(g.fee) < 0 {
		return StateLocked, clierr.New(clierr.CodeInsufficientFunds,
			fmt.Sprintf("token balance %s is below the required fee %s; no transaction submitted", balance, g.fee))
	}
	allowance, err := g.reader.Allowance(ctx, account, g.spender)
	if err != nil {
		return StateFailed, clierr.Wrap(clierr.CodeProviderUnavailable, "read allowance", err)
	}
	if allowance.Cmp(g.fee) < 0 {
		handle, err := g.writer.Approve(ctx, g.spender, g.fee)
		if err != nil {
			return StateLocked, clierr.Wrap(clierr.CodeOnChainRejected, "submit authorization", err)
		}
		g.setApproveTx(rec, handle.Hash())
		receipt, err := handle.Await(ctx)
		if err != nil {
			return StateFailed, err
		}
		if !receipt.Success {
			return StateLocked, clierr.New(clierr.CodeOnChainRejected, "authorization transaction reverted on-chain")
		}
	}

	g.setState(rec, StatePurchasing)
	handle, err := g.writer.Purchase(ctx)
	if err != nil {
		return StateLocked, clierr.Wrap(clierr.CodeOnChainRejected, "submit purchase", err)
	}
	g.setPurchaseTx(rec, handle.Hash())
	receipt, err := handle.Await(ctx)
	if err != nil {
		return StateFailed, err
	}
	if !receipt.Success {
		return StateLocked, clierr.New(clierr.CodeOnChainRejected, "purchase transaction reverted on-chain")
	}

	// The purchase landed, but inclusion alone is never treated as proof of
	// entitlement. Only a positive read of contract state unlocks.
	granted, err = g.reader.CheckAccess(ctx, account)
	if err != nil {
		return StateFailed, clierr.Wrap(clierr.CodeUnconfirmed, "confirm entitlement after purchase", err)
	}
	if !granted {
		return StateFailed, clierr.New(clierr.CodeUnconfirmed,
			"purchase confirmed on-chain but the entitlement check still reports no access")
	}
	return StateUnlocked, nil
}

// Check reports whether the account currently holds access, consulting the
// record fast path before falling back to a contract read. A positive read
// is recorded so a later EnsureUnlocked takes the zero-call path. Check
// never submits a transaction.
func (g *Gate) Check(ctx context.Context, account, featureKey string) (bool, error) {
	key := recordKey(account, featureKey)

	g.mu.Lock()
	rec, ok := g.records[key]
	if ok && rec.state == StateUnlocked {
		g.mu.Unlock()
		return true, nil
	}
	inFlight := ok && rec.done != nil
	startEpoch := g.epochs.Epoch()
	g.mu.Unlock()

	granted, err := g.reader.CheckAccess(ctx, account)
	if err != nil {
		return false, clierr.Wrap(clierr.CodeProviderUnavailable, "read entitlement", err)
	}
	if inFlight || g.epochs.Epoch() != startEpoch {
		return granted, nil
	}

	g.mu.Lock()
	rec, ok = g.records[key]
	if !ok {
		rec = &record{state: StateLocked}
		g.records[key] = rec
	}
	if rec.done == nil {
		if granted {
			rec.state = StateUnlocked
		} else if rec.state == StateUnlocked {
			rec.state = StateLocked
		}
	}
	g.mu.Unlock()
	return granted, nil
}

// IsUnlocked reports the record state without any on-chain call.
func (g *Gate) IsUnlocked(account, featureKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[recordKey(account, featureKey)]
	return ok && rec.state == StateUnlocked
}

// Status returns the current view of a record, creating nothing.
func (g *Gate) Status(account, featureKey string) model.EntitlementView {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[recordKey(account, featureKey)]
	if !ok {
		return model.EntitlementView{FeatureKey: featureKey, Account: account, State: string(StateLocked)}
	}
	return g.viewLocked(rec, account, featureKey)
}

// InvalidateAccount drops every record for the given account. Implements
// the session invalidation boundary.
func (g *Gate) InvalidateAccount(account string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	prefix := account + "|"
	for key := range g.records {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(g.records, key)
		}
	}
}

// InvalidateAll drops every record.
func (g *Gate) InvalidateAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = make(map[string]*record)
}

func (g *Gate) setState(rec *record, s State) {
	g.mu.Lock()
	rec.state = s
	g.mu.Unlock()
}

func (g *Gate) setApproveTx(rec *record, hash string) {
	g.mu.Lock()
	rec.txApprove = hash
	g.mu.Unlock()
}

func (g *Gate) setPurchaseTx(rec *record, hash string) {
	g.mu.Lock()
	rec.txPurchase = hash
	g.mu.Unlock()
}

func (g *Gate) viewLocked(rec *record, account, featureKey string) model.EntitlementView {
	view := model.EntitlementView{
		FeatureKey: featureKey,
		Account:    account,
		State:      string(rec.state),
		TxApprove:  rec.txApprove,
		TxPurchase: rec.txPurchase,
	}
	if rec.lastErr != nil {
		view.Error = rec.lastErr.Error()
	}
	return view
}

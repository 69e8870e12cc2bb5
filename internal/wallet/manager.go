package wallet

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/id"
	"github.com/gustavo/advisor-cli/internal/model"
	"github.com/gustavo/advisor-cli/internal/registry"
	"github.com/gustavo/advisor-cli/internal/state"
)

// SessionState is the connection lifecycle of the single process-wide session.
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
)

// Session is a point-in-time snapshot of the wallet session. Epoch increases
// on every account or chain change; holders of on-chain results compare it
// against the current epoch before applying them.
type Session struct {
	State   SessionState
	Account string
	ChainID int64
	Resumed bool
	Epoch   uint64
}

// Invalidator is notified when a session change makes derived state (cached
// balances, entitlement records) untrustworthy.
type Invalidator interface {
	InvalidateAccount(account string)
	InvalidateAll()
}

// Manager owns the wallet session: connect and disconnect, silent
// reconnection from persisted state, network switching, and the account and
// chain change notifications that invalidate dependent state.
type Manager struct {
	mu       sync.Mutex
	provider Provider
	store    *state.Store
	session  Session

	invalidators []Invalidator
}

func NewManager(provider Provider, store *state.Store) *Manager {
	return &Manager{
		provider: provider,
		store:    store,
		session:  Session{State: StateDisconnected},
	}
}

// AddInvalidator registers a consumer of session-change notifications.
func (m *Manager) AddInvalidator(inv Invalidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidators = append(m.invalidators, inv)
}

// Connect requests account access from the provider and establishes the
// session. The connected account is persisted so the next invocation can
// resume silently. Persisting is best effort: a failed write is reported as
// a warning, never as a connect failure.
func (m *Manager) Connect(ctx context.Context) (Session, []string, error) {
	m.mu.Lock()
	m.session.State = StateConnecting
	m.mu.Unlock()

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		m.setDisconnected()
		return m.Session(), nil, err
	}
	if len(accounts) == 0 {
		m.setDisconnected()
		return m.Session(), nil, clierr.New(clierr.CodeUserDeclined, "wallet returned no accounts")
	}
	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		m.setDisconnected()
		return m.Session(), nil, clierr.Wrap(clierr.CodeProviderUnavailable, "read wallet chain id", err)
	}

	m.mu.Lock()
	m.session = Session{
		State:   StateConnected,
		Account: accounts[0],
		ChainID: chainID,
		Epoch:   m.session.Epoch + 1,
	}
	snapshot := m.session
	m.mu.Unlock()

	var warnings []string
	if m.store != nil {
		// Connecting with a different account than the persisted one is an
		// account switch: state derived for the prior account must not leak
		// into the new session.
		if raw, ok, err := m.store.Get(state.KeyLastAccount); err == nil && ok {
			prior := strings.TrimSpace(string(raw))
			if prior != "" && !strings.EqualFold(prior, snapshot.Account) {
				m.invalidateAccount(prior)
			}
		}
		if err := m.store.Put(state.KeyLastAccount, []byte(snapshot.Account)); err != nil {
			warnings = append(warnings, "failed to persist account for reconnection: "+err.Error())
		}
		if err := m.store.Put(state.KeyLastChainID, []byte(strconv.FormatInt(chainID, 10))); err != nil {
			warnings = append(warnings, "failed to persist chain id: "+err.Error())
		}
	}
	return snapshot, warnings, nil
}

// Resume attempts silent reconnection from the persisted account. Any
// failure along the way (no persisted account, provider unreachable, account
// no longer granted) degrades to a disconnected session without error.
func (m *Manager) Resume(ctx context.Context) Session {
	if m.store == nil {
		return m.Session()
	}
	raw, ok, err := m.store.Get(state.KeyLastAccount)
	if err != nil || !ok || len(raw) == 0 {
		return m.Session()
	}
	persisted := strings.TrimSpace(string(raw))

	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		return m.Session()
	}
	granted := false
	for _, account := range accounts {
		if strings.EqualFold(account, persisted) {
			granted = true
			break
		}
	}
	if !granted {
		return m.Session()
	}
	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		return m.Session()
	}

	m.mu.Lock()
	m.session = Session{
		State:   StateConnected,
		Account: persisted,
		ChainID: chainID,
		Resumed: true,
		Epoch:   m.session.Epoch + 1,
	}
	snapshot := m.session
	m.mu.Unlock()
	return snapshot
}

// Disconnect tears the session down and clears persisted reconnection
// state. Safe to call when already disconnected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	prior := m.session
	m.session = Session{State: StateDisconnected, Epoch: prior.Epoch + 1}
	invalidators := append([]Invalidator(nil), m.invalidators...)
	m.mu.Unlock()

	for _, inv := range invalidators {
		inv.InvalidateAll()
	}
	if m.store == nil {
		return nil
	}
	if err := m.store.Delete(state.KeyLastAccount); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "clear persisted account", err)
	}
	if err := m.store.Delete(state.KeyLastChainID); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "clear persisted chain id", err)
	}
	return nil
}

// EnsureNetwork switches the provider to the target chain, registering the
// network first when the provider does not know it. A successful switch is a
// chain change: all derived state is invalidated.
func (m *Manager) EnsureNetwork(ctx context.Context, target int64) error {
	current, err := m.provider.ChainID(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeProviderUnavailable, "read wallet chain id", err)
	}
	if current == target {
		return nil
	}

	err = m.provider.SwitchChain(ctx, target)
	var unknown *UnknownChainError
	if errors.As(err, &unknown) {
		params, ok := registry.Network(target)
		if !ok {
			return clierr.New(clierr.CodeNetworkMismatch,
				"target chain is unknown to both the wallet and the network registry")
		}
		if addErr := m.provider.AddChain(ctx, params); addErr != nil {
			return clierr.Wrap(clierr.CodeNetworkMismatch, "register network with wallet", addErr)
		}
		err = m.provider.SwitchChain(ctx, target)
	}
	if err != nil {
		return clierr.Wrap(clierr.CodeNetworkMismatch, "switch wallet network", err)
	}

	m.applyChainChange(target)
	return nil
}

// HandleEvent applies one provider notification to the session.
func (m *Manager) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			_ = m.Disconnect()
			return
		}
		m.applyAccountChange(ev.Accounts[0])
	case EventChainChanged:
		m.applyChainChange(ev.ChainID)
	}
}

// Watch processes provider events until ctx is cancelled or the provider's
// event channel closes.
func (m *Manager) Watch(ctx context.Context) {
	events := m.provider.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.HandleEvent(ev)
		}
	}
}

func (m *Manager) applyAccountChange(account string) {
	m.mu.Lock()
	prior := m.session.Account
	if strings.EqualFold(prior, account) {
		m.mu.Unlock()
		return
	}
	m.session.Account = account
	m.session.Resumed = false
	m.session.Epoch++
	m.mu.Unlock()

	m.invalidateAccount(prior)
	if m.store != nil {
		_ = m.store.Put(state.KeyLastAccount, []byte(account))
	}
}

func (m *Manager) invalidateAccount(prior string) {
	m.mu.Lock()
	invalidators := append([]Invalidator(nil), m.invalidators...)
	m.mu.Unlock()

	for _, inv := range invalidators {
		inv.InvalidateAccount(prior)
	}
}

// applyChainChange is a full reload: a chain change invalidates every cached
// and in-flight on-chain assumption, so nothing is repaired incrementally.
func (m *Manager) applyChainChange(chainID int64) {
	m.mu.Lock()
	if m.session.ChainID == chainID {
		m.mu.Unlock()
		return
	}
	m.session.ChainID = chainID
	m.session.Epoch++
	invalidators := append([]Invalidator(nil), m.invalidators...)
	m.mu.Unlock()

	for _, inv := range invalidators {
		inv.InvalidateAll()
	}
	if m.store != nil {
		_ = m.store.Put(state.KeyLastChainID, []byte(strconv.FormatInt(chainID, 10)))
	}
}

func (m *Manager) setDisconnected() {
	m.mu.Lock()
	m.session.State = StateDisconnected
	m.session.Account = ""
	m.mu.Unlock()
}

// Session returns the current snapshot.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Epoch returns the current session epoch.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Epoch
}

// View renders the session for envelope output.
func (m *Manager) View() model.SessionView {
	s := m.Session()
	view := model.SessionView{State: string(s.State), Resumed: s.Resumed}
	if s.State == StateConnected {
		view.Account = s.Account
		view.ChainID = id.ChainRef(s.ChainID)
		if params, ok := registry.Network(s.ChainID); ok {
			view.NetworkName = params.Name
		}
	}
	return view
}

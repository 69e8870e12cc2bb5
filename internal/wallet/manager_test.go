package wallet

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/registry"
	"github.com/gustavo/advisor-cli/internal/state"
)

type fakeProvider struct {
	accounts      []string
	requestErr    error
	chainID       int64
	knownChains   map[int64]bool
	addedChains   []int64
	switchCalls   int
	failAllSwitch bool
	events        chan Event
}

func newFakeProvider(accounts []string, chainID int64) *fakeProvider {
	return &fakeProvider{
		accounts:    accounts,
		chainID:     chainID,
		knownChains: map[int64]bool{chainID: true},
		events:      make(chan Event, 4),
	}
}

func (p *fakeProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	if p.requestErr != nil {
		return nil, p.requestErr
	}
	return p.accounts, nil
}

func (p *fakeProvider) Accounts(ctx context.Context) ([]string, error) {
	return p.accounts, nil
}

func (p *fakeProvider) ChainID(ctx context.Context) (int64, error) {
	return p.chainID, nil
}

func (p *fakeProvider) SwitchChain(ctx context.Context, chainID int64) error {
	p.switchCalls++
	if p.failAllSwitch {
		return errors.New("switch rejected")
	}
	if !p.knownChains[chainID] {
		return &UnknownChainError{ChainID: chainID}
	}
	p.chainID = chainID
	return nil
}

func (p *fakeProvider) AddChain(ctx context.Context, params registry.NetworkParams) error {
	p.knownChains[params.ChainID] = true
	p.addedChains = append(p.addedChains, params.ChainID)
	return nil
}

func (p *fakeProvider) Events() <-chan Event { return p.events }
func (p *fakeProvider) Close() error         { return nil }

type recordingInvalidator struct {
	accountCalls []string
	allCalls     int
}

func (r *recordingInvalidator) InvalidateAccount(account string) {
	r.accountCalls = append(r.accountCalls, account)
}

func (r *recordingInvalidator) InvalidateAll() { r.allCalls++ }

func openTestStore(t *testing.T) *state.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := state.Open(filepath.Join(dir, "state.db"), filepath.Join(dir, "state.lock"))
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestConnectEstablishesSessionAndPersistsAccount(t *testing.T) {
	store := openTestStore(t)
	provider := newFakeProvider([]string{"0xAAA"}, 1320)
	m := NewManager(provider, store)

	session, warnings, err := m.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if session.State != StateConnected || session.Account != "0xAAA" || session.ChainID != 1320 {
		t.Fatalf("unexpected session: %+v", session)
	}

	raw, ok, err := store.Get(state.KeyLastAccount)
	if err != nil || !ok || string(raw) != "0xAAA" {
		t.Fatalf("persisted account = %q ok=%v err=%v", raw, ok, err)
	}
}

func TestConnectWithDifferentAccountInvalidatesPriorAccount(t *testing.T) {
	store := openTestStore(t)
	if err := store.Put(state.KeyLastAccount, []byte("0xAAA")); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	provider := newFakeProvider([]string{"0xBBB"}, 1320)
	m := NewManager(provider, store)
	rec := &recordingInvalidator{}
	m.AddInvalidator(rec)

	if _, _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if len(rec.accountCalls) != 1 || rec.accountCalls[0] != "0xAAA" {
		t.Fatalf("invalidated accounts = %v, want [0xAAA]", rec.accountCalls)
	}
	if raw, ok, _ := store.Get(state.KeyLastAccount); !ok || string(raw) != "0xBBB" {
		t.Fatalf("persisted account = %q, want 0xBBB", raw)
	}
}

func TestConnectWithSameAccountDoesNotInvalidate(t *testing.T) {
	store := openTestStore(t)
	if err := store.Put(state.KeyLastAccount, []byte("0xaaa")); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	provider := newFakeProvider([]string{"0xAAA"}, 1320)
	m := NewManager(provider, store)
	rec := &recordingInvalidator{}
	m.AddInvalidator(rec)

	if _, _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if len(rec.accountCalls) != 0 || rec.allCalls != 0 {
		t.Fatalf("reconnecting the same account invalidated state: accounts=%v all=%d",
			rec.accountCalls, rec.allCalls)
	}
}

func TestConnectDeclinedReturnsToDisconnected(t *testing.T) {
	provider := newFakeProvider(nil, 1320)
	provider.requestErr = clierr.New(clierr.CodeUserDeclined, "request rejected")
	m := NewManager(provider, nil)

	_, _, err := m.Connect(context.Background())
	if !clierr.Is(err, clierr.CodeUserDeclined) {
		t.Fatalf("expected user-declined error, got %v", err)
	}
	if got := m.Session().State; got != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}
}

func TestResumeRestoresPersistedAccount(t *testing.T) {
	store := openTestStore(t)
	provider := newFakeProvider([]string{"0xAAA"}, 1320)
	first := NewManager(provider, store)
	if _, _, err := first.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	second := NewManager(provider, store)
	session := second.Resume(context.Background())
	if session.State != StateConnected || session.Account != "0xAAA" || !session.Resumed {
		t.Fatalf("resume did not restore session: %+v", session)
	}
}

func TestResumeDegradesWhenAccountNoLongerGranted(t *testing.T) {
	store := openTestStore(t)
	if err := store.Put(state.KeyLastAccount, []byte("0xAAA")); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	provider := newFakeProvider([]string{"0xBBB"}, 1320)
	m := NewManager(provider, store)

	session := m.Resume(context.Background())
	if session.State != StateDisconnected {
		t.Fatalf("expected disconnected session, got %+v", session)
	}
}

func TestDisconnectIsIdempotentAndClearsState(t *testing.T) {
	store := openTestStore(t)
	provider := newFakeProvider([]string{"0xAAA"}, 1320)
	m := NewManager(provider, store)
	if _, _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := m.Disconnect(); err != nil {
		t.Fatalf("second Disconnect failed: %v", err)
	}
	if _, ok, _ := store.Get(state.KeyLastAccount); ok {
		t.Fatalf("persisted account survived disconnect")
	}
	if got := m.Session().State; got != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}
}

func TestEnsureNetworkRegistersUnknownChain(t *testing.T) {
	provider := newFakeProvider([]string{"0xAAA"}, 1)
	m := NewManager(provider, nil)

	if err := m.EnsureNetwork(context.Background(), 1320); err != nil {
		t.Fatalf("EnsureNetwork failed: %v", err)
	}
	if len(provider.addedChains) != 1 || provider.addedChains[0] != 1320 {
		t.Fatalf("expected chain 1320 registered, got %v", provider.addedChains)
	}
	if provider.switchCalls != 2 {
		t.Fatalf("switch calls = %d, want 2 (fail, register, retry)", provider.switchCalls)
	}
	if provider.chainID != 1320 {
		t.Fatalf("provider chain = %d, want 1320", provider.chainID)
	}
}

func TestEnsureNetworkReportsMismatchWhenSwitchFails(t *testing.T) {
	provider := newFakeProvider([]string{"0xAAA"}, 1)
	provider.failAllSwitch = true
	m := NewManager(provider, nil)

	err := m.EnsureNetwork(context.Background(), 1320)
	if !clierr.Is(err, clierr.CodeNetworkMismatch) {
		t.Fatalf("expected network-mismatch error, got %v", err)
	}
}

func TestEmptyAccountListEventDisconnects(t *testing.T) {
	provider := newFakeProvider([]string{"0xAAA"}, 1320)
	m := NewManager(provider, nil)
	if _, _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	m.HandleEvent(Event{Kind: EventAccountsChanged, Accounts: nil})
	if got := m.Session().State; got != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}
}

func TestAccountChangeBumpsEpochAndInvalidatesPriorAccount(t *testing.T) {
	provider := newFakeProvider([]string{"0xAAA"}, 1320)
	m := NewManager(provider, nil)
	rec := &recordingInvalidator{}
	m.AddInvalidator(rec)
	if _, _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	before := m.Epoch()

	m.HandleEvent(Event{Kind: EventAccountsChanged, Accounts: []string{"0xBBB"}})

	session := m.Session()
	if session.Account != "0xBBB" {
		t.Fatalf("account = %s, want 0xBBB", session.Account)
	}
	if session.Epoch != before+1 {
		t.Fatalf("epoch = %d, want %d", session.Epoch, before+1)
	}
	if len(rec.accountCalls) != 1 || rec.accountCalls[0] != "0xAAA" {
		t.Fatalf("invalidated accounts = %v, want [0xAAA]", rec.accountCalls)
	}
}

func TestChainChangeInvalidatesEverything(t *testing.T) {
	provider := newFakeProvider([]string{"0xAAA"}, 1320)
	m := NewManager(provider, nil)
	rec := &recordingInvalidator{}
	m.AddInvalidator(rec)
	if _, _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	before := m.Epoch()

	m.HandleEvent(Event{Kind: EventChainChanged, ChainID: 1})

	if rec.allCalls != 1 {
		t.Fatalf("InvalidateAll calls = %d, want 1", rec.allCalls)
	}
	session := m.Session()
	if session.ChainID != 1 || session.Epoch != before+1 {
		t.Fatalf("unexpected session after chain change: %+v", session)
	}
}

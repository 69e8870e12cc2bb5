package wallet

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/gustavo/advisor-cli/internal/chain/signer"
	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/registry"
)

// NodeProvider backs the wallet boundary with a JSON-RPC node and a local
// signing key. There is no browser extension in a CLI; "the wallet" is the
// key plus whichever node the provider is currently pointed at.
type NodeProvider struct {
	mu        sync.Mutex
	client    *ethclient.Client
	chainID   int64
	rpcByID   map[int64]string
	txSigner  signer.Signer
	events    chan Event
	closeOnce sync.Once
}

// NewNodeProvider dials the RPC endpoint for chainID (or rpcOverride when
// set) and verifies the node serves that chain. txSigner may be nil; the
// provider then reports no accounts.
func NewNodeProvider(ctx context.Context, rpcOverride string, chainID int64, txSigner signer.Signer) (*NodeProvider, error) {
	rpcURL, err := registry.ResolveRPCURL(rpcOverride, chainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc endpoint", err)
	}
	client, nodeChainID, err := dialVerified(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	if nodeChainID != chainID {
		client.Close()
		return nil, clierr.New(clierr.CodeNetworkMismatch, "rpc endpoint serves a different chain than requested")
	}
	rpcByID := map[int64]string{chainID: rpcURL}
	return &NodeProvider{
		client:   client,
		chainID:  chainID,
		rpcByID:  rpcByID,
		txSigner: txSigner,
		events:   make(chan Event, 8),
	}, nil
}

func dialVerified(ctx context.Context, rpcURL string) (*ethclient.Client, int64, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, 0, clierr.Wrap(clierr.CodeProviderUnavailable, "connect rpc", err)
	}
	nodeChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, 0, clierr.Wrap(clierr.CodeProviderUnavailable, "read chain id", err)
	}
	return client, nodeChainID.Int64(), nil
}

func (p *NodeProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	if p.txSigner == nil {
		return nil, clierr.New(clierr.CodeProviderUnavailable,
			"no signing key configured; set ADVISOR_PRIVATE_KEY or --key-source")
	}
	return []string{p.txSigner.Address().Hex()}, nil
}

// Accounts is the silent variant: a missing key means no granted accounts,
// not an error.
func (p *NodeProvider) Accounts(ctx context.Context) ([]string, error) {
	if p.txSigner == nil {
		return nil, nil
	}
	return []string{p.txSigner.Address().Hex()}, nil
}

func (p *NodeProvider) ChainID(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *NodeProvider) SwitchChain(ctx context.Context, chainID int64) error {
	p.mu.Lock()
	if p.chainID == chainID {
		p.mu.Unlock()
		return nil
	}
	rpcURL, known := p.rpcByID[chainID]
	if !known {
		if params, ok := registry.Network(chainID); ok && strings.TrimSpace(params.RPCURL) != "" {
			rpcURL = params.RPCURL
			known = true
		}
	}
	p.mu.Unlock()
	if !known {
		return &UnknownChainError{ChainID: chainID}
	}

	client, nodeChainID, err := dialVerified(ctx, rpcURL)
	if err != nil {
		return err
	}
	if nodeChainID != chainID {
		client.Close()
		return clierr.New(clierr.CodeNetworkMismatch, "registered rpc endpoint serves a different chain")
	}

	p.mu.Lock()
	old := p.client
	p.client = client
	p.chainID = chainID
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}

	select {
	case p.events <- Event{Kind: EventChainChanged, ChainID: chainID}:
	default:
	}
	return nil
}

func (p *NodeProvider) AddChain(ctx context.Context, params registry.NetworkParams) error {
	if strings.TrimSpace(params.RPCURL) == "" {
		return clierr.New(clierr.CodeUsage, "network registration requires an rpc url")
	}
	p.mu.Lock()
	p.rpcByID[params.ChainID] = params.RPCURL
	p.mu.Unlock()
	return nil
}

func (p *NodeProvider) Events() <-chan Event {
	return p.events
}

// Client exposes the current node connection for on-chain backends.
func (p *NodeProvider) Client() *ethclient.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

func (p *NodeProvider) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		if p.client != nil {
			p.client.Close()
		}
		p.mu.Unlock()
		close(p.events)
	})
	return nil
}

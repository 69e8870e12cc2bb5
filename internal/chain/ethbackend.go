package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/gustavo/advisor-cli/internal/chain/signer"
	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/registry"
)

// EthBackend implements Reader and Writer against a JSON-RPC node using
// the registered token and gateway contracts for the connected chain.
type EthBackend struct {
	client       *ethclient.Client
	txSigner     signer.Signer
	chainID      *big.Int
	token        common.Address
	gateway      common.Address
	tokenABI     abi.ABI
	gatewayABI   abi.ABI
	pollInterval time.Duration
}

// Dial connects to rpcURL and verifies the node serves the expected chain.
// txSigner may be nil for read-only use; write methods then fail with a
// usage error instead of panicking.
func Dial(ctx context.Context, rpcURL string, chainID int64, contracts registry.ContractSet, txSigner signer.Signer) (*EthBackend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeProviderUnavailable, "connect rpc", err)
	}
	nodeChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, clierr.Wrap(clierr.CodeProviderUnavailable, "read chain id", err)
	}
	if nodeChainID.Int64() != chainID {
		client.Close()
		return nil, clierr.New(clierr.CodeNetworkMismatch,
			fmt.Sprintf("rpc serves chain id %d, expected %d", nodeChainID.Int64(), chainID))
	}
	backend, err := NewEthBackend(client, chainID, contracts, txSigner)
	if err != nil {
		client.Close()
		return nil, err
	}
	return backend, nil
}

func NewEthBackend(client *ethclient.Client, chainID int64, contracts registry.ContractSet, txSigner signer.Signer) (*EthBackend, error) {
	tokenABI, err := abi.JSON(strings.NewReader(registry.ADVTokenABI))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "parse token abi", err)
	}
	gatewayABI, err := abi.JSON(strings.NewReader(registry.AdvisorGatewayABI))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "parse gateway abi", err)
	}
	return &EthBackend{
		client:       client,
		txSigner:     txSigner,
		chainID:      big.NewInt(chainID),
		token:        common.HexToAddress(contracts.TokenAddress),
		gateway:      common.HexToAddress(contracts.GatewayAddress),
		tokenABI:     tokenABI,
		gatewayABI:   gatewayABI,
		pollInterval: 2 * time.Second,
	}, nil
}

func (b *EthBackend) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

func (b *EthBackend) CheckAccess(ctx context.Context, account string) (bool, error) {
	out, err := b.call(ctx, b.gateway, b.gatewayABI, "checkAccess", common.HexToAddress(account))
	if err != nil {
		return false, err
	}
	granted, ok := out[0].(bool)
	if !ok {
		return false, clierr.New(clierr.CodeInternal, "checkAccess returned non-boolean value")
	}
	return granted, nil
}

func (b *EthBackend) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	out, err := b.call(ctx, b.token, b.tokenABI, "balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, err
	}
	return unpackBig(out, "balanceOf")
}

func (b *EthBackend) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	out, err := b.call(ctx, b.token, b.tokenABI, "allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	return unpackBig(out, "allowance")
}

func (b *EthBackend) NativeBalance(ctx context.Context, account string) (*big.Int, error) {
	balance, err := b.client.BalanceAt(ctx, common.HexToAddress(account), nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeProviderUnavailable, "fetch native balance", err)
	}
	return balance, nil
}

func (b *EthBackend) Approve(ctx context.Context, spender string, amount *big.Int) (TxHandle, error) {
	data, err := b.tokenABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	return b.submit(ctx, b.token, data)
}

func (b *EthBackend) Purchase(ctx context.Context) (TxHandle, error) {
	data, err := b.gatewayABI.Pack("purchaseConsultation")
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack purchase calldata", err)
	}
	return b.submit(ctx, b.gateway, data)
}

func (b *EthBackend) Stake(ctx context.Context, amount *big.Int) (TxHandle, error) {
	data, err := b.gatewayABI.Pack("stake", amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack stake calldata", err)
	}
	return b.submit(ctx, b.gateway, data)
}

func (b *EthBackend) Unstake(ctx context.Context, amount *big.Int) (TxHandle, error) {
	data, err := b.gatewayABI.Pack("unstake", amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack unstake calldata", err)
	}
	return b.submit(ctx, b.gateway, data)
}

func (b *EthBackend) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s calldata", method), err)
	}
	raw, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeProviderUnavailable, fmt.Sprintf("call %s", method), err)
	}
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeProviderUnavailable, fmt.Sprintf("decode %s result", method), err)
	}
	if len(out) == 0 {
		return nil, clierr.New(clierr.CodeProviderUnavailable, fmt.Sprintf("%s returned no values", method))
	}
	return out, nil
}

func unpackBig(out []any, method string) (*big.Int, error) {
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeInternal, fmt.Sprintf("%s returned non-integer value", method))
	}
	return v, nil
}

func (b *EthBackend) submit(ctx context.Context, to common.Address, data []byte) (TxHandle, error) {
	if b.txSigner == nil {
		return nil, clierr.New(clierr.CodeUsage, "no signing key configured; set ADVISOR_PRIVATE_KEY or --key-source")
	}
	from := b.txSigner.Address()
	msg := ethereum.CallMsg{From: from, To: &to, Data: data}

	gasLimit, err := b.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeOnChainRejected, "estimate gas", err)
	}
	gasLimit = bumpGasLimit(gasLimit, 1.2)

	tipCap, err := b.client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := b.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeProviderUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := computeFeeCap(baseFee, tipCap)

	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeProviderUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   b.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Data:      data,
	})
	signed, err := b.txSigner.SignTx(b.chainID, tx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUserDeclined, "sign transaction", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return nil, clierr.Wrap(clierr.CodeProviderUnavailable, "broadcast transaction", err)
	}
	return &ethTxHandle{client: b.client, hash: signed.Hash(), pollInterval: b.pollInterval}, nil
}

func bumpGasLimit(estimate uint64, multiplier float64) uint64 {
	if multiplier <= 1 {
		return estimate
	}
	return uint64(float64(estimate) * multiplier)
}

// computeFeeCap follows the common 2*baseFee+tip heuristic, which keeps
// the transaction includable across several base fee doublings.
func computeFeeCap(baseFee, tipCap *big.Int) *big.Int {
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	return feeCap.Add(feeCap, tipCap)
}

type ethTxHandle struct {
	client       *ethclient.Client
	hash         common.Hash
	pollInterval time.Duration
}

func (h *ethTxHandle) Hash() string {
	return h.hash.Hex()
}

// Await polls for the receipt until the transaction is mined or ctx is
// cancelled. A cancelled wait means "still pending", not "failed": the
// transaction may confirm later, so the error is marked unconfirmed.
func (h *ethTxHandle) Await(ctx context.Context) (Receipt, error) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := h.client.TransactionReceipt(ctx, h.hash)
		if err == nil && receipt != nil {
			return Receipt{
				TxHash:  h.hash.Hex(),
				Success: receipt.Status == types.ReceiptStatusSuccessful,
			}, nil
		}
		// Transient polling failures are retried until cancellation.
		select {
		case <-ctx.Done():
			return Receipt{TxHash: h.hash.Hex()}, clierr.Wrap(clierr.CodeUnconfirmed,
				"transaction submitted but not yet confirmed", ctx.Err())
		case <-ticker.C:
		}
	}
}

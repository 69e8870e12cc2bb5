package registry

import (
	"fmt"
	"strings"
)

// NetworkParams is the payload for a wallet add-chain (registration) request.
type NetworkParams struct {
	ChainID        int64
	Name           string
	NativeSymbol   string
	NativeDecimals int
	RPCURL         string
	ExplorerURL    string
}

// AIATestnet is the network the advisor gateway contracts are deployed on.
var AIATestnet = NetworkParams{
	ChainID:        1320,
	Name:           "AIA Network Testnet",
	NativeSymbol:   "AIA",
	NativeDecimals: 18,
	RPCURL:         "https://aia-dataseed1-testnet.aiachain.org",
	ExplorerURL:    "https://testnet.aiascan.com",
}

var networksByChainID = map[int64]NetworkParams{
	1320: AIATestnet,
	1: {
		ChainID:        1,
		Name:           "Ethereum Mainnet",
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		RPCURL:         "https://eth.llamarpc.com",
		ExplorerURL:    "https://etherscan.io",
	},
	11155111: {
		ChainID:        11155111,
		Name:           "Sepolia",
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		RPCURL:         "https://rpc.sepolia.org",
		ExplorerURL:    "https://sepolia.etherscan.io",
	},
}

func Network(chainID int64) (NetworkParams, bool) {
	params, ok := networksByChainID[chainID]
	return params, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if params, ok := Network(chainID); ok {
		return params.RPCURL, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; provide --rpc-url", chainID)
}

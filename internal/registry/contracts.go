package registry

import "fmt"

// ContractSet holds the deployed payment token and advisor gateway
// addresses for one chain. The contracts themselves are external
// collaborators; only their addresses and interface live here.
type ContractSet struct {
	TokenAddress   string
	GatewayAddress string
	TokenSymbol    string
	TokenDecimals  int
}

var contractsByChainID = map[int64]ContractSet{
	1320: {
		TokenAddress:   "0xD657cB34E21eac820dd97A1B04d96Cf3fc1B9dEb",
		GatewayAddress: "0x6b46bA8F86E27EA1BBBaA138e388b0206CedacB1",
		TokenSymbol:    "ADV",
		TokenDecimals:  18,
	},
}

func Contracts(chainID int64) (ContractSet, error) {
	set, ok := contractsByChainID[chainID]
	if !ok {
		return ContractSet{}, fmt.Errorf("no advisor contracts registered for chain id %d", chainID)
	}
	return set, nil
}

package chains

import (
	"fmt"
	"strings"
)

type AllChainsConfig struct {
	Networks      map[string]NetworkConfig `json:"networks" yaml:"networks"`
	ActiveNetwork string                   `json:"activeNetwork" yaml:"activeNetwork" mapstructure:"activeNetwork"`
	ActiveRPC     string                   `json:"activeRPC" yaml:"activeRPC" mapstructure:"activeRPC"`
}

// NetworkConfig describes a network, its RPC endpoints and display metadata.
type NetworkConfig struct {
	Name       string         `json:"name" yaml:"name"`
	ChainID    uint64         `json:"chainId" yaml:"chainId" mapstructure:"chainId"`
	ChainIDHex string         `json:"chainIdHex" yaml:"chainIdHex" mapstructure:"chainIdHex"`
	RPCs       []RPC          `json:"rpcs" yaml:"rpcs"`
	Explorer   string         `json:"explorer" yaml:"explorer" mapstructure:"explorer"`
	Currency   NativeCurrency `json:"currency" yaml:"currency" mapstructure:"currency"`
}

type RPC struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	WSS  string `json:"wss" yaml:"wss"`
}

type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// Normalize copies map keys into Name and fills ChainIDHex / currency gaps.
func (mc *AllChainsConfig) Normalize() {
	if mc == nil {
		return
	}
	for name, n := range mc.Networks {
		n.Name = name
		if n.ChainIDHex == "" && n.ChainID != 0 {
			n.ChainIDHex = ChainIDHex(n.ChainID)
		}
		n.ChainIDHex = strings.ToLower(strings.TrimSpace(n.ChainIDHex))
		if n.Currency.Symbol == "" {
			n.Currency = NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}
		}
		mc.Networks[name] = n
	}
}

// ChainIDHex formats a chain id the way wallets report it, e.g. 0xaa36a7.
func ChainIDHex(id uint64) string {
	return fmt.Sprintf("0x%x", id)
}

// ResolvedChain is a network with one selected RPC endpoint.
type ResolvedChain struct {
	NetworkName string
	ChainID     uint64
	ChainIDHex  string
	Explorer    string
	Currency    NativeCurrency

	RPCName string
	URL     string
	WSS     string
}

// RPCURLs lists every HTTP endpoint configured for the network.
func (n NetworkConfig) RPCURLs() []string {
	out := make([]string, 0, len(n.RPCs))
	for _, r := range n.RPCs {
		if u := strings.TrimSpace(r.URL); u != "" {
			out = append(out, u)
		}
	}
	return out
}

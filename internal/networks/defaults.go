package networks

// well-known chains, used to fill names and explorers the dapp left out
var chainDefaults = map[string]struct {
	Name     string
	Explorer string
}{
	"0x1":      {"mainnet", "https://etherscan.io"},
	"0xaa36a7": {"sepolia", "https://sepolia.etherscan.io"},
	"0x4268":   {"holesky", "https://holesky.etherscan.io"},

	"0xa4b1":  {"arbitrum", "https://arbiscan.io"},
	"0x66eed": {"arbitrum-sepolia", "https://sepolia.arbiscan.io"},

	"0xa":      {"optimism", "https://optimistic.etherscan.io"},
	"0xaa37dc": {"optimism-sepolia", "https://sepolia-optimistic.etherscan.io"},

	"0x2105":  {"base", "https://basescan.org"},
	"0x14a34": {"base-sepolia", "https://sepolia.basescan.org"},

	"0x89": {"polygon", "https://polygonscan.com"},
}

// Enrich fills an empty name or explorer from the well-known chain table.
func Enrich(n Network) Network {
	d, ok := chainDefaults[normalizeChainIdHex(n.ChainIdHex)]
	if !ok {
		return n
	}
	if n.Name == "" {
		n.Name = d.Name
	}
	if n.Explorer == "" {
		n.Explorer = d.Explorer
	}
	return n
}

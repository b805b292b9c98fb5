package networks

import (
	"github.com/jingrm/jing-token-client/internal/chains"
	"github.com/jingrm/jing-token-client/internal/constants"
)

// Network is a chain the user added through the wallet at runtime.
type Network struct {
	Name       string                `json:"name"`
	ChainId    uint64                `json:"chainId"`
	ChainIdHex string                `json:"chainIdHex"`
	Explorer   string                `json:"explorer,omitempty"`
	Currency   chains.NativeCurrency `json:"currency"`
	Rpcs       []chains.RPC          `json:"rpcs"`
}

type Store struct {
	Schema   int                `json:"schema"`
	Networks map[string]Network `json:"networks"` // key = normalized name
}

func NewEmptyStore() Store {
	return Store{
		Schema:   constants.SchemaV1,
		Networks: map[string]Network{},
	}
}

// ToConfig converts a stored network into the chains representation.
func (n Network) ToConfig() chains.NetworkConfig {
	return chains.NetworkConfig{
		Name:       n.Name,
		ChainID:    n.ChainId,
		ChainIDHex: n.ChainIdHex,
		RPCs:       n.Rpcs,
		Explorer:   n.Explorer,
		Currency:   n.Currency,
	}
}

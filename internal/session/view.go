package session

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jingrm/jing-token-client/internal/units"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

// SessionInfo is the connection read model.
type SessionInfo struct {
	State         State
	WalletAddress common.Address // zero when absent
	ChainID       uint64
	IsTargetChain bool

	TargetChainID   uint64
	TargetNetwork   string
	ContractAddress common.Address
	Explorer        string
}

func (i SessionInfo) HasWallet() bool {
	return i.WalletAddress != (common.Address{})
}

// TokenView is the token state as of the last applied refresh. The zero
// value is the unloaded marker.
type TokenView struct {
	Loaded             bool
	Symbol             string
	Decimals           uint8
	TotalSupply        *big.Int
	CallerBalance      *big.Int
	PriceWei           *big.Int
	ContractEthBalance *big.Int
	Owner              common.Address
	IsCallerOwner      bool

	// Seq is the refresh sequence number that produced this view.
	Seq uint64
}

func (v TokenView) clone() TokenView {
	out := v
	out.TotalSupply = cloneBig(v.TotalSupply)
	out.CallerBalance = cloneBig(v.CallerBalance)
	out.PriceWei = cloneBig(v.PriceWei)
	out.ContractEthBalance = cloneBig(v.ContractEthBalance)
	return out
}

// Display renders the amounts for presentation. Nothing here feeds back
// into arithmetic.
func (v TokenView) Display(maxFrac int) DisplayView {
	if !v.Loaded {
		return DisplayView{}
	}
	return DisplayView{
		Symbol:             v.Symbol,
		TotalSupply:        units.FormatUnits(v.TotalSupply, v.Decimals, maxFrac),
		CallerBalance:      units.FormatUnits(v.CallerBalance, v.Decimals, maxFrac),
		PriceEth:           units.FormatEther(v.PriceWei, 18),
		RatePerEth:         units.RatePerEth(v.PriceWei, v.Decimals, maxFrac),
		ContractEthBalance: units.FormatEther(v.ContractEthBalance, maxFrac),
	}
}

type DisplayView struct {
	Symbol             string `json:"symbol"`
	TotalSupply        string `json:"totalSupply"`
	CallerBalance      string `json:"callerBalance"`
	PriceEth           string `json:"priceEth"`
	RatePerEth         string `json:"ratePerEth"`
	ContractEthBalance string `json:"contractEthBalance"`
}

func cloneBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

package http

import (
	"time"

	"github.com/jingrm/jing-token-client/internal/session"
)

// -------- requests --------

type transferReq struct {
	To     string `json:"to"     binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type buyReq struct {
	EthAmount string `json:"ethAmount" binding:"required"`
}

type quoteReq struct {
	EthAmount string `form:"ethAmount" binding:"required"`
}

type mintReq struct {
	To     string `json:"to"`
	Amount string `json:"amount" binding:"required"`
}

type priceReq struct {
	PriceEth string `json:"priceEth" binding:"required"`
}

type abandonReq struct {
	ID string `json:"id" binding:"required,uuid"`
}

type accountReq struct {
	Address string `json:"address" binding:"required"`
}

// -------- responses --------

type errorRes struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

type sessionRes struct {
	State           string `json:"state"`
	WalletAddress   string `json:"walletAddress,omitempty"`
	ChainID         uint64 `json:"chainId"`
	ChainIDHex      string `json:"chainIdHex"`
	IsTargetChain   bool   `json:"isTargetChain"`
	TargetChainID   uint64 `json:"targetChainId"`
	TargetNetwork   string `json:"targetNetwork"`
	ContractAddress string `json:"contractAddress"`
	Explorer        string `json:"explorer,omitempty"`
}

type tokenRes struct {
	Loaded             bool                `json:"loaded"`
	Symbol             string              `json:"symbol,omitempty"`
	Decimals           uint8               `json:"decimals"`
	TotalSupply        string              `json:"totalSupply,omitempty"`
	CallerBalance      string              `json:"callerBalance,omitempty"`
	PriceWei           string              `json:"priceWei,omitempty"`
	ContractEthBalance string              `json:"contractEthBalance,omitempty"`
	Owner              string              `json:"owner,omitempty"`
	IsCallerOwner      bool                `json:"isCallerOwner"`
	Display            session.DisplayView `json:"display"`
}

type pendingRes struct {
	Active        bool      `json:"active"`
	ID            string    `json:"id,omitempty"`
	Kind          string    `json:"kind,omitempty"`
	Status        string    `json:"status,omitempty"`
	ResultMessage string    `json:"resultMessage,omitempty"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
}

type txRes struct {
	TxHash string `json:"txHash"`
}

type switchRes struct {
	Outcome string `json:"outcome"`
}

type quoteRes struct {
	EthAmount string `json:"ethAmount"`
	Tokens    string `json:"tokens"`
	Display   string `json:"display"`
}

type importRes struct {
	Added   bool   `json:"added"`
	Message string `json:"message"`
}

type accountsRes struct {
	Addresses []string `json:"addresses"`
}

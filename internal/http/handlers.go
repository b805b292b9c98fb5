// Package http is the local JSON API over the wallet session.
package http

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jingrm/jing-token-client/internal/chains"
	"github.com/jingrm/jing-token-client/internal/provider"
	"github.com/jingrm/jing-token-client/internal/session"
	"github.com/jingrm/jing-token-client/internal/units"
)

// WalletSession is the part of *session.Session the API drives.
type WalletSession interface {
	Info() session.SessionInfo
	View() session.TokenView
	Pending() *session.PendingTracker

	Connect(ctx context.Context) (session.SessionInfo, error)
	SwitchNetwork(ctx context.Context) (session.SwitchOutcome, error)
	RefreshBalance(ctx context.Context) error

	Transfer(ctx context.Context, to string, amount string) (common.Hash, error)
	Buy(ctx context.Context, ethAmount string) (common.Hash, error)
	QuoteBuy(ethAmount string) (*big.Int, error)
	Mint(ctx context.Context, amount string) (common.Hash, error)
	MintTo(ctx context.Context, to string, amount string) (common.Hash, error)
	SetPrice(ctx context.Context, newPriceEth string) (common.Hash, error)
	Withdraw(ctx context.Context) (common.Hash, error)
	ImportToFavorites(ctx context.Context) (session.ImportResult, error)
}

// WalletControl simulates the user acting inside the wallet.
type WalletControl interface {
	Addresses() []common.Address
	SelectAccount(addr common.Address) error
	Lock()
}

var (
	_ WalletSession = (*session.Session)(nil)
	_ WalletControl = (*provider.Local)(nil)
)

type Handler struct {
	session  WalletSession
	wallet   WalletControl
	fraction int
}

// NewHandler builds the API handlers. wallet may be nil, which disables the
// /api/wallet routes.
func NewHandler(s WalletSession, wallet WalletControl, displayFractions int) *Handler {
	return &Handler{session: s, wallet: wallet, fraction: displayFractions}
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/session
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionRes(h.session.Info()))
}

// GET /api/token
func (h *Handler) GetToken(c *gin.Context) {
	c.JSON(http.StatusOK, h.toTokenRes(h.session.View()))
}

// GET /api/pending
func (h *Handler) GetPending(c *gin.Context) {
	op, ok := h.session.Pending().Current()
	if !ok {
		c.JSON(http.StatusOK, pendingRes{})
		return
	}
	c.JSON(http.StatusOK, pendingRes{
		Active:        true,
		ID:            op.ID.String(),
		Kind:          string(op.Kind),
		Status:        string(op.Status),
		ResultMessage: op.ResultMessage,
		StartedAt:     op.StartedAt,
	})
}

// POST /api/pending/abandon
func (h *Handler) AbandonPending(c *gin.Context) {
	var req abandonReq
	if !bindJSON(c, &req) {
		return
	}
	if !h.session.Pending().Abandon(uuid.MustParse(req.ID)) {
		c.JSON(http.StatusConflict, errorRes{Error: "operation is not running"})
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/connect
func (h *Handler) Connect(c *gin.Context) {
	info, err := h.session.Connect(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionRes(info))
}

// POST /api/network/switch
func (h *Handler) SwitchNetwork(c *gin.Context) {
	out, err := h.session.SwitchNetwork(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if out == session.SwitchIndeterminate {
		status = http.StatusAccepted
	}
	c.JSON(status, switchRes{Outcome: string(out)})
}

// POST /api/refresh
func (h *Handler) Refresh(c *gin.Context) {
	if err := h.session.RefreshBalance(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toTokenRes(h.session.View()))
}

// POST /api/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req transferReq
	if !bindJSON(c, &req) {
		return
	}
	writeTx(c)(h.session.Transfer(c.Request.Context(), req.To, req.Amount))
}

// POST /api/buy
func (h *Handler) Buy(c *gin.Context) {
	var req buyReq
	if !bindJSON(c, &req) {
		return
	}
	writeTx(c)(h.session.Buy(c.Request.Context(), req.EthAmount))
}

// GET /api/buy/quote?ethAmount=0.1
func (h *Handler) QuoteBuy(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindQuery(&req); err != nil {
		writeBindError(c, err)
		return
	}
	tokens, err := h.session.QuoteBuy(req.EthAmount)
	if err != nil {
		writeError(c, err)
		return
	}
	decimals := h.session.View().Decimals
	c.JSON(http.StatusOK, quoteRes{
		EthAmount: req.EthAmount,
		Tokens:    tokens.String(),
		Display:   units.FormatUnits(tokens, decimals, h.fraction),
	})
}

// POST /api/mint
func (h *Handler) Mint(c *gin.Context) {
	var req mintReq
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if req.To == "" {
		writeTx(c)(h.session.Mint(ctx, req.Amount))
		return
	}
	writeTx(c)(h.session.MintTo(ctx, req.To, req.Amount))
}

// POST /api/price
func (h *Handler) SetPrice(c *gin.Context) {
	var req priceReq
	if !bindJSON(c, &req) {
		return
	}
	writeTx(c)(h.session.SetPrice(c.Request.Context(), req.PriceEth))
}

// POST /api/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	writeTx(c)(h.session.Withdraw(c.Request.Context()))
}

// POST /api/import
func (h *Handler) Import(c *gin.Context) {
	res, err := h.session.ImportToFavorites(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, importRes{Added: res.Added, Message: res.Message})
}

// GET /api/wallet/accounts
func (h *Handler) WalletAccounts(c *gin.Context) {
	if !h.requireWallet(c) {
		return
	}
	addrs := h.wallet.Addresses()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Hex())
	}
	c.JSON(http.StatusOK, accountsRes{Addresses: out})
}

// POST /api/wallet/account
func (h *Handler) SelectAccount(c *gin.Context) {
	if !h.requireWallet(c) {
		return
	}
	var req accountReq
	if !bindJSON(c, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, errorRes{Error: "invalid address", Kind: "InvalidInput"})
		return
	}
	if err := h.wallet.SelectAccount(common.HexToAddress(req.Address)); err != nil {
		c.JSON(http.StatusNotFound, errorRes{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/wallet/lock
func (h *Handler) LockWallet(c *gin.Context) {
	if !h.requireWallet(c) {
		return
	}
	h.wallet.Lock()
	c.Status(http.StatusNoContent)
}

func (h *Handler) requireWallet(c *gin.Context) bool {
	if h.wallet == nil {
		c.JSON(http.StatusNotImplemented, errorRes{Error: "wallet control not available"})
		return false
	}
	return true
}

func toSessionRes(info session.SessionInfo) sessionRes {
	res := sessionRes{
		State:           info.State.String(),
		ChainID:         info.ChainID,
		ChainIDHex:      chains.ChainIDHex(info.ChainID),
		IsTargetChain:   info.IsTargetChain,
		TargetChainID:   info.TargetChainID,
		TargetNetwork:   info.TargetNetwork,
		ContractAddress: info.ContractAddress.Hex(),
		Explorer:        info.Explorer,
	}
	if info.HasWallet() {
		res.WalletAddress = info.WalletAddress.Hex()
	}
	return res
}

func (h *Handler) toTokenRes(v session.TokenView) tokenRes {
	if !v.Loaded {
		return tokenRes{}
	}
	return tokenRes{
		Loaded:             true,
		Symbol:             v.Symbol,
		Decimals:           v.Decimals,
		TotalSupply:        bigString(v.TotalSupply),
		CallerBalance:      bigString(v.CallerBalance),
		PriceWei:           bigString(v.PriceWei),
		ContractEthBalance: bigString(v.ContractEthBalance),
		Owner:              v.Owner.Hex(),
		IsCallerOwner:      v.IsCallerOwner,
		Display:            v.Display(h.fraction),
	}
}

package http

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingrm/jing-token-client/internal/metrics"
	"github.com/jingrm/jing-token-client/internal/session"
)

var (
	walletAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenAddr  = common.HexToAddress("0x15c12f6854c88175d2cd1448ffcf668be61cf4aa")
	txHash     = common.HexToHash("0xabc")
)

// stubSession returns canned results and records the last call.
type stubSession struct {
	info    session.SessionInfo
	view    session.TokenView
	pending *session.PendingTracker

	err      error
	outcome  session.SwitchOutcome
	imported session.ImportResult
	lastCall string
	lastArgs []string
}

func newStubSession() *stubSession {
	bal, _ := new(big.Int).SetString("1234500000000000000000", 10)
	return &stubSession{
		info: session.SessionInfo{
			State:           session.Connected,
			WalletAddress:   walletAddr,
			ChainID:         1,
			IsTargetChain:   true,
			TargetChainID:   1,
			TargetNetwork:   "mainnet",
			ContractAddress: tokenAddr,
			Explorer:        "https://etherscan.io",
		},
		view: session.TokenView{
			Loaded:             true,
			Symbol:             "JINGRM",
			Decimals:           18,
			TotalSupply:        new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000_000_000_000_000)),
			CallerBalance:      bal,
			PriceWei:           big.NewInt(1_000_000_000_000_000),
			ContractEthBalance: big.NewInt(0),
			Owner:              walletAddr,
			IsCallerOwner:      true,
		},
		pending: session.NewPendingTracker(clockwork.NewFakeClock(), 5*time.Second),
		outcome: session.SwitchConfirmed,
	}
}

func (s *stubSession) record(name string, args ...string) {
	s.lastCall = name
	s.lastArgs = args
}

func (s *stubSession) tx(name string, args ...string) (common.Hash, error) {
	s.record(name, args...)
	if s.err != nil {
		return common.Hash{}, s.err
	}
	return txHash, nil
}

func (s *stubSession) Info() session.SessionInfo        { return s.info }
func (s *stubSession) View() session.TokenView          { return s.view }
func (s *stubSession) Pending() *session.PendingTracker { return s.pending }

func (s *stubSession) Connect(context.Context) (session.SessionInfo, error) {
	s.record("Connect")
	return s.info, s.err
}

func (s *stubSession) SwitchNetwork(context.Context) (session.SwitchOutcome, error) {
	s.record("SwitchNetwork")
	return s.outcome, s.err
}

func (s *stubSession) RefreshBalance(context.Context) error {
	s.record("RefreshBalance")
	return s.err
}

func (s *stubSession) Transfer(_ context.Context, to string, amount string) (common.Hash, error) {
	return s.tx("Transfer", to, amount)
}

func (s *stubSession) Buy(_ context.Context, eth string) (common.Hash, error) {
	return s.tx("Buy", eth)
}

func (s *stubSession) QuoteBuy(eth string) (*big.Int, error) {
	s.record("QuoteBuy", eth)
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Mul(big.NewInt(100), big.NewInt(1_000_000_000_000_000_000)), nil
}

func (s *stubSession) Mint(_ context.Context, amount string) (common.Hash, error) {
	return s.tx("Mint", amount)
}

func (s *stubSession) MintTo(_ context.Context, to string, amount string) (common.Hash, error) {
	return s.tx("MintTo", to, amount)
}

func (s *stubSession) SetPrice(_ context.Context, price string) (common.Hash, error) {
	return s.tx("SetPrice", price)
}

func (s *stubSession) Withdraw(context.Context) (common.Hash, error) {
	return s.tx("Withdraw")
}

func (s *stubSession) ImportToFavorites(context.Context) (session.ImportResult, error) {
	s.record("ImportToFavorites")
	return s.imported, s.err
}

type stubWallet struct {
	addrs    []common.Address
	selected common.Address
	locked   bool
}

func (w *stubWallet) Addresses() []common.Address { return w.addrs }

func (w *stubWallet) SelectAccount(addr common.Address) error {
	for _, a := range w.addrs {
		if a == addr {
			w.selected = addr
			return nil
		}
	}
	return errors.Newf("account %s is not in the keyring", addr.Hex())
}

func (w *stubWallet) Lock() { w.locked = true }

func setupRouter(t *testing.T, s *stubSession, w WalletControl) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	r := NewRouter(NewHandler(s, w, 6), RouterConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		Registry:       reg,
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
	})
	return r, reg
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "127.0.0.1:53211"
	req.Host = "localhost:8765"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t, newStubSession(), nil)
	w := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestLoopbackOnly(t *testing.T) {
	r, _ := setupRouter(t, newStubSession(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.RemoteAddr = "10.0.0.7:4000"
	req.Host = "localhost:8765"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	req.Host = "evil.example:8765"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetSession(t *testing.T) {
	r, _ := setupRouter(t, newStubSession(), nil)
	w := do(r, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[sessionRes](t, w)
	assert.Equal(t, "Connected", res.State)
	assert.Equal(t, walletAddr.Hex(), res.WalletAddress)
	assert.Equal(t, "0x1", res.ChainIDHex)
	assert.True(t, res.IsTargetChain)
	assert.Equal(t, tokenAddr.Hex(), res.ContractAddress)
}

func TestGetToken(t *testing.T) {
	s := newStubSession()
	r, _ := setupRouter(t, s, nil)

	res := decode[tokenRes](t, do(r, http.MethodGet, "/api/token", ""))
	assert.True(t, res.Loaded)
	assert.Equal(t, "1234500000000000000000", res.CallerBalance)
	assert.Equal(t, "1234.5", res.Display.CallerBalance)
	assert.Equal(t, "0.001", res.Display.PriceEth)

	s.view = session.TokenView{}
	res = decode[tokenRes](t, do(r, http.MethodGet, "/api/token", ""))
	assert.False(t, res.Loaded)
}

func TestTransfer(t *testing.T) {
	s := newStubSession()
	r, _ := setupRouter(t, s, nil)

	w := do(r, http.MethodPost, "/api/transfer", `{"to":"0x3333333333333333333333333333333333333333","amount":"10"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, txHash.Hex(), decode[txRes](t, w).TxHash)
	assert.Equal(t, "Transfer", s.lastCall)
	assert.Equal(t, []string{"0x3333333333333333333333333333333333333333", "10"}, s.lastArgs)

	s.lastCall = ""
	w = do(r, http.MethodPost, "/api/transfer", `{"to":"0x3333333333333333333333333333333333333333"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidInput", decode[errorRes](t, w).Kind)
	assert.Empty(t, s.lastCall)
}

func TestMint_ChoosesDestination(t *testing.T) {
	s := newStubSession()
	r, _ := setupRouter(t, s, nil)

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/mint", `{"amount":"5"}`).Code)
	assert.Equal(t, "Mint", s.lastCall)

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/mint", `{"to":"0x3333333333333333333333333333333333333333","amount":"5"}`).Code)
	assert.Equal(t, "MintTo", s.lastCall)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{errors.Wrap(session.ErrInvalidInput, "amount"), http.StatusBadRequest, "InvalidInput"},
		{errors.WithHint(session.ErrWalletNotConnected, "Connect the wallet first."), http.StatusUnauthorized, "WalletNotConnected"},
		{session.ErrNotAuthorized, http.StatusForbidden, "NotAuthorized"},
		{session.ErrWrongNetwork, http.StatusConflict, "WrongNetwork"},
		{session.ErrNothingToWithdraw, http.StatusConflict, "NothingToWithdraw"},
		{session.ErrInsufficientFunds, http.StatusPaymentRequired, "InsufficientFunds"},
		{session.ErrUserRejected, http.StatusUnprocessableEntity, "UserRejected"},
		{session.ErrTransactionReverted, http.StatusBadGateway, "TransactionReverted"},
		{session.ErrRpcUnavailable, http.StatusBadGateway, "RpcUnavailable"},
		{session.ErrProviderAbsent, http.StatusServiceUnavailable, "ProviderAbsent"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s := newStubSession()
			s.err = tt.err
			r, _ := setupRouter(t, s, nil)

			w := do(r, http.MethodPost, "/api/withdraw", "")
			assert.Equal(t, tt.status, w.Code)
			res := decode[errorRes](t, w)
			assert.Equal(t, tt.kind, res.Kind)
		})
	}
}

func TestErrorCarriesHint(t *testing.T) {
	s := newStubSession()
	s.err = errors.WithHint(session.ErrWalletNotConnected, "Connect the wallet first.")
	r, _ := setupRouter(t, s, nil)

	res := decode[errorRes](t, do(r, http.MethodPost, "/api/buy", `{"ethAmount":"0.01"}`))
	assert.Equal(t, "Connect the wallet first.", res.Hint)
}

func TestSwitchNetwork(t *testing.T) {
	s := newStubSession()
	r, _ := setupRouter(t, s, nil)

	w := do(r, http.MethodPost, "/api/network/switch", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", decode[switchRes](t, w).Outcome)

	s.outcome = session.SwitchIndeterminate
	w = do(r, http.MethodPost, "/api/network/switch", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "indeterminate", decode[switchRes](t, w).Outcome)
}

func TestQuoteBuy(t *testing.T) {
	s := newStubSession()
	r, _ := setupRouter(t, s, nil)

	w := do(r, http.MethodGet, "/api/buy/quote?ethAmount=0.1", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[quoteRes](t, w)
	assert.Equal(t, "100", res.Display)
	assert.Equal(t, []string{"0.1"}, s.lastArgs)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/buy/quote", "").Code)
}

func TestImport(t *testing.T) {
	s := newStubSession()
	s.imported = session.ImportResult{Added: false, Message: "Token was not added to the wallet."}
	r, _ := setupRouter(t, s, nil)

	w := do(r, http.MethodPost, "/api/import", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[importRes](t, w)
	assert.False(t, res.Added)
	assert.NotEmpty(t, res.Message)
}

func TestPending(t *testing.T) {
	s := newStubSession()
	r, _ := setupRouter(t, s, nil)

	res := decode[pendingRes](t, do(r, http.MethodGet, "/api/pending", ""))
	assert.False(t, res.Active)

	id := s.pending.Begin(session.OpBuy)
	res = decode[pendingRes](t, do(r, http.MethodGet, "/api/pending", ""))
	assert.True(t, res.Active)
	assert.Equal(t, "Buy", res.Kind)
	assert.Equal(t, "Running", res.Status)

	w := do(r, http.MethodPost, "/api/pending/abandon", `{"id":"`+id.String()+`"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodPost, "/api/pending/abandon", `{"id":"`+id.String()+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(r, http.MethodPost, "/api/pending/abandon", `{"id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletControl(t *testing.T) {
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	wallet := &stubWallet{addrs: []common.Address{walletAddr, other}}
	r, _ := setupRouter(t, newStubSession(), wallet)

	res := decode[accountsRes](t, do(r, http.MethodGet, "/api/wallet/accounts", ""))
	assert.Equal(t, []string{walletAddr.Hex(), other.Hex()}, res.Addresses)

	w := do(r, http.MethodPost, "/api/wallet/account", `{"address":"`+other.Hex()+`"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, other, wallet.selected)

	w = do(r, http.MethodPost, "/api/wallet/account", `{"address":"0x4444444444444444444444444444444444444444"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/api/wallet/lock", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, wallet.locked)
}

func TestWalletControl_Unavailable(t *testing.T) {
	r, _ := setupRouter(t, newStubSession(), nil)
	assert.Equal(t, http.StatusNotImplemented, do(r, http.MethodPost, "/api/wallet/lock", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := setupRouter(t, newStubSession(), nil)
	do(r, http.MethodGet, "/api/session", "")

	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `jing_http_requests_total{method="GET",route="/api/session",status_code="200"} 1`)
}

func TestCORS(t *testing.T) {
	r, _ := setupRouter(t, newStubSession(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/session", nil)
	req.RemoteAddr = "127.0.0.1:53211"
	req.Host = "localhost:8765"
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

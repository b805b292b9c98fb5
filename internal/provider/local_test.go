package provider

import (
	"context"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingrm/jing-token-client/internal/assets"
	"github.com/jingrm/jing-token-client/internal/chains"
	"github.com/jingrm/jing-token-client/internal/ethwallet"
	"github.com/jingrm/jing-token-client/internal/networks"
)

type fakeBackend struct {
	chains.Backend
	chainID uint64

	mu          sync.Mutex
	estimateErr error
	sendErr     error
	sent        []*types.Transaction
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(b.chainID), nil
}
func (b *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(7), nil
}
func (b *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return []byte{1}, nil
}
func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.estimateErr != nil {
		return 0, b.estimateErr
	}
	return 50_000, nil
}
func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 4, nil
}
func (b *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}
func (b *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(10)}, nil
}
func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}
func (b *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

// revertError looks like go-ethereum's JSON-RPC error for a revert.
type revertError struct{ data string }

func (e revertError) Error() string          { return "execution reverted: not owner" }
func (e revertError) ErrorCode() int         { return 3 }
func (e revertError) ErrorData() interface{} { return e.data }

type harness struct {
	local    *Local
	backends map[string]*fakeBackend
	signers  []ethwallet.Signer
	approve  bool
	mu       sync.Mutex
	asked    []RequestKind
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{approve: true, backends: map[string]*fakeBackend{
		"https://mainnet.example": {chainID: 1},
		"https://sepolia.example": {chainID: 11155111},
		"https://polygon.example": {chainID: 137},
	}}

	cfg := &chains.AllChainsConfig{Networks: map[string]chains.NetworkConfig{
		"mainnet": {ChainID: 1, RPCs: []chains.RPC{{Name: "main", URL: "https://mainnet.example"}}},
		"sepolia": {ChainID: 11155111, RPCs: []chains.RPC{{Name: "main", URL: "https://sepolia.example"}}},
	}}
	cfg.Normalize()

	svc, err := chains.NewService(context.Background(), chains.ChainConfig{
		Chains:               cfg,
		DefaultActiveNetwork: "mainnet",
		Dialer: func(_ context.Context, url string) (chains.Backend, error) {
			return h.backends[url], nil
		},
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		h.signers = append(h.signers, ethwallet.NewKeySigner(key))
	}

	dir := t.TempDir()
	h.local, err = NewLocal(LocalConfig{
		Chains:  svc,
		Signers: h.signers,
		Approver: ApproverFunc(func(_ context.Context, req ApprovalRequest) (bool, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.asked = append(h.asked, req.Kind)
			return h.approve, nil
		}),
		Networks: networks.NewManagerAt(filepath.Join(dir, "networks.json")),
		Assets:   assets.NewManagerAt(filepath.Join(dir, "assets.json")),
	})
	require.NoError(t, err)
	return h
}

func (h *harness) setApprove(v bool) {
	h.mu.Lock()
	h.approve = v
	h.mu.Unlock()
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	got, ok := CodeOf(err)
	require.True(t, ok, "no code on %v", err)
	assert.Equal(t, code, got)
}

func TestRequestAccounts_Rejected(t *testing.T) {
	h := newHarness(t)
	h.setApprove(false)

	_, err := h.local.RequestAccounts(context.Background())
	requireCode(t, err, CodeUserRejected)

	accts, err := h.local.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accts)
}

func TestRequestAccounts_PromptsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	accts, err := h.local.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{h.signers[0].Address()}, accts)

	_, err = h.local.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []RequestKind{KindConnect}, h.asked)

	accts, err = h.local.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accts, 1)
}

func TestChainID(t *testing.T) {
	h := newHarness(t)
	id, err := h.local.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id.Uint64())
}

func TestSwitchChain_EmitsChainChanged(t *testing.T) {
	h := newHarness(t)
	ch := make(chan *big.Int, 1)
	sub := h.local.SubscribeChainChanged(ch)
	defer sub.Unsubscribe()

	require.NoError(t, h.local.SwitchChain(context.Background(), "0xaa36a7"))

	select {
	case id := <-ch:
		assert.Equal(t, uint64(11155111), id.Uint64())
	case <-time.After(time.Second):
		t.Fatal("no chainChanged event")
	}

	id, err := h.local.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(11155111), id.Uint64())
}

func TestSwitchChain_UnknownAndRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	requireCode(t, h.local.SwitchChain(ctx, "0x89"), CodeUnrecognizedChain)

	h.setApprove(false)
	requireCode(t, h.local.SwitchChain(ctx, "0xaa36a7"), CodeUserRejected)
}

func TestAddChain_ThenSwitch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.local.AddChain(ctx, AddChainParams{
		ChainIDHex:     "0x89",
		ChainName:      "Polygon",
		NativeCurrency: chains.NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
		RPCURLs:        []string{"https://polygon.example"},
	})
	require.NoError(t, err)
	require.NoError(t, h.local.SwitchChain(ctx, "0x89"))

	stored, ok, err := h.local.networks.FindByChainIdHex(ctx, "0x89")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://polygonscan.com", stored.Explorer)

	// known chains are accepted without a prompt
	before := len(h.asked)
	require.NoError(t, h.local.AddChain(ctx, AddChainParams{ChainIDHex: "0x1", RPCURLs: []string{"https://x"}}))
	assert.Equal(t, before, len(h.asked))

	requireCode(t, h.local.AddChain(ctx, AddChainParams{ChainIDHex: "0x99"}), CodeInvalidParams)
}

func TestAddChain_PrefersPersistedNetwork(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.local.networks.AddNetwork(ctx, networks.Network{
		Name:    "polygon",
		ChainId: 137,
		Rpcs:    []chains.RPC{{Name: "stored", URL: "https://polygon.example"}},
	})
	require.NoError(t, err)

	require.NoError(t, h.local.AddChain(ctx, AddChainParams{
		ChainIDHex: "0x89",
		ChainName:  "Polygon Mainnet",
		RPCURLs:    []string{"https://unreachable.example"},
	}))
	require.NoError(t, h.local.SwitchChain(ctx, "0x89"))

	id, err := h.local.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(137), id.Uint64())
}

func TestSendTransaction_SignsAndBroadcasts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	to := common.HexToAddress("0x15c12f6854c88175d2cd1448ffcf668be61cf4aa")
	_, err := h.local.SendTransaction(ctx, TxRequest{To: &to})
	requireCode(t, err, CodeUnauthorized)

	_, err = h.local.RequestAccounts(ctx)
	require.NoError(t, err)

	hash, err := h.local.SendTransaction(ctx, TxRequest{From: h.signers[0].Address(), To: &to, Value: big.NewInt(5), Data: []byte{0xde, 0xad}})
	require.NoError(t, err)

	b := h.backends["https://mainnet.example"]
	require.Len(t, b.sent, 1)
	tx := b.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint64(4), tx.Nonce())
	assert.Equal(t, uint64(50_000), tx.Gas())
	assert.Equal(t, int64(22), tx.GasFeeCap().Int64())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, h.signers[0].Address(), from)

	_, err = h.local.SendTransaction(ctx, TxRequest{From: h.signers[1].Address(), To: &to})
	requireCode(t, err, CodeUnauthorized)
}

func TestSendTransaction_ClassifiesFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.local.RequestAccounts(ctx)
	require.NoError(t, err)
	to := common.HexToAddress("0x15c12f6854c88175d2cd1448ffcf668be61cf4aa")
	b := h.backends["https://mainnet.example"]

	b.estimateErr = errors.New("insufficient funds for gas * price + value")
	_, err = h.local.SendTransaction(ctx, TxRequest{To: &to, Value: big.NewInt(1)})
	requireCode(t, err, CodeServerError)

	b.estimateErr = revertError{data: "0x08c379a0"}
	_, err = h.local.SendTransaction(ctx, TxRequest{To: &to})
	requireCode(t, err, CodeExecutionReverted)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, hexutil.MustDecode("0x08c379a0"), pe.Data)

	b.estimateErr = nil
	h.setApprove(false)
	_, err = h.local.SendTransaction(ctx, TxRequest{To: &to})
	requireCode(t, err, CodeUserRejected)
	assert.Empty(t, b.sent)
}

func TestSelectAccountAndLock_EmitAccountsChanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch := make(chan []common.Address, 4)
	sub := h.local.SubscribeAccountsChanged(ch)
	defer sub.Unsubscribe()

	// not connected yet: no event
	require.NoError(t, h.local.SelectAccount(h.signers[1].Address()))
	assert.Len(t, ch, 0)

	_, err := h.local.RequestAccounts(ctx)
	require.NoError(t, err)
	require.NoError(t, h.local.SelectAccount(h.signers[0].Address()))
	assert.Equal(t, []common.Address{h.signers[0].Address()}, <-ch)

	h.local.Lock()
	assert.Empty(t, <-ch)

	assert.Error(t, h.local.SelectAccount(common.HexToAddress("0x01")))
	assert.Equal(t, h.signers[0].Address(), h.local.Addresses()[0])
}

func TestWatchAsset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	addr := common.HexToAddress("0x15c12f6854c88175d2cd1448ffcf668be61cf4aa")

	ok, err := h.local.WatchAsset(ctx, WatchAssetParams{Type: "ERC20", Address: addr, Symbol: "JINGRM", Decimals: 18})
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := h.local.assets.ListForNetwork(ctx, "mainnet")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "JINGRM", list[0].Symbol)

	_, err = h.local.WatchAsset(ctx, WatchAssetParams{Type: "ERC721", Address: addr, Symbol: "X"})
	requireCode(t, err, CodeInvalidParams)

	h.setApprove(false)
	_, err = h.local.WatchAsset(ctx, WatchAssetParams{Type: "ERC20", Address: addr, Symbol: "JINGRM"})
	requireCode(t, err, CodeUserRejected)
}

func TestFromRPCError(t *testing.T) {
	assert.Nil(t, FromRPCError(nil))

	pe := FromRPCError(errors.New("connection refused"))
	assert.Equal(t, CodeInternal, pe.Code)

	same := NewError(CodeUserRejected, "no")
	assert.Same(t, same, FromRPCError(errors.Wrap(same, "wrapped")))
}

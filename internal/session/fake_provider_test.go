package session

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/jingrm/jing-token-client/internal/provider"
	"github.com/jingrm/jing-token-client/internal/token"
)

var (
	contractAddr = common.HexToAddress("0x15c12f6854c88175d2cd1448ffcf668be61cf4aa")
	userAddr     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	ownerAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient    = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// fakeProvider is a scripted wallet. Every request method counts as a
// network call; subscriptions do not.
type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int

	accounts   []common.Address
	requestErr error
	chainID    uint64
	chainIDErr error

	// switchFn decides the outcome of wallet_switchEthereumChain; when nil
	// the switch succeeds and chainChanged is emitted.
	switchFn    func(hex string) error
	addChainErr error

	sendErr       error
	onSend        func()
	receiptStatus uint64
	// receipt lookups answer NotFound this many times first
	unmined int
	replayErr     error
	sent          []provider.TxRequest

	watchOK  bool
	watchErr error
	watched  []provider.WatchAssetParams

	// token state
	symbol     string
	decimals   uint8
	supply     *big.Int
	balance    *big.Int
	owner      common.Address
	price      *big.Int
	ethBalance *big.Int
	readErr    error
	// onSymbol runs inside the n-th symbol() call and may block.
	onSymbol func(n int) string

	accountsFeed event.Feed
	chainFeed    event.Feed
}

func newFakeProvider() *fakeProvider {
	bal, _ := new(big.Int).SetString("1234500000000000000000", 10)
	supply, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	return &fakeProvider{
		calls:         map[string]int{},
		accounts:      []common.Address{userAddr},
		chainID:       1,
		receiptStatus: types.ReceiptStatusSuccessful,
		watchOK:       true,
		symbol:        "JINGRM",
		decimals:      18,
		supply:        supply,
		balance:       bal,
		owner:         ownerAddr,
		price:         big.NewInt(1_000_000_000_000_000),
		ethBalance:    big.NewInt(0),
	}
}

func (f *fakeProvider) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeProvider) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeProvider) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeProvider) resetCalls() {
	f.mu.Lock()
	f.calls = map[string]int{}
	f.mu.Unlock()
}

func (f *fakeProvider) set(fn func(f *fakeProvider)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	f.record("eth_requestAccounts")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return append([]common.Address(nil), f.accounts...), nil
}

func (f *fakeProvider) Accounts(context.Context) ([]common.Address, error) {
	f.record("eth_accounts")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]common.Address(nil), f.accounts...), nil
}

func (f *fakeProvider) ChainID(context.Context) (*big.Int, error) {
	f.record("eth_chainId")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chainIDErr != nil {
		return nil, f.chainIDErr
	}
	return new(big.Int).SetUint64(f.chainID), nil
}

func (f *fakeProvider) SwitchChain(_ context.Context, hex string) error {
	f.record("wallet_switchEthereumChain")
	f.mu.Lock()
	fn := f.switchFn
	f.mu.Unlock()
	if fn != nil {
		return fn(hex)
	}
	f.emitChain(1)
	return nil
}

func (f *fakeProvider) AddChain(context.Context, provider.AddChainParams) error {
	f.record("wallet_addEthereumChain")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addChainErr
}

func (f *fakeProvider) SendTransaction(_ context.Context, req provider.TxRequest) (common.Hash, error) {
	f.record("eth_sendTransaction")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, req)
	if f.onSend != nil {
		f.onSend()
	}
	return common.BigToHash(big.NewInt(int64(len(f.sent)))), nil
}

func (f *fakeProvider) WatchAsset(_ context.Context, params provider.WatchAssetParams) (bool, error) {
	f.record("wallet_watchAsset")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, params)
	return f.watchOK, f.watchErr
}

func (f *fakeProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return f.accountsFeed.Subscribe(ch)
}

func (f *fakeProvider) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return f.chainFeed.Subscribe(ch)
}

func (f *fakeProvider) emitChain(id uint64) {
	f.mu.Lock()
	f.chainID = id
	f.mu.Unlock()
	f.chainFeed.Send(new(big.Int).SetUint64(id))
}

func (f *fakeProvider) emitAccounts(accts ...common.Address) {
	f.mu.Lock()
	f.accounts = accts
	f.mu.Unlock()
	f.accountsFeed.Send(append([]common.Address{}, accts...))
}

func (f *fakeProvider) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, err := token.ABI()
	if err != nil {
		return nil, err
	}
	m, err := parsed.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	f.record(m.Name)

	f.mu.Lock()
	if f.readErr != nil {
		err := f.readErr
		f.mu.Unlock()
		return nil, err
	}
	var out []interface{}
	switch m.Name {
	case token.MethodSymbol:
		n := f.calls[m.Name]
		hook := f.onSymbol
		sym := f.symbol
		f.mu.Unlock()
		if hook != nil {
			sym = hook(n)
		}
		return m.Outputs.Pack(sym)
	case token.MethodDecimals:
		out = []interface{}{f.decimals}
	case token.MethodTotalSupply:
		out = []interface{}{f.supply}
	case token.MethodBalanceOf:
		out = []interface{}{f.balance}
	case token.MethodOwner:
		out = []interface{}{f.owner}
	case token.MethodTokenPrice:
		out = []interface{}{f.price}
	default:
		// replay of a write call
		err := f.replayErr
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()
	return m.Outputs.Pack(out...)
}

func (f *fakeProvider) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	f.record("eth_getBalance")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return new(big.Int).Set(f.ethBalance), nil
}

func (f *fakeProvider) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.record("eth_getTransactionReceipt")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unmined > 0 {
		f.unmined--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.receiptStatus, TxHash: hash, BlockNumber: big.NewInt(100)}, nil
}

// rpcRevert looks like a node's execution-reverted error.
type rpcRevert struct{ data string }

func (e rpcRevert) Error() string          { return "execution reverted" }
func (e rpcRevert) ErrorCode() int         { return 3 }
func (e rpcRevert) ErrorData() interface{} { return e.data }

type recorder struct {
	mu       sync.Mutex
	refresh  []string
	ops      []string
	events   []string
}

func (r *recorder) RefreshFinished(outcome string, _ time.Duration) {
	r.mu.Lock()
	r.refresh = append(r.refresh, outcome)
	r.mu.Unlock()
}

func (r *recorder) OperationFinished(kind, result string) {
	r.mu.Lock()
	r.ops = append(r.ops, kind+":"+result)
	r.mu.Unlock()
}

func (r *recorder) ProviderEvent(name string) {
	r.mu.Lock()
	r.events = append(r.events, name)
	r.mu.Unlock()
}

func (r *recorder) refreshes(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.refresh {
		if o == outcome {
			n++
		}
	}
	return n
}

var errBoom = errors.New("dial tcp 127.0.0.1:8545: connection refused")

func (r *recorder) eventCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == name {
			n++
		}
	}
	return n
}

func hashOf(n int64) common.Hash { return common.BigToHash(big.NewInt(n)) }

// Package session implements the wallet session: connection lifecycle, the
// token read model and the signed write operations against the JING token.
package session

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/jonboulle/clockwork"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/jingrm/jing-token-client/internal/chains"
	"github.com/jingrm/jing-token-client/internal/constants"
	"github.com/jingrm/jing-token-client/internal/provider"
	"github.com/jingrm/jing-token-client/internal/token"
)

type Config struct {
	ContractAddress common.Address
	// TargetChain is also the wallet_addEthereumChain payload.
	TargetChain       provider.AddChainParams
	TargetNetworkName string

	DefaultSymbol string
	// DefaultDecimals applies until the token view loads; nil means 18.
	DefaultDecimals *uint8
	TokenImage      string

	SwitchWait    time.Duration
	ReceiptPoll   time.Duration
	BannerTimeout time.Duration

	// DisableAutoRefresh stops provider events from triggering a refresh.
	DisableAutoRefresh bool
}

// Recorder receives session telemetry.
type Recorder interface {
	RefreshFinished(outcome string, elapsed time.Duration)
	OperationFinished(kind string, result string)
	ProviderEvent(name string)
}

type nopRecorder struct{}

func (nopRecorder) RefreshFinished(string, time.Duration) {}
func (nopRecorder) OperationFinished(string, string) {}
func (nopRecorder) ProviderEvent(string) {}

type Option func(*Session)

func WithClock(c clockwork.Clock) Option { return func(s *Session) { s.clock = c } }

func WithRecorder(r Recorder) Option { return func(s *Session) { s.rec = r } }

// binding is the contract view for one (account, chain) epoch. It is never
// mutated; chain and account changes install a new one.
type binding struct {
	epoch    uint64
	contract *token.Contract
}

type Session struct {
	cfg      Config
	provider provider.Provider
	targetID uint64
	decimals uint8
	clock    clockwork.Clock
	rec      Recorder
	pending  *PendingTracker

	mu         sync.Mutex
	state      State
	address    common.Address
	chainID    uint64
	isTarget   bool
	epoch      uint64
	binding    *binding
	view       TokenView
	refreshSeq uint64
	// closed and replaced on every chain-changed event
	chainChanged chan struct{}

	subscribeOnce sync.Once
	subs          []event.Subscription
	baseCtx       context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

// New creates a session over p. A nil p models a missing wallet: Connect
// and SwitchNetwork fail with ErrProviderAbsent.
func New(p provider.Provider, cfg Config, opts ...Option) (*Session, error) {
	targetID, err := chains.ParseChainIDHex(cfg.TargetChain.ChainIDHex)
	if err != nil {
		return nil, errors.Wrap(err, "target chain")
	}
	if cfg.ContractAddress == (common.Address{}) {
		return nil, errors.New("contract address is required")
	}
	if cfg.DefaultSymbol == "" {
		cfg.DefaultSymbol = constants.DefaultTokenSymbol
	}
	decimals := uint8(constants.DefaultTokenDecimals)
	if cfg.DefaultDecimals != nil {
		decimals = *cfg.DefaultDecimals
	}
	if cfg.SwitchWait <= 0 {
		cfg.SwitchWait = constants.DefaultSwitchWait
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = constants.DefaultReceiptPoll
	}
	if cfg.BannerTimeout <= 0 {
		cfg.BannerTimeout = constants.DefaultBannerTimeout
	}

	s := &Session{
		cfg:          cfg,
		provider:     p,
		targetID:     targetID,
		decimals:     decimals,
		clock:        clockwork.NewRealClock(),
		rec:          nopRecorder{},
		chainChanged: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.pending = NewPendingTracker(s.clock, cfg.BannerTimeout)
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Connect asks the wallet for account access and binds the session.
func (s *Session) Connect(ctx context.Context) (SessionInfo, error) {
	if s.provider == nil {
		return s.Info(), errors.WithHint(ErrProviderAbsent, "Install or unlock a wallet.")
	}
	return s.connect(ctx, s.provider.RequestAccounts)
}

// Resume connects without prompting when the wallet already exposes an
// authorized account. It is a no-op otherwise.
func (s *Session) Resume(ctx context.Context) (SessionInfo, error) {
	if s.provider == nil {
		return s.Info(), nil
	}
	accts, err := s.provider.Accounts(ctx)
	if err != nil || len(accts) == 0 {
		return s.Info(), nil
	}
	return s.connect(ctx, func(context.Context) ([]common.Address, error) { return accts, nil })
}

func (s *Session) connect(ctx context.Context, accounts func(context.Context) ([]common.Address, error)) (SessionInfo, error) {
	s.mu.Lock()
	entered := s.state == Disconnected
	if entered {
		s.state = Connecting
	}
	s.mu.Unlock()

	fail := func(err error) (SessionInfo, error) {
		s.mu.Lock()
		if entered && s.state == Connecting {
			s.state = Disconnected
		}
		s.mu.Unlock()
		return s.Info(), err
	}

	accts, err := accounts(ctx)
	if err != nil {
		if code, ok := provider.CodeOf(err); ok && code == provider.CodeUserRejected {
			return fail(mark(err, ErrUserRejected, "request accounts"))
		}
		return fail(mark(err, ErrRpcUnavailable, "request accounts"))
	}
	if len(accts) == 0 {
		return fail(errors.WithHint(ErrNoAccounts, "Unlock the wallet or create an account."))
	}

	id, err := s.provider.ChainID(ctx)
	if err != nil {
		return fail(mark(err, ErrRpcUnavailable, "read chain id"))
	}

	s.subscribeOnce.Do(s.subscribe)

	s.mu.Lock()
	s.state = Connected
	s.address = accts[0]
	s.setChainLocked(id.Uint64())
	s.rebindLocked()
	info := s.infoLocked()
	s.mu.Unlock()

	log.Info("wallet session connected", "account", info.WalletAddress.Hex(), "chainId", info.ChainID, "isTargetChain", info.IsTargetChain)

	if err := s.Refresh(ctx); err != nil {
		log.Warn("initial refresh failed", "err", err)
	}
	return s.Info(), nil
}

// Info returns the current connection read model.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() SessionInfo {
	info := SessionInfo{
		State:           s.state,
		WalletAddress:   s.address,
		ChainID:         s.chainID,
		IsTargetChain:   s.isTarget,
		TargetChainID:   s.targetID,
		TargetNetwork:   s.cfg.TargetNetworkName,
		ContractAddress: s.cfg.ContractAddress,
	}
	if len(s.cfg.TargetChain.BlockExplorerURLs) > 0 {
		info.Explorer = s.cfg.TargetChain.BlockExplorerURLs[0]
	}
	return info
}

// View returns a copy of the token read model.
func (s *Session) View() TokenView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

func (s *Session) Pending() *PendingTracker { return s.pending }

// Close stops event handling and waits for background refreshes.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		subs := s.subs
		s.subs = nil
		s.mu.Unlock()
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		s.wg.Wait()
	})
}

func (s *Session) setChainLocked(id uint64) {
	s.chainID = id
	s.isTarget = id == s.targetID
}

// rebindLocked installs a fresh binding and resets the view. Every refresh
// started under an older epoch is discarded on completion.
func (s *Session) rebindLocked() {
	s.epoch++
	s.view = TokenView{}
	if s.state != Connected {
		s.binding = nil
		return
	}
	c, err := token.NewContract(s.cfg.ContractAddress, s.provider)
	if err != nil {
		// only fails on a broken embedded ABI
		log.Error("bind token contract", "err", err)
		s.binding = nil
		return
	}
	s.binding = &binding{epoch: s.epoch, contract: c}
}

func (s *Session) subscribe() {
	if s.baseCtx.Err() != nil {
		return
	}
	accCh := make(chan []common.Address, 8)
	chainCh := make(chan *big.Int, 8)
	accSub := s.provider.SubscribeAccountsChanged(accCh)
	chainSub := s.provider.SubscribeChainChanged(chainCh)

	s.mu.Lock()
	s.subs = append(s.subs, accSub, chainSub)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case accts := <-accCh:
				s.handleAccountsChanged(accts)
			case id := <-chainCh:
				if id != nil {
					s.handleChainChanged(id.Uint64())
				}
			case err := <-accSub.Err():
				if err != nil {
					log.Error("accountsChanged subscription failed", "err", err)
				}
				return
			case err := <-chainSub.Err():
				if err != nil {
					log.Error("chainChanged subscription failed", "err", err)
				}
				return
			case <-s.baseCtx.Done():
				return
			}
		}
	}()
}

func (s *Session) handleAccountsChanged(accts []common.Address) {
	s.rec.ProviderEvent("accountsChanged")

	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return
	}
	if len(accts) == 0 {
		s.state = Disconnected
		s.address = common.Address{}
		s.rebindLocked()
		s.mu.Unlock()
		log.Info("wallet disconnected")
		return
	}
	if accts[0] == s.address {
		s.mu.Unlock()
		return
	}
	s.address = accts[0]
	s.rebindLocked()
	refresh := s.isTarget && !s.cfg.DisableAutoRefresh
	s.mu.Unlock()

	log.Info("wallet account switched", "account", accts[0].Hex())
	if refresh {
		s.refreshInBackground()
	}
}

func (s *Session) handleChainChanged(id uint64) {
	s.rec.ProviderEvent("chainChanged")

	s.mu.Lock()
	s.setChainLocked(id)
	connected := s.state == Connected
	if connected {
		s.rebindLocked()
	}
	close(s.chainChanged)
	s.chainChanged = make(chan struct{})
	refresh := connected && s.isTarget && !s.cfg.DisableAutoRefresh
	isTarget := s.isTarget
	s.mu.Unlock()

	log.Info("wallet chain changed", "chainId", id, "isTargetChain", isTarget)
	if refresh {
		s.refreshInBackground()
	}
}

func (s *Session) refreshInBackground() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Refresh(s.baseCtx); err != nil {
			log.Warn("background refresh failed", "err", err)
		}
	}()
}

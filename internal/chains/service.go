// Package chains keeps one RPC backend per configured network and tracks
// which network the wallet currently points at.
package chains

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/qa_evm"
	"github.com/quantumauth-io/quantum-go-utils/retry"
)

var ErrUnknownNetwork = errors.New("unknown network")

// Backend is the RPC client kept per network.
type Backend = qa_evm.BlockchainClient

// Dialer opens a Backend for an RPC URL.
type Dialer func(ctx context.Context, url string) (Backend, error)

func DialEthClient(ctx context.Context, url string) (Backend, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return qa_evm.NewLiveBlockchainClient(c), nil
}

// closeBackend releases b. Live clients close without an error, the
// simulated chain returns one.
func closeBackend(b Backend) {
	switch c := b.(type) {
	case interface{ Close() }:
		c.Close()
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			log.Warn("close backend", "err", err)
		}
	}
}

type ChainConfig struct {
	Chains               *AllChainsConfig
	DefaultActiveNetwork string
	PreferredRPCName     string
	DialTimeout          time.Duration
	Dialer               Dialer
}

type activeChain struct {
	chain   ResolvedChain
	backend Backend
}

type Service struct {
	cfg    ChainConfig
	active atomic.Pointer[activeChain]

	mu       sync.Mutex
	networks map[string]NetworkConfig
	backends map[string]Backend
}

func NewService(ctx context.Context, cfg ChainConfig) (*Service, error) {
	if cfg.Chains == nil {
		return nil, errors.New("chains config is nil")
	}
	if strings.TrimSpace(cfg.DefaultActiveNetwork) == "" {
		return nil, errors.New("active network is empty")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = DialEthClient
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	s := &Service{
		cfg:      cfg,
		networks: make(map[string]NetworkConfig, len(cfg.Chains.Networks)),
		backends: make(map[string]Backend),
	}
	for name, n := range cfg.Chains.Networks {
		n.Name = name
		s.networks[strings.ToLower(name)] = n
	}

	if _, err := s.SwitchChain(ctx, cfg.DefaultActiveNetwork); err != nil {
		return nil, err
	}
	return s, nil
}

// Active returns the backend and network the wallet currently points at.
func (s *Service) Active() (Backend, ResolvedChain, error) {
	current := s.active.Load()
	if current == nil {
		return nil, ResolvedChain{}, errors.New("no active chain")
	}
	return current.backend, current.chain, nil
}

// SwitchChain makes networkName active, dialing it on first use.
func (s *Service) SwitchChain(ctx context.Context, networkName string) (ResolvedChain, error) {
	resolved, err := s.ResolveNetworkByName(networkName)
	if err != nil {
		return ResolvedChain{}, err
	}
	if current := s.active.Load(); current != nil && strings.EqualFold(current.chain.NetworkName, resolved.NetworkName) {
		return current.chain, nil
	}

	backend, err := s.backendFor(ctx, resolved)
	if err != nil {
		return ResolvedChain{}, err
	}
	s.active.Store(&activeChain{chain: resolved, backend: backend})
	log.Info("active chain switched", "network", resolved.NetworkName, "chainId", resolved.ChainIDHex, "rpc", resolved.RPCName)
	return resolved, nil
}

func (s *Service) SwitchChainByChainIDHex(ctx context.Context, chainIDHex string) (ResolvedChain, error) {
	resolved, err := s.ResolveNetworkByChainIDHex(chainIDHex)
	if err != nil {
		return ResolvedChain{}, err
	}
	return s.SwitchChain(ctx, resolved.NetworkName)
}

// BackendForNetwork returns (and caches) a backend WITHOUT changing the active chain.
func (s *Service) BackendForNetwork(ctx context.Context, networkName string) (Backend, error) {
	resolved, err := s.ResolveNetworkByName(networkName)
	if err != nil {
		return nil, err
	}
	return s.backendFor(ctx, resolved)
}

func (s *Service) backendFor(ctx context.Context, chain ResolvedChain) (Backend, error) {
	cacheKey := strings.ToLower(chain.NetworkName)

	s.mu.Lock()
	if existing := s.backends[cacheKey]; existing != nil {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	// dial outside the lock
	dialed, err := s.dial(ctx, chain)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing := s.backends[cacheKey]; existing != nil {
		s.mu.Unlock()
		closeBackend(dialed)
		return existing, nil
	}
	s.backends[cacheKey] = dialed
	s.mu.Unlock()

	return dialed, nil
}

func (s *Service) dial(ctx context.Context, chain ResolvedChain) (Backend, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	cfg := retry.DefaultConfig()
	cfg.InitialDelayBeforeRetrying = 200 * time.Millisecond
	cfg.MaxDelayBeforeRetrying = 2 * time.Second

	out, err := retry.Retry(dialCtx, cfg,
		func(ctx context.Context) ([]interface{}, error) {
			b, err := s.cfg.Dialer(ctx, chain.URL)
			if err != nil {
				return nil, err
			}
			return []interface{}{b}, nil
		},
		nil,
		"dial "+chain.NetworkName+" rpc")
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s rpc %q", chain.NetworkName, chain.RPCName)
	}
	if len(out) != 1 {
		return nil, errors.Newf("dial %s: no backend returned", chain.NetworkName)
	}
	b, ok := out[0].(Backend)
	if !ok {
		return nil, errors.Newf("dial %s: unexpected backend type %T", chain.NetworkName, out[0])
	}
	return b, nil
}

// AddNetwork registers a network at runtime. Existing names and chain ids
// are rejected.
func (s *Service) AddNetwork(n NetworkConfig) error {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return errors.New("network name is empty")
	}
	if n.ChainID == 0 {
		return errors.New("chainId is 0")
	}
	if len(n.RPCURLs()) == 0 {
		return errors.Newf("network %q has no RPCs configured", name)
	}
	n.Name = name
	n.ChainIDHex = ChainIDHex(n.ChainID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.networks[strings.ToLower(name)]; ok {
		return errors.Newf("network %q already exists", name)
	}
	for _, existing := range s.networks {
		if existing.ChainID == n.ChainID {
			return errors.Newf("chainId %s already configured as %q", n.ChainIDHex, existing.Name)
		}
	}
	s.networks[strings.ToLower(name)] = n
	return nil
}

// Networks returns a snapshot of all known networks.
func (s *Service) Networks() []NetworkConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NetworkConfig, 0, len(s.networks))
	for _, n := range s.networks {
		out = append(out, n)
	}
	return out
}

// Close closes all cached backends (call on shutdown).
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, b := range s.backends {
		if b != nil {
			closeBackend(b)
		}
		delete(s.backends, key)
	}
	s.active.Store(nil)
	return nil
}

func (s *Service) ResolveNetworkByChainID(chainID uint64) (ResolvedChain, error) {
	if chainID == 0 {
		return ResolvedChain{}, errors.New("chainID is 0")
	}
	s.mu.Lock()
	var found *NetworkConfig
	for _, n := range s.networks {
		if n.ChainID == chainID {
			n := n
			found = &n
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return ResolvedChain{}, errors.Wrapf(ErrUnknownNetwork, "chainID %d", chainID)
	}
	return s.resolveFromNetworkConfig(*found)
}

func (s *Service) ResolveNetworkByChainIDHex(chainIDHex string) (ResolvedChain, error) {
	id, err := ParseChainIDHex(chainIDHex)
	if err != nil {
		return ResolvedChain{}, err
	}
	return s.ResolveNetworkByChainID(id)
}

func (s *Service) ResolveNetworkByName(networkName string) (ResolvedChain, error) {
	networkName = strings.TrimSpace(networkName)
	if networkName == "" {
		return ResolvedChain{}, errors.New("network name is empty")
	}

	s.mu.Lock()
	network, ok := s.networks[strings.ToLower(networkName)]
	s.mu.Unlock()
	if !ok {
		return ResolvedChain{}, errors.Wrapf(ErrUnknownNetwork, "%q", networkName)
	}
	return s.resolveFromNetworkConfig(network)
}

func (s *Service) resolveFromNetworkConfig(network NetworkConfig) (ResolvedChain, error) {
	// pick RPC by preferred name; otherwise first
	var selectedRPC *RPC
	if preferred := strings.TrimSpace(s.cfg.PreferredRPCName); preferred != "" {
		for i := range network.RPCs {
			if strings.EqualFold(strings.TrimSpace(network.RPCs[i].Name), preferred) {
				selectedRPC = &network.RPCs[i]
				break
			}
		}
	}
	if selectedRPC == nil {
		if len(network.RPCs) == 0 {
			return ResolvedChain{}, errors.Newf("network %q has no RPCs configured", network.Name)
		}
		selectedRPC = &network.RPCs[0]
	}
	if strings.TrimSpace(selectedRPC.URL) == "" {
		return ResolvedChain{}, errors.Newf("network %q rpc %q url is empty", network.Name, selectedRPC.Name)
	}

	hex := network.ChainIDHex
	if hex == "" {
		hex = ChainIDHex(network.ChainID)
	}
	return ResolvedChain{
		NetworkName: network.Name,
		ChainID:     network.ChainID,
		ChainIDHex:  strings.ToLower(hex),
		Explorer:    network.Explorer,
		Currency:    network.Currency,
		RPCName:     selectedRPC.Name,
		URL:         selectedRPC.URL,
		WSS:         selectedRPC.WSS,
	}, nil
}

// ParseChainIDHex parses "0x1" / "0xAA36A7" into a chain id.
func ParseChainIDHex(s string) (uint64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, errors.New("chainIdHex is empty")
	}
	if !strings.HasPrefix(s, "0x") {
		return 0, errors.Newf("chainIdHex %q must start with 0x", s)
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse chainIdHex %q", s)
	}
	if id == 0 {
		return 0, errors.New("chainID is 0")
	}
	return id, nil
}

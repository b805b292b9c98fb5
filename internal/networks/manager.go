// Package networks persists chains added through wallet_addEthereumChain so
// they survive restarts.
package networks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/jingrm/jing-token-client/internal/chains"
	"github.com/jingrm/jing-token-client/internal/constants"
	"github.com/jingrm/jing-token-client/internal/securefile"
)

var ErrDuplicate = errors.New("network already exists")

type Manager struct {
	mu     sync.Mutex
	path   string
	store  Store
	loaded bool
}

// NewManager resolves networks.json under the user config dir.
func NewManager() (*Manager, error) {
	path, err := securefile.ResolvePath(constants.AppName, constants.NetworksFile)
	if err != nil {
		return nil, err
	}
	return NewManagerAt(path), nil
}

func NewManagerAt(path string) *Manager {
	return &Manager{path: path, store: NewEmptyStore()}
}

func (m *Manager) Path() string { return m.path }

// AddNetwork validates, enriches and persists n. Duplicates by name or
// chain id return ErrDuplicate.
func (m *Manager) AddNetwork(ctx context.Context, n Network) (Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLoaded(ctx); err != nil {
		return Network{}, err
	}

	n.ChainIdHex = normalizeChainIdHex(n.ChainIdHex)
	if n.ChainIdHex == "" && n.ChainId != 0 {
		n.ChainIdHex = chains.ChainIDHex(n.ChainId)
	}
	if n.ChainIdHex == "" {
		return Network{}, errors.New("network.chainIdHex is required")
	}
	id, err := chains.ParseChainIDHex(n.ChainIdHex)
	if err != nil {
		return Network{}, err
	}
	n.ChainId = id

	n = Enrich(n)
	n.Name = normalizeNetworkKey(n.Name)
	n.Explorer = strings.TrimSpace(n.Explorer)
	n.Rpcs = normalizeRPCs(n.Rpcs)

	if n.Name == "" {
		return Network{}, errors.New("network.name is required")
	}
	if len(n.Rpcs) == 0 {
		return Network{}, errors.New("network.rpcs must contain at least one url")
	}
	if n.Currency.Symbol == "" {
		n.Currency = chains.NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}
	}

	if key, ok := m.findKeyByChainIdHex(n.ChainIdHex); ok {
		return Network{}, errors.Wrapf(ErrDuplicate, "chainIdHex %s (name: %s)", n.ChainIdHex, key)
	}
	if _, exists := m.store.Networks[n.Name]; exists {
		return Network{}, errors.Wrapf(ErrDuplicate, "name %s", n.Name)
	}

	m.store.Networks[n.Name] = n
	if err := m.persist(); err != nil {
		delete(m.store.Networks, n.Name)
		return Network{}, err
	}
	return n, nil
}

func (m *Manager) RemoveNetworkByChainIdHex(ctx context.Context, chainIdHex string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLoaded(ctx); err != nil {
		return err
	}
	key, ok := m.findKeyByChainIdHex(chainIdHex)
	if !ok {
		return nil
	}
	delete(m.store.Networks, key)
	return m.persist()
}

func (m *Manager) FindByChainIdHex(ctx context.Context, chainIdHex string) (Network, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLoaded(ctx); err != nil {
		return Network{}, false, err
	}
	key, ok := m.findKeyByChainIdHex(chainIdHex)
	if !ok {
		return Network{}, false, nil
	}
	return m.store.Networks[key], true, nil
}

// List returns stored networks sorted by name.
func (m *Manager) List(ctx context.Context) ([]Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make([]Network, 0, len(m.store.Networks))
	for _, n := range m.store.Networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Manager) ensureLoaded(ctx context.Context) error {
	_ = ctx
	if m.loaded {
		return nil
	}
	if !securefile.Exists(m.path) {
		m.store = NewEmptyStore()
		m.loaded = true
		return nil
	}

	s, err := securefile.ReadJSON[Store](m.path)
	if err != nil {
		return errors.Wrap(err, "load networks file")
	}

	norm := NewEmptyStore()
	if s.Schema != 0 {
		norm.Schema = s.Schema
	}
	for k, n := range s.Networks {
		name := normalizeNetworkKey(n.Name)
		if name == "" {
			name = normalizeNetworkKey(k)
		}
		n.Name = name
		n.ChainIdHex = normalizeChainIdHex(n.ChainIdHex)
		// unusable without both
		if name == "" || n.ChainIdHex == "" {
			continue
		}
		norm.Networks[name] = n
	}
	m.store = norm
	m.loaded = true
	return nil
}

func (m *Manager) persist() error {
	if err := securefile.WriteJSON(m.path, m.store); err != nil {
		return errors.Wrap(err, "persist networks")
	}
	return nil
}

func (m *Manager) findKeyByChainIdHex(chainIdHex string) (string, bool) {
	ch := normalizeChainIdHex(chainIdHex)
	if ch == "" {
		return "", false
	}
	for k, n := range m.store.Networks {
		if normalizeChainIdHex(n.ChainIdHex) == ch {
			return k, true
		}
	}
	return "", false
}

func normalizeNetworkKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeChainIdHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

func normalizeRPCs(in []chains.RPC) []chains.RPC {
	out := make([]chains.RPC, 0, len(in))
	seen := map[string]bool{} // by url
	for i, r := range in {
		url := strings.TrimSpace(r.URL)
		if url == "" {
			continue
		}
		key := strings.ToLower(url)
		if seen[key] {
			continue
		}
		seen[key] = true
		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = fmt.Sprintf("rpc-%d", i+1)
		}
		out = append(out, chains.RPC{Name: name, URL: url, WSS: strings.TrimSpace(r.WSS)})
	}
	return out
}

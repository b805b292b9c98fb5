// Package assets keeps the wallet's watched token list in assets.json.
package assets

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jingrm/jing-token-client/internal/constants"
	"github.com/jingrm/jing-token-client/internal/securefile"
)

type Manager struct {
	mu     sync.Mutex
	path   string
	store  Store
	loaded bool
}

func NewManager() (*Manager, error) {
	path, err := securefile.ResolvePath(constants.AppName, constants.AssetsFile)
	if err != nil {
		return nil, err
	}
	return NewManagerAt(path), nil
}

func NewManagerAt(path string) *Manager {
	return &Manager{path: path, store: emptyStore()}
}

func (m *Manager) Path() string { return m.path }

// AddAsset stores a watched token. It reports false when the token was
// already present for that network.
func (m *Manager) AddAsset(ctx context.Context, network string, a Asset) (bool, error) {
	nk := normalizeNetworkKey(network)
	if nk == "" {
		return false, errors.New("network must not be empty")
	}
	addr, err := normalizeAddress(a.Address)
	if err != nil {
		return false, err
	}
	a.Address = addr
	a.Symbol = strings.TrimSpace(a.Symbol)
	if a.Symbol == "" {
		return false, errors.New("asset symbol must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLoaded(ctx); err != nil {
		return false, err
	}
	if m.store.Networks[nk] == nil {
		m.store.Networks[nk] = map[string]Asset{}
	}
	if _, ok := m.store.Networks[nk][addr]; ok {
		return false, nil
	}

	m.store.Networks[nk][addr] = a
	if err := securefile.WriteJSON(m.path, m.store); err != nil {
		delete(m.store.Networks[nk], addr)
		return false, errors.Wrap(err, "persist assets")
	}
	return true, nil
}

func (m *Manager) RemoveAsset(ctx context.Context, network, address string) error {
	nk := normalizeNetworkKey(network)
	addr, err := normalizeAddress(address)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLoaded(ctx); err != nil {
		return err
	}
	if _, ok := m.store.Networks[nk][addr]; !ok {
		return nil
	}
	delete(m.store.Networks[nk], addr)
	return securefile.WriteJSON(m.path, m.store)
}

// ListForNetwork returns the network's assets sorted by symbol.
func (m *Manager) ListForNetwork(ctx context.Context, network string) ([]Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	byAddr := m.store.Networks[normalizeNetworkKey(network)]
	out := make([]Asset, 0, len(byAddr))
	for _, a := range byAddr {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Symbol) < strings.ToLower(out[j].Symbol)
	})
	return out, nil
}

func (m *Manager) ensureLoaded(ctx context.Context) error {
	_ = ctx
	if m.loaded {
		return nil
	}
	if !securefile.Exists(m.path) {
		m.loaded = true
		return nil
	}

	s, err := securefile.ReadJSON[Store](m.path)
	if err != nil {
		return errors.Wrap(err, "load assets file")
	}

	normalized := emptyStore()
	for netKey, byAddr := range s.Networks {
		nk := normalizeNetworkKey(netKey)
		if nk == "" {
			continue
		}
		for addrKey, asset := range byAddr {
			addr, err := normalizeAddress(addrKey)
			if err != nil {
				continue
			}
			if normalized.Networks[nk] == nil {
				normalized.Networks[nk] = map[string]Asset{}
			}
			asset.Address = addr
			normalized.Networks[nk][addr] = asset
		}
	}
	m.store = normalized
	m.loaded = true
	return nil
}

func emptyStore() Store {
	return Store{Schema: constants.SchemaV1, Networks: map[string]map[string]Asset{}}
}

func normalizeNetworkKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", errors.Newf("invalid address %q", s)
	}
	return common.HexToAddress(s).Hex(), nil
}

package provider

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/jingrm/jing-token-client/internal/assets"
	"github.com/jingrm/jing-token-client/internal/chains"
	"github.com/jingrm/jing-token-client/internal/ethwallet"
	"github.com/jingrm/jing-token-client/internal/networks"
)

const defaultFeeCapMultiplier = 2

type LocalConfig struct {
	Chains   *chains.Service
	Signers  []ethwallet.Signer
	Approver Approver

	// optional persistence
	Networks *networks.Manager
	Assets   *assets.Manager
}

// Local is an in-process wallet: keys from the keyring, RPC through the
// chains service, confirmations through an Approver.
type Local struct {
	chains   *chains.Service
	approver Approver
	networks *networks.Manager
	assets   *assets.Manager

	mu         sync.Mutex
	signers    []ethwallet.Signer
	selected   int
	authorized bool

	accountsFeed event.Feed
	chainFeed    event.Feed
}

func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Chains == nil {
		return nil, errors.New("provider: chains service is nil")
	}
	if len(cfg.Signers) == 0 {
		return nil, errors.New("provider: no signers")
	}
	if cfg.Approver == nil {
		cfg.Approver = AutoApprove{}
	}
	return &Local{
		chains:   cfg.Chains,
		approver: cfg.Approver,
		networks: cfg.Networks,
		assets:   cfg.Assets,
		signers:  cfg.Signers,
	}, nil
}

func (l *Local) approve(ctx context.Context, kind RequestKind, summary string) error {
	ok, err := l.approver.Approve(ctx, ApprovalRequest{Kind: kind, Summary: summary})
	if err != nil {
		return errors.Wrapf(err, "approval %s", kind)
	}
	if !ok {
		return NewError(CodeUserRejected, "User rejected the request.")
	}
	return nil
}

func (l *Local) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	l.mu.Lock()
	authorized := l.authorized
	addr := l.signers[l.selected].Address()
	l.mu.Unlock()

	if !authorized {
		if err := l.approve(ctx, KindConnect, "connect account "+addr.Hex()); err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.authorized = true
		addr = l.signers[l.selected].Address()
		l.mu.Unlock()
		log.Info("wallet connected", "account", addr.Hex())
	}
	return []common.Address{addr}, nil
}

func (l *Local) Accounts(ctx context.Context) ([]common.Address, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.authorized {
		return []common.Address{}, nil
	}
	return []common.Address{l.signers[l.selected].Address()}, nil
}

func (l *Local) ChainID(ctx context.Context) (*big.Int, error) {
	backend, chain, err := l.chains.Active()
	if err != nil {
		return nil, NewError(CodeDisconnected, err.Error())
	}
	id, err := backend.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "eth_chainId on %s", chain.NetworkName)
	}
	if id.Uint64() != chain.ChainID {
		log.Warn("rpc reports unexpected chain id", "network", chain.NetworkName, "configured", chain.ChainID, "rpc", id.String())
	}
	return id, nil
}

func (l *Local) SwitchChain(ctx context.Context, chainIDHex string) error {
	target, err := l.chains.ResolveNetworkByChainIDHex(chainIDHex)
	if err != nil {
		if errors.Is(err, chains.ErrUnknownNetwork) {
			return NewError(CodeUnrecognizedChain, fmt.Sprintf("Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", chainIDHex))
		}
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	_, current, err := l.chains.Active()
	if err == nil && current.ChainID == target.ChainID {
		return nil
	}

	if err := l.approve(ctx, KindSwitchChain, "switch network to "+target.NetworkName+" ("+target.ChainIDHex+")"); err != nil {
		return err
	}
	resolved, err := l.chains.SwitchChain(ctx, target.NetworkName)
	if err != nil {
		return &Error{Code: CodeInternal, Message: err.Error()}
	}

	l.chainFeed.Send(new(big.Int).SetUint64(resolved.ChainID))
	return nil
}

func (l *Local) AddChain(ctx context.Context, params AddChainParams) error {
	id, err := chains.ParseChainIDHex(params.ChainIDHex)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if len(params.RPCURLs) == 0 {
		return NewError(CodeInvalidParams, "rpcUrls must contain at least one url")
	}
	if _, err := l.chains.ResolveNetworkByChainID(id); err == nil {
		// already known
		return nil
	}

	if err := l.approve(ctx, KindAddChain, "add network "+params.ChainName+" ("+params.ChainIDHex+")"); err != nil {
		return err
	}

	n := networks.Network{
		Name:       params.ChainName,
		ChainId:    id,
		ChainIdHex: params.ChainIDHex,
		Currency:   params.NativeCurrency,
	}
	if len(params.BlockExplorerURLs) > 0 {
		n.Explorer = params.BlockExplorerURLs[0]
	}
	for i, u := range params.RPCURLs {
		n.Rpcs = append(n.Rpcs, chains.RPC{Name: fmt.Sprintf("rpc-%d", i+1), URL: u})
	}

	if l.networks != nil {
		stored, err := l.networks.AddNetwork(ctx, n)
		switch {
		case err == nil:
			n = stored
		case errors.Is(err, networks.ErrDuplicate):
			// persisted by an earlier run; prefer the stored entry
			if existing, ok, ferr := l.networks.FindByChainIdHex(ctx, params.ChainIDHex); ferr == nil && ok {
				n = existing
			}
		default:
			return &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
	} else {
		n = networks.Enrich(n)
	}

	if err := l.chains.AddNetwork(n.ToConfig()); err != nil {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	log.Info("network added", "name", n.Name, "chainId", id)
	return nil
}

func (l *Local) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	signer, err := l.authorizedSigner(req.From)
	if err != nil {
		return common.Hash{}, err
	}
	req.From = signer.Address()
	backend, chain, err := l.chains.Active()
	if err != nil {
		return common.Hash{}, NewError(CodeDisconnected, err.Error())
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gas := req.Gas
	if gas == 0 {
		call := req.CallMsg()
		call.Value = value
		gas, err = backend.EstimateGas(ctx, call)
		if err != nil {
			return common.Hash{}, FromRPCError(err)
		}
	}

	summary := fmt.Sprintf("send tx on %s to %s value=%s wei gas=%d data=%d bytes",
		chain.NetworkName, addrString(req.To), value.String(), gas, len(req.Data))
	if err := l.approve(ctx, KindSendTx, summary); err != nil {
		return common.Hash{}, err
	}

	nonce, err := backend.PendingNonceAt(ctx, req.From)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "get nonce")
	}
	tipCap, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "suggest tip cap")
	}
	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "get latest header")
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(defaultFeeCapMultiplier))
	feeCap.Add(feeCap, tipCap)

	chainID := new(big.Int).SetUint64(chain.ChainID)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        req.To,
		Value:     value,
		Data:      req.Data,
	})

	signed, err := ethwallet.SignTx(ctx, signer, tx, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, FromRPCError(err)
	}

	log.Info("transaction sent", "hash", signed.Hash().Hex(), "network", chain.NetworkName, "nonce", nonce)
	return signed.Hash(), nil
}

func (l *Local) WatchAsset(ctx context.Context, params WatchAssetParams) (bool, error) {
	if !strings.EqualFold(params.Type, "ERC20") {
		return false, NewError(CodeInvalidParams, "only ERC20 assets are supported")
	}
	if params.Address == (common.Address{}) || strings.TrimSpace(params.Symbol) == "" {
		return false, NewError(CodeInvalidParams, "asset address and symbol are required")
	}
	if err := l.approve(ctx, KindWatchAsset, "add token "+params.Symbol+" at "+params.Address.Hex()); err != nil {
		return false, err
	}
	if l.assets == nil {
		return true, nil
	}

	_, chain, err := l.chains.Active()
	if err != nil {
		return false, NewError(CodeDisconnected, err.Error())
	}
	added, err := l.assets.AddAsset(ctx, chain.NetworkName, assets.Asset{
		Address:  params.Address.Hex(),
		Symbol:   params.Symbol,
		Decimals: params.Decimals,
		Image:    params.Image,
	})
	if err != nil {
		return false, &Error{Code: CodeInternal, Message: err.Error()}
	}
	if !added {
		log.Info("asset already watched", "symbol", params.Symbol, "network", chain.NetworkName)
	}
	return true, nil
}

func (l *Local) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return l.accountsFeed.Subscribe(ch)
}

func (l *Local) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return l.chainFeed.Subscribe(ch)
}

func (l *Local) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	backend, _, err := l.chains.Active()
	if err != nil {
		return nil, err
	}
	return backend.CallContract(ctx, call, blockNumber)
}

func (l *Local) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	backend, _, err := l.chains.Active()
	if err != nil {
		return nil, err
	}
	return backend.BalanceAt(ctx, account, blockNumber)
}

func (l *Local) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	backend, _, err := l.chains.Active()
	if err != nil {
		return nil, err
	}
	return backend.TransactionReceipt(ctx, txHash)
}

// SelectAccount switches the exposed account and notifies subscribers.
func (l *Local) SelectAccount(addr common.Address) error {
	l.mu.Lock()
	idx := -1
	for i, s := range l.signers {
		if s.Address() == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return errors.Newf("account %s is not in the keyring", addr.Hex())
	}
	changed := idx != l.selected
	l.selected = idx
	notify := changed && l.authorized
	l.mu.Unlock()

	if notify {
		l.accountsFeed.Send([]common.Address{addr})
	}
	return nil
}

// Lock revokes the connection; subscribers see an empty account list.
func (l *Local) Lock() {
	l.mu.Lock()
	was := l.authorized
	l.authorized = false
	l.mu.Unlock()

	if was {
		l.accountsFeed.Send([]common.Address{})
	}
}

// Addresses lists the keyring addresses, selected one first.
func (l *Local) Addresses() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []common.Address{l.signers[l.selected].Address()}
	for i, s := range l.signers {
		if i != l.selected {
			out = append(out, s.Address())
		}
	}
	return out
}

func (l *Local) authorizedSigner(from common.Address) (ethwallet.Signer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.authorized {
		return nil, NewError(CodeUnauthorized, "The requested account has not been authorized by the user.")
	}
	s := l.signers[l.selected]
	if from != (common.Address{}) && from != s.Address() {
		return nil, NewError(CodeUnauthorized, "from address "+from.Hex()+" is not the connected account")
	}
	return s, nil
}

func addrString(a *common.Address) string {
	if a == nil {
		return "<contract creation>"
	}
	return a.Hex()
}

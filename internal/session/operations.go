package session

import (
	"context"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/jingrm/jing-token-client/internal/provider"
	"github.com/jingrm/jing-token-client/internal/token"
	"github.com/jingrm/jing-token-client/internal/units"
)

// snapshot is what a write operation sees at precheck time.
type snapshot struct {
	address  common.Address
	contract *token.Contract
	view     TokenView
	decimals uint8
}

// precheck enforces WalletNotConnected then WrongNetwork, without any
// provider call.
func (s *Session) precheck(requireTarget bool) (snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provider == nil || s.state != Connected || s.binding == nil {
		return snapshot{}, errors.WithHint(ErrWalletNotConnected, "Connect the wallet first.")
	}
	if requireTarget && !s.isTarget {
		return snapshot{}, errors.WithHint(
			errors.Wrapf(ErrWrongNetwork, "wallet on chain %d, token on chain %d", s.chainID, s.targetID),
			"Switch the wallet to the target network.")
	}
	snap := snapshot{
		address:  s.address,
		contract: s.binding.contract,
		view:     s.view.clone(),
		decimals: s.decimals,
	}
	if snap.view.Loaded {
		snap.decimals = snap.view.Decimals
	}
	return snap, nil
}

func (snap snapshot) requireOwner() error {
	if !snap.view.IsCallerOwner {
		return errors.WithHint(ErrNotAuthorized, "Only the token owner can do this.")
	}
	return nil
}

// Transfer sends amount (display units) of the token to `to`.
func (s *Session) Transfer(ctx context.Context, to string, amount string) (common.Hash, error) {
	return s.track(OpTransfer, func() (common.Hash, error) {
		snap, err := s.precheck(true)
		if err != nil {
			return common.Hash{}, err
		}
		dst, err := parseAddress(to)
		if err != nil {
			return common.Hash{}, err
		}
		amt, err := units.ParseUnits(amount, snap.decimals)
		if err != nil {
			return common.Hash{}, invalidInput("amount: %v", err)
		}
		data, err := snap.contract.PackTransfer(dst, amt)
		if err != nil {
			return common.Hash{}, invalidInput("transfer: %v", err)
		}
		return s.submit(ctx, snap, nil, data)
	})
}

// Buy sends ethAmount to buyTokens().
func (s *Session) Buy(ctx context.Context, ethAmount string) (common.Hash, error) {
	return s.track(OpBuy, func() (common.Hash, error) {
		snap, err := s.precheck(true)
		if err != nil {
			return common.Hash{}, err
		}
		wei, err := units.ParseEther(ethAmount)
		if err != nil {
			return common.Hash{}, invalidInput("eth amount: %v", err)
		}
		data, err := snap.contract.PackBuyTokens()
		if err != nil {
			return common.Hash{}, err
		}
		return s.submit(ctx, snap, wei, data)
	})
}

// QuoteBuy estimates the smallest token units ethAmount buys at the current
// view price. Zero when the price is unknown.
func (s *Session) QuoteBuy(ethAmount string) (*big.Int, error) {
	wei, err := units.ParseEther(ethAmount)
	if err != nil {
		return nil, invalidInput("eth amount: %v", err)
	}
	v := s.View()
	if !v.Loaded {
		return new(big.Int), nil
	}
	return units.QuoteTokens(wei, v.PriceWei, v.Decimals), nil
}

// Mint mints amount to the caller.
func (s *Session) Mint(ctx context.Context, amount string) (common.Hash, error) {
	return s.mint(ctx, "", amount)
}

// MintTo mints amount to an explicit destination.
func (s *Session) MintTo(ctx context.Context, to string, amount string) (common.Hash, error) {
	return s.mint(ctx, to, amount)
}

func (s *Session) mint(ctx context.Context, to string, amount string) (common.Hash, error) {
	return s.track(OpMint, func() (common.Hash, error) {
		snap, err := s.precheck(true)
		if err != nil {
			return common.Hash{}, err
		}
		if err := snap.requireOwner(); err != nil {
			return common.Hash{}, err
		}
		dst := snap.address
		if strings.TrimSpace(to) != "" {
			if dst, err = parseAddress(to); err != nil {
				return common.Hash{}, err
			}
		}
		amt, err := units.ParseUnits(amount, snap.decimals)
		if err != nil {
			return common.Hash{}, invalidInput("amount: %v", err)
		}
		data, err := snap.contract.PackMint(dst, amt)
		if err != nil {
			return common.Hash{}, invalidInput("mint: %v", err)
		}
		return s.submit(ctx, snap, nil, data)
	})
}

// SetPrice sets the token price, given in ETH per whole token.
func (s *Session) SetPrice(ctx context.Context, newPriceEth string) (common.Hash, error) {
	return s.track(OpSetPrice, func() (common.Hash, error) {
		snap, err := s.precheck(true)
		if err != nil {
			return common.Hash{}, err
		}
		if err := snap.requireOwner(); err != nil {
			return common.Hash{}, err
		}
		priceWei, err := units.ParseEther(newPriceEth)
		if err != nil {
			return common.Hash{}, invalidInput("price: %v", err)
		}
		data, err := snap.contract.PackSetTokenPrice(priceWei)
		if err != nil {
			return common.Hash{}, invalidInput("setTokenPrice: %v", err)
		}
		return s.submit(ctx, snap, nil, data)
	})
}

// Withdraw moves the contract's ETH to the owner via withdrawETH().
func (s *Session) Withdraw(ctx context.Context) (common.Hash, error) {
	return s.track(OpWithdraw, func() (common.Hash, error) {
		snap, err := s.precheck(true)
		if err != nil {
			return common.Hash{}, err
		}
		if err := snap.requireOwner(); err != nil {
			return common.Hash{}, err
		}
		if snap.view.ContractEthBalance == nil || snap.view.ContractEthBalance.Sign() == 0 {
			return common.Hash{}, ErrNothingToWithdraw
		}
		data, err := snap.contract.PackWithdrawETH()
		if err != nil {
			return common.Hash{}, err
		}
		return s.submit(ctx, snap, nil, data)
	})
}

type ImportResult struct {
	Added   bool
	Message string
}

// ImportToFavorites asks the wallet to display the token. A wallet refusal
// is reported in the result, not as an error.
func (s *Session) ImportToFavorites(ctx context.Context) (ImportResult, error) {
	id := s.pending.Begin(OpImportToken)

	snap, err := s.precheck(false)
	if err != nil {
		s.pending.Finish(id, StatusFailed, err.Error())
		s.rec.OperationFinished(string(OpImportToken), resultOf(err))
		return ImportResult{}, err
	}

	symbol := s.cfg.DefaultSymbol
	if snap.view.Loaded && snap.view.Symbol != "" {
		symbol = snap.view.Symbol
	}

	ok, werr := s.provider.WatchAsset(ctx, provider.WatchAssetParams{
		Type:     "ERC20",
		Address:  s.cfg.ContractAddress,
		Symbol:   symbol,
		Decimals: snap.decimals,
		Image:    s.cfg.TokenImage,
	})

	var res ImportResult
	switch {
	case werr != nil:
		log.Info("watch asset not completed", "err", werr)
		res = ImportResult{Message: "Token was not added to the wallet: " + werr.Error()}
		s.pending.Finish(id, StatusFailed, res.Message)
	case !ok:
		res = ImportResult{Message: "Token was not added to the wallet."}
		s.pending.Finish(id, StatusFailed, res.Message)
	default:
		res = ImportResult{Added: true, Message: symbol + " added to the wallet."}
		s.pending.Finish(id, StatusSucceeded, res.Message)
	}
	s.rec.OperationFinished(string(OpImportToken), importResult(res))
	return res, nil
}

func (s *Session) track(kind OpKind, fn func() (common.Hash, error)) (common.Hash, error) {
	id := s.pending.Begin(kind)
	hash, err := fn()
	if err != nil {
		s.pending.Finish(id, StatusFailed, err.Error())
		log.Warn("operation failed", "op", kind, "kind", Kind(err), "err", err)
	} else {
		s.pending.Finish(id, StatusSucceeded, string(kind)+" confirmed: "+hash.Hex())
	}
	s.rec.OperationFinished(string(kind), resultOf(err))
	return hash, err
}

// submit broadcasts the call, waits for the receipt and then runs exactly
// one refresh. The view is never touched before confirmation.
func (s *Session) submit(ctx context.Context, snap snapshot, value *big.Int, data []byte) (common.Hash, error) {
	to := snap.contract.Address()
	req := provider.TxRequest{From: snap.address, To: &to, Value: value, Data: data}

	hash, err := s.provider.SendTransaction(ctx, req)
	if err != nil {
		return common.Hash{}, classifySendError(err)
	}
	log.Info("transaction submitted", "hash", hash.Hex())

	// the transaction is out; see it through even if the caller goes away
	ctx, cancel := s.untilClosed(ctx)
	defer cancel()

	receipt, err := s.waitMined(ctx, hash)
	if err != nil {
		return hash, errors.Wrapf(err, "wait for receipt of %s", hash.Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return hash, reverted(hash, s.replayRevert(ctx, req, receipt.BlockNumber))
	}

	if err := s.Refresh(ctx); err != nil {
		log.Warn("post-confirmation refresh failed", "hash", hash.Hex(), "err", err)
	}
	return hash, nil
}

// untilClosed keeps ctx's values but ends only when the session closes.
func (s *Session) untilClosed(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.baseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for {
		receipt, err := s.provider.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.Warn("receipt lookup failed, retrying", "hash", hash.Hex(), "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.clock.After(s.cfg.ReceiptPoll):
		}
	}
}

// replayRevert re-runs the failed call at its block to recover the reason.
func (s *Session) replayRevert(ctx context.Context, req provider.TxRequest, block *big.Int) string {
	_, err := s.provider.CallContract(ctx, req.CallMsg(), block)
	if err == nil {
		return ""
	}
	return revertReason(err)
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, invalidInput("address %q is not a 20-byte hex address", s)
	}
	a := common.HexToAddress(s)
	if a == (common.Address{}) {
		return common.Address{}, invalidInput("address must not be the zero address")
	}
	return a, nil
}

func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	if k := Kind(err); k != "" {
		return k
	}
	return "error"
}

func importResult(r ImportResult) string {
	if r.Added {
		return "ok"
	}
	return "declined"
}

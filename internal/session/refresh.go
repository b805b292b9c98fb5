package session

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"golang.org/x/sync/errgroup"
)

const (
	refreshApplied   = "applied"
	refreshDiscarded = "discarded"
	refreshFailed    = "failed"
	refreshSkipped   = "skipped"
)

// Refresh reloads the token view. It is skipped (nil) unless connected on
// the target chain. The result is applied only if no newer refresh was
// started and no chain or account change happened meanwhile.
func (s *Session) Refresh(ctx context.Context) error {
	start := s.clock.Now()

	s.mu.Lock()
	if s.state != Connected || !s.isTarget || s.binding == nil {
		s.mu.Unlock()
		s.rec.RefreshFinished(refreshSkipped, 0)
		return nil
	}
	s.refreshSeq++
	seq := s.refreshSeq
	b := s.binding
	caller := s.address
	s.mu.Unlock()

	view, err := s.load(ctx, b, caller)
	elapsed := s.clock.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.rec.RefreshFinished(refreshFailed, elapsed)
		return mark(err, ErrRpcUnavailable, "refresh token view")
	}
	if seq != s.refreshSeq || b.epoch != s.epoch {
		log.Info("discarding superseded refresh", "seq", seq, "latest", s.refreshSeq)
		s.rec.RefreshFinished(refreshDiscarded, elapsed)
		return nil
	}

	view.Seq = seq
	s.view = view
	s.rec.RefreshFinished(refreshApplied, elapsed)
	return nil
}

// RefreshBalance is Refresh registered as a banner operation.
func (s *Session) RefreshBalance(ctx context.Context) error {
	id := s.pending.Begin(OpRefreshBalance)
	err := s.Refresh(ctx)
	if err != nil {
		s.pending.Finish(id, StatusFailed, err.Error())
	} else {
		s.pending.Finish(id, StatusSucceeded, "Balances updated")
	}
	s.rec.OperationFinished(string(OpRefreshBalance), resultOf(err))
	return err
}

func (s *Session) load(ctx context.Context, b *binding, caller common.Address) (TokenView, error) {
	var v TokenView
	c := b.contract

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		v.Symbol, err = c.Symbol(gctx)
		return errors.Wrap(err, "symbol")
	})
	g.Go(func() (err error) {
		v.Decimals, err = c.Decimals(gctx)
		return errors.Wrap(err, "decimals")
	})
	g.Go(func() (err error) {
		v.TotalSupply, err = c.TotalSupply(gctx)
		return errors.Wrap(err, "totalSupply")
	})
	g.Go(func() (err error) {
		v.CallerBalance, err = c.BalanceOf(gctx, caller)
		return errors.Wrap(err, "balanceOf")
	})
	g.Go(func() (err error) {
		v.Owner, err = c.Owner(gctx)
		return errors.Wrap(err, "owner")
	})
	g.Go(func() (err error) {
		v.PriceWei, err = c.TokenPrice(gctx)
		return errors.Wrap(err, "tokenPrice")
	})
	g.Go(func() (err error) {
		v.ContractEthBalance, err = s.provider.BalanceAt(gctx, c.Address(), nil)
		return errors.Wrap(err, "contract eth balance")
	})
	if err := g.Wait(); err != nil {
		return TokenView{}, err
	}

	v.IsCallerOwner = v.Owner == caller
	v.Loaded = true
	return v, nil
}

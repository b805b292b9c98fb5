package session

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/jingrm/jing-token-client/internal/chains"
	"github.com/jingrm/jing-token-client/internal/provider"
)

type SwitchOutcome string

const (
	// SwitchConfirmed means the wallet reported the target chain.
	SwitchConfirmed SwitchOutcome = "confirmed"
	// SwitchIndeterminate means the wallet accepted the request but did
	// not report the target chain within the wait window.
	SwitchIndeterminate SwitchOutcome = "indeterminate"
)

// SwitchNetwork asks the wallet to move to the target chain, adding the
// chain first when the wallet does not know it. Confirmation comes from the
// wallet's chainChanged push; after SwitchWait a single eth_chainId poll
// decides between confirmed and indeterminate.
func (s *Session) SwitchNetwork(ctx context.Context) (SwitchOutcome, error) {
	if s.provider == nil {
		return "", errors.WithHint(ErrProviderAbsent, "Install or unlock a wallet.")
	}
	s.subscribeOnce.Do(s.subscribe)

	s.mu.Lock()
	if s.isTarget {
		s.mu.Unlock()
		return SwitchConfirmed, nil
	}
	waiter := s.chainChanged
	s.mu.Unlock()

	target := s.cfg.TargetChain.ChainIDHex
	err := s.provider.SwitchChain(ctx, target)
	if err != nil {
		code, _ := provider.CodeOf(err)
		if code != provider.CodeUnrecognizedChain {
			return "", classifySwitchError(err)
		}

		log.Info("target chain unknown to wallet, adding it", "chainId", target)
		if addErr := s.provider.AddChain(ctx, s.cfg.TargetChain); addErr != nil {
			if c, _ := provider.CodeOf(addErr); c == provider.CodeUserRejected {
				return "", mark(addErr, ErrSwitchRejected, "add chain")
			}
			return "", errors.WithHint(mark(addErr, ErrUnknownChain, "add chain"), "Add the network in the wallet manually.")
		}
		if err := s.provider.SwitchChain(ctx, target); err != nil {
			return "", classifySwitchError(err)
		}
	}

	return s.awaitTargetChain(ctx, waiter)
}

func (s *Session) awaitTargetChain(ctx context.Context, waiter chan struct{}) (SwitchOutcome, error) {
	timer := s.clock.NewTimer(s.cfg.SwitchWait)
	defer timer.Stop()

	for {
		select {
		case <-waiter:
			s.mu.Lock()
			ok := s.isTarget
			waiter = s.chainChanged
			s.mu.Unlock()
			if ok {
				return SwitchConfirmed, nil
			}
		case <-timer.Chan():
			return s.pollChain(ctx), nil
		case <-ctx.Done():
			return SwitchIndeterminate, ctx.Err()
		}
	}
}

// pollChain is the fallback when no chainChanged arrived in time.
func (s *Session) pollChain(ctx context.Context) SwitchOutcome {
	id, err := s.provider.ChainID(ctx)
	if err != nil {
		log.Warn("chain id poll after switch failed", "err", err)
		return SwitchIndeterminate
	}

	s.mu.Lock()
	known := s.chainID
	s.mu.Unlock()
	if id.Uint64() != known {
		// the wallet moved without telling us
		s.handleChainChanged(id.Uint64())
	}

	if id.Uint64() == s.targetID {
		return SwitchConfirmed
	}
	log.Warn("network switch not confirmed", "chainId", chains.ChainIDHex(id.Uint64()), "target", s.cfg.TargetChain.ChainIDHex)
	return SwitchIndeterminate
}

func classifySwitchError(err error) error {
	code, _ := provider.CodeOf(err)
	switch code {
	case provider.CodeUnrecognizedChain:
		return mark(err, ErrUnknownChain, "switch chain")
	default:
		return errors.WithHint(mark(err, ErrSwitchRejected, "switch chain"), "Approve the network switch in the wallet.")
	}
}

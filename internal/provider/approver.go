package provider

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

type RequestKind string

const (
	KindConnect     RequestKind = "connect"
	KindSwitchChain RequestKind = "switch_chain"
	KindAddChain    RequestKind = "add_chain"
	KindSendTx      RequestKind = "send_transaction"
	KindWatchAsset  RequestKind = "watch_asset"
)

// ApprovalRequest is what the user is asked to confirm.
type ApprovalRequest struct {
	Kind    RequestKind
	Summary string
}

// Approver stands in for the wallet's confirmation popup.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (bool, error)
}

type ApproverFunc func(ctx context.Context, req ApprovalRequest) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) (bool, error) {
	return f(ctx, req)
}

// AutoApprove confirms everything.
type AutoApprove struct{}

func (AutoApprove) Approve(context.Context, ApprovalRequest) (bool, error) { return true, nil }

// PromptApprover asks on a terminal. Prompts are serialized.
type PromptApprover struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewPromptApprover(in io.Reader, out io.Writer) *PromptApprover {
	return &PromptApprover{in: bufio.NewReader(in), out: out}
}

func (p *PromptApprover) Approve(ctx context.Context, req ApprovalRequest) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	type answer struct {
		line string
		err  error
	}
	done := make(chan answer, 1)

	if _, err := fmt.Fprintf(p.out, "\n[%s] %s\nApprove? [y/N]: ", req.Kind, req.Summary); err != nil {
		return false, errors.Wrap(err, "write prompt")
	}
	go func() {
		line, err := p.in.ReadString('\n')
		done <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-done:
		if a.err != nil && a.line == "" {
			return false, errors.Wrap(a.err, "read answer")
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

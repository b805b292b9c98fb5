package session

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jingrm/jing-token-client/internal/provider"
	"github.com/jingrm/jing-token-client/internal/token"
)

// Error kinds. Match with errors.Is; the returned errors carry the
// underlying cause and, where the user can act on it, a hint.
var (
	ErrProviderAbsent      = errors.New("no wallet provider available")
	ErrUserRejected        = errors.New("request rejected in wallet")
	ErrNoAccounts          = errors.New("wallet returned no accounts")
	ErrWrongNetwork        = errors.New("wallet is not on the target network")
	ErrSwitchRejected      = errors.New("network switch rejected")
	ErrUnknownChain        = errors.New("wallet does not know the target network")
	ErrInvalidInput        = errors.New("invalid input")
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrNotAuthorized       = errors.New("caller is not the token owner")
	ErrInsufficientFunds   = errors.New("insufficient funds for value and gas")
	ErrNothingToWithdraw   = errors.New("contract holds no ETH to withdraw")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrRpcUnavailable      = errors.New("rpc unavailable")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrProviderAbsent, "ProviderAbsent"},
	{ErrUserRejected, "UserRejected"},
	{ErrNoAccounts, "NoAccounts"},
	{ErrWrongNetwork, "WrongNetwork"},
	{ErrSwitchRejected, "SwitchRejected"},
	{ErrUnknownChain, "UnknownChain"},
	{ErrInvalidInput, "InvalidInput"},
	{ErrWalletNotConnected, "WalletNotConnected"},
	{ErrNotAuthorized, "NotAuthorized"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrNothingToWithdraw, "NothingToWithdraw"},
	{ErrTransactionReverted, "TransactionReverted"},
	{ErrRpcUnavailable, "RpcUnavailable"},
}

// Kind names the taxonomy kind of err, or "" when err is none of them.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// RevertError carries the revert reason of a failed transaction.
type RevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	var b strings.Builder
	b.WriteString("transaction reverted")
	if e.TxHash != (common.Hash{}) {
		fmt.Fprintf(&b, " (tx %s)", e.TxHash.Hex())
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// kindError tags a cause with one of the kinds above. Is matches the kind;
// Unwrap yields the cause.
type kindError struct {
	cause error
	kind  error
}

func (e *kindError) Error() string        { return e.cause.Error() }
func (e *kindError) Unwrap() error        { return e.cause }
func (e *kindError) Is(target error) bool { return target == e.kind }

// mark attaches kind to cause; a nil cause yields the bare kind.
func mark(cause error, kind error, msg string) error {
	if cause == nil {
		return errors.Wrap(kind, msg)
	}
	return &kindError{cause: errors.Wrap(cause, msg), kind: kind}
}

func invalidInput(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

func reverted(hash common.Hash, reason string) error {
	return &kindError{cause: &RevertError{TxHash: hash, Reason: reason}, kind: ErrTransactionReverted}
}

// classifySendError maps an eth_sendTransaction failure onto the taxonomy.
func classifySendError(err error) error {
	code, _ := provider.CodeOf(err)
	lower := strings.ToLower(err.Error())

	switch {
	case code == provider.CodeUserRejected:
		return mark(err, ErrUserRejected, "send transaction")
	case code == provider.CodeUnauthorized:
		return errors.WithHint(mark(err, ErrWalletNotConnected, "send transaction"), "Reconnect the wallet and retry.")
	case strings.Contains(lower, "insufficient funds"):
		return errors.WithHint(mark(err, ErrInsufficientFunds, "send transaction"), "Top up ETH for value plus gas.")
	case code == provider.CodeExecutionReverted || strings.Contains(lower, "execution reverted"):
		return reverted(common.Hash{}, revertReason(err))
	default:
		return mark(err, ErrRpcUnavailable, "send transaction")
	}
}

// revertReason prefers decoded Error(string) data over the node's message.
func revertReason(err error) string {
	if data := provider.DataOf(err); len(data) > 0 {
		if reason, ok := token.UnpackRevert(data); ok {
			return reason
		}
	}
	var pe *provider.Error
	msg := err.Error()
	if errors.As(err, &pe) {
		msg = pe.Message
	}
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		msg = strings.TrimPrefix(strings.TrimSpace(msg[i+len("execution reverted"):]), ":")
	}
	return strings.TrimSpace(msg)
}

// Package provider defines the wallet capability set the session consumes
// and a local implementation backed by an encrypted keyring.
package provider

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/jingrm/jing-token-client/internal/chains"
)

// EIP-1193 and JSON-RPC error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
	CodeExecutionReverted = 3
	CodeServerError       = -32000
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
)

// Error is a provider failure carrying its EIP-1193 code.
type Error struct {
	Code    int
	Message string
	Data    []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode lets Error satisfy go-ethereum's rpc.Error.
func (e *Error) ErrorCode() int { return e.Code }

func (e *Error) ErrorData() interface{} {
	if len(e.Data) == 0 {
		return nil
	}
	return hexutil.Encode(e.Data)
}

func NewError(code int, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CodeOf extracts an EIP-1193 / JSON-RPC code from err.
func CodeOf(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// DataOf extracts revert data attached to err, if any.
func DataOf(err error) []byte {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil
	}
	switch v := de.ErrorData().(type) {
	case string:
		b, decErr := hexutil.Decode(v)
		if decErr != nil {
			return nil
		}
		return b
	case []byte:
		return v
	}
	return nil
}

// FromRPCError normalizes a node error into an *Error.
func FromRPCError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	out := &Error{Code: CodeInternal, Message: err.Error(), Data: DataOf(err)}
	if code, ok := CodeOf(err); ok {
		out.Code = code
	}
	lower := strings.ToLower(out.Message)
	switch {
	case strings.Contains(lower, "insufficient funds"):
		out.Code = CodeServerError
	case out.Code == CodeExecutionReverted || strings.Contains(lower, "execution reverted"):
		out.Code = CodeExecutionReverted
	}
	return out
}

// TxRequest mirrors the eth_sendTransaction parameter object.
type TxRequest struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
	Gas   uint64
}

// CallMsg is the read-only form of the request, used for gas estimation
// and revert replays.
func (r TxRequest) CallMsg() ethereum.CallMsg {
	return ethereum.CallMsg{From: r.From, To: r.To, Value: r.Value, Data: r.Data, Gas: r.Gas}
}

// AddChainParams mirrors wallet_addEthereumChain.
type AddChainParams struct {
	ChainIDHex        string
	ChainName         string
	NativeCurrency    chains.NativeCurrency
	RPCURLs           []string
	BlockExplorerURLs []string
}

// WatchAssetParams mirrors wallet_watchAsset for ERC20 tokens.
type WatchAssetParams struct {
	Type     string
	Address  common.Address
	Symbol   string
	Decimals uint8
	Image    string
}

// Provider is the wallet surface. Implementations must be safe for
// concurrent use.
type Provider interface {
	// RequestAccounts may prompt the user (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts never prompts (eth_accounts).
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainIDHex string) error
	AddChain(ctx context.Context, params AddChainParams) error
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	WatchAsset(ctx context.Context, params WatchAssetParams) (bool, error)

	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription
	SubscribeChainChanged(ch chan<- *big.Int) event.Subscription

	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

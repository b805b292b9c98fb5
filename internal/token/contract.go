// Package token binds the JING ERC20 contract: typed read calls over any
// ethereum.ContractCaller and calldata packers for the write entry points.
package token

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	parsedOnce sync.Once
	parsedABI  abi.ABI
	parsedErr  error
)

// ABI returns the parsed JING interface.
func ABI() (*abi.ABI, error) {
	parsedOnce.Do(func() {
		parsedABI, parsedErr = abi.JSON(strings.NewReader(JingABI))
	})
	if parsedErr != nil {
		return nil, errors.Wrap(parsedErr, "parse jing abi")
	}
	return &parsedABI, nil
}

// Contract is a read binding to one deployed token. It is immutable; callers
// swap the whole value when the address or backend changes.
type Contract struct {
	address common.Address
	caller  ethereum.ContractCaller
	abi     *abi.ABI
}

func NewContract(address common.Address, caller ethereum.ContractCaller) (*Contract, error) {
	if caller == nil {
		return nil, errors.New("token: nil contract caller")
	}
	parsed, err := ABI()
	if err != nil {
		return nil, err
	}
	return &Contract{address: address, caller: caller, abi: parsed}, nil
}

func (c *Contract) Address() common.Address { return c.address }

func (c *Contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	msg := ethereum.CallMsg{To: &c.address, Data: input}
	raw, err := c.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	if len(raw) == 0 {
		return nil, errors.Newf("call %s: empty result (no contract at %s?)", method, c.address.Hex())
	}
	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	if len(out) == 0 {
		return nil, errors.Newf("unpack %s: no outputs", method)
	}
	return out, nil
}

func (c *Contract) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Newf("%s: unexpected output type %T", method, out[0])
	}
	return v, nil
}

func (c *Contract) Name(ctx context.Context) (string, error) {
	out, err := c.call(ctx, MethodName)
	if err != nil {
		return "", err
	}
	s, _ := out[0].(string)
	return s, nil
}

func (c *Contract) Symbol(ctx context.Context) (string, error) {
	out, err := c.call(ctx, MethodSymbol)
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", errors.Newf("symbol: unexpected output type %T", out[0])
	}
	return s, nil
}

func (c *Contract) Decimals(ctx context.Context) (uint8, error) {
	out, err := c.call(ctx, MethodDecimals)
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, errors.Newf("decimals: unexpected output type %T", out[0])
	}
	return d, nil
}

func (c *Contract) TotalSupply(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, MethodTotalSupply)
}

func (c *Contract) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.callBig(ctx, MethodBalanceOf, account)
}

func (c *Contract) TokenPrice(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, MethodTokenPrice)
}

func (c *Contract) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, MethodOwner)
	if err != nil {
		return common.Address{}, err
	}
	a, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errors.Newf("owner: unexpected output type %T", out[0])
	}
	return a, nil
}

func (c *Contract) pack(method string, args ...interface{}) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	return data, nil
}

func (c *Contract) PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return c.pack(MethodTransfer, to, amount)
}

func (c *Contract) PackMint(to common.Address, amount *big.Int) ([]byte, error) {
	return c.pack(MethodMint, to, amount)
}

func (c *Contract) PackBuyTokens() ([]byte, error) {
	return c.pack(MethodBuyTokens)
}

func (c *Contract) PackSetTokenPrice(priceWei *big.Int) ([]byte, error) {
	return c.pack(MethodSetTokenPrice, priceWei)
}

func (c *Contract) PackWithdrawETH() ([]byte, error) {
	return c.pack(MethodWithdrawETH)
}

// UnpackRevert decodes an Error(string) revert payload.
func UnpackRevert(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}
	return reason, true
}

// Package units converts between display strings and integer amounts in a
// token's smallest unit. Arithmetic only ever happens on *big.Int.
package units

import (
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/jingrm/jing-token-client/internal/constants"
)

var (
	ErrMalformed     = errors.New("amount is not a decimal number")
	ErrNotPositive   = errors.New("amount must be greater than zero")
	ErrPrecisionLoss = errors.New("amount has more fractional digits than the unit allows")
	ErrOutOfRange    = errors.New("amount does not fit in uint256")
)

const maxUintBits = 256

// ParseUnits converts a positive display amount such as "1.5" into smallest
// units for the given decimals. Inputs that would need rounding are rejected.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.Wrap(ErrMalformed, "empty amount")
	}
	// decimal accepts exponents; display amounts never carry one
	if strings.ContainsAny(s, "eE") {
		return nil, errors.Wrapf(ErrMalformed, "%q", s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%q", s)
	}
	if !d.IsPositive() {
		return nil, errors.Wrapf(ErrNotPositive, "%q", s)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, errors.Wrapf(ErrPrecisionLoss, "%q with %d decimals", s, decimals)
	}
	v := scaled.BigInt()
	if v.BitLen() > maxUintBits {
		return nil, errors.Wrapf(ErrOutOfRange, "%q with %d decimals", s, decimals)
	}
	return v, nil
}

// ParseEther converts an ETH display amount into wei.
func ParseEther(s string) (*big.Int, error) {
	return ParseUnits(s, constants.EtherDecimals)
}

// FormatUnits renders amount / 10^decimals with at most maxFrac fractional
// digits, trailing zeros removed. Truncates, never rounds up.
//
//	1234500000000000000, 18 -> "1.2345"
//	1000000000000000000, 18 -> "1"
func FormatUnits(amount *big.Int, decimals uint8, maxFrac int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}

	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)

	base := pow10(decimals)
	intPart, fracPart := new(big.Int).QuoRem(abs, base, new(big.Int))

	out := intPart.String()
	if fracPart.Sign() != 0 && maxFrac > 0 {
		fracStr := fracPart.String()
		if len(fracStr) < int(decimals) {
			fracStr = strings.Repeat("0", int(decimals)-len(fracStr)) + fracStr
		}
		if len(fracStr) > maxFrac {
			fracStr = fracStr[:maxFrac]
		}
		if fracStr = strings.TrimRight(fracStr, "0"); fracStr != "" {
			out += "." + fracStr
		}
	}
	if neg {
		out = "-" + out
	}
	return out
}

// FormatEther is FormatUnits for wei amounts.
func FormatEther(wei *big.Int, maxFrac int) string {
	return FormatUnits(wei, constants.EtherDecimals, maxFrac)
}

// QuoteTokens returns how many smallest token units wei buys at priceWei per
// whole token: wei * 10^decimals / priceWei, rounded down. Zero price quotes zero.
func QuoteTokens(wei, priceWei *big.Int, decimals uint8) *big.Int {
	if wei == nil || priceWei == nil || priceWei.Sign() <= 0 || wei.Sign() <= 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(wei, pow10(decimals))
	return num.Quo(num, priceWei)
}

// RatePerEth returns the number of whole tokens one ETH buys, as a display string.
func RatePerEth(priceWei *big.Int, decimals uint8, maxFrac int) string {
	oneEth := pow10(constants.EtherDecimals)
	return FormatUnits(QuoteTokens(oneEth, priceWei, decimals), decimals, maxFrac)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

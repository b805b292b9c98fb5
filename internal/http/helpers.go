package http

import (
	"math/big"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/jingrm/jing-token-client/internal/session"
)

// statusFor maps a session error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrWalletNotConnected):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, session.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, session.ErrWrongNetwork),
		errors.Is(err, session.ErrNothingToWithdraw),
		errors.Is(err, session.ErrNoAccounts):
		return http.StatusConflict
	case errors.Is(err, session.ErrUserRejected),
		errors.Is(err, session.ErrSwitchRejected),
		errors.Is(err, session.ErrUnknownChain):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrProviderAbsent):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrTransactionReverted),
		errors.Is(err, session.ErrRpcUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), errorRes{
		Error: err.Error(),
		Kind:  session.Kind(err),
		Hint:  errors.FlattenHints(err),
	})
}

func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorRes{Error: err.Error(), Kind: "InvalidInput"})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeBindError(c, err)
		return false
	}
	return true
}

// writeTx writes the outcome of a confirmed write operation.
func writeTx(c *gin.Context) func(common.Hash, error) {
	return func(hash common.Hash, err error) {
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, txRes{TxHash: hash.Hex()})
	}
}

func bigString(x *big.Int) string {
	if x == nil {
		return ""
	}
	return x.String()
}

package exchange

import (
	"errors"
	"fmt"
)

// Typed outcomes surfaced to callers. Transient and clock-drift failures are
// resolved inside the gateway and never reach this level.
var (
	// ErrInsufficientFunds marks an order rejected for lack of balance. The
	// caller skips the affected rung instead of retrying.
	ErrInsufficientFunds = errors.New("exchange: insufficient funds")

	// ErrIgnored marks an expected rejection, e.g. canceling an order that
	// already settled. Callers treat it as a no-op.
	ErrIgnored = errors.New("exchange: ignorable rejection")
)

// FatalError aborts the whole operation; the tick loop stops on it.
type FatalError struct {
	Code    string
	Message string
}

func (e *FatalError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exchange: fatal error %s", e.Code)
	}
	return fmt.Sprintf("exchange: fatal error %s: %s", e.Code, e.Message)
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// recovery classifies how a gateway call should proceed after an exchange
// error response.
type recovery int

const (
	recoverRetry recovery = iota
	recoverSyncTime
	recoverFatal
	recoverIgnore
	recoverOutOfMoney
)

// classifyCode maps exchange error codes onto a recovery strategy. Unknown
// codes are ignored rather than fatal so a new rejection code cannot take the
// bot down.
func classifyCode(code string) recovery {
	switch code {
	case "SERVER_UNKNOWN", "GET_ORDER_FAILED":
		return recoverRetry
	case "SERVER_FUTURE_TIMESTAMP", "SERVER_LATE_TIMESTAMP":
		return recoverSyncTime
	case "REQUEST_UNAUTHENTICATED",
		"REQUEST_PARSE_ERROR",
		"REQUEST_MISSING_PARAMETER",
		"REQUEST_BAD_PARAMETER",
		"REQUEST_EXTRA_PARAMETER",
		"REQUEST_UNSUPPORTED_SYMBOL",
		"REQUEST_UNSUPPORTED_ASSET",
		"REQUEST_UNSUPPORTED_LIMIT":
		return recoverFatal
	case "INSUFFICIENT_BALANCE", "REQUEST_MINIMUM_ORDER":
		return recoverOutOfMoney
	case "CANCEL_INVALID", "CANCEL_UNAUTHORIZED", "CANCEL_UNKNOWN",
		"NOT_ALLOWED_TO_TRADE":
		return recoverIgnore
	default:
		return recoverIgnore
	}
}

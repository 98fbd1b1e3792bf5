package ledger

import "errors"

// Error kinds surfaced by the ledger. Operations wrap these with context;
// test with errors.Is. Only ErrTransient is worth retrying.
var (
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrUnavailable        = errors.New("grid unavailable for trading")
	ErrInsufficientSupply = errors.New("insufficient supply")
	ErrSelfTrade          = errors.New("cannot buy from own grid")
	ErrTransient          = errors.New("transient failure")
)

// Kind maps an error to its stable code. Unknown errors are INTERNAL.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, ErrUnavailable):
		return "UNAVAILABLE"
	case errors.Is(err, ErrInsufficientSupply):
		return "INSUFFICIENT_SUPPLY"
	case errors.Is(err, ErrSelfTrade):
		return "SELF_TRADE"
	case errors.Is(err, ErrTransient):
		return "TRANSIENT"
	default:
		return "INTERNAL"
	}
}

// Retryable reports whether the caller may retry err with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

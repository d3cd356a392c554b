package chat

import "errors"

var (
	ErrUnauthenticated  = errors.New("login required")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrAuth             = errors.New("authentication failed")
	ErrBadRequest       = errors.New("bad request")
)

// errorCode maps an action failure to the code carried by an ERROR event.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrBadRequest):
		return "BAD_REQUEST"
	case errors.Is(err, ErrAuth):
		return "AUTH_FAILED"
	case errors.Is(err, ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

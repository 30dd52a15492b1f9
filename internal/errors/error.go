package errors

import (
	"errors"
	"fmt"
)

// Kinds. Domain errors wrap one of these so callers can classify them with
// errors.Is.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUpstream          = errors.New("upstream error")
	ErrDataInconsistency = errors.New("data inconsistency")
)

var (
	ErrEmptyAuth       = fmt.Errorf("%w: missing authorization", ErrUnauthenticated)
	ErrTokenInvalid    = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	ErrBadCredentials  = fmt.Errorf("%w: email or password mismatch", ErrUnauthenticated)
	ErrSignature       = fmt.Errorf("%w: invalid webhook signature", ErrUnauthenticated)
	ErrAdminOnly       = fmt.Errorf("%w: admin role required", ErrForbidden)
	ErrCartNotFound    = fmt.Errorf("%w: cart not found", ErrNotFound)
	ErrCartItemMissing = fmt.Errorf("%w: product is not in cart", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("%w: product not found", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("%w: order not found", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrEmailTaken      = fmt.Errorf("%w: email already registered", ErrConflict)
)

var kinds = []error{
	ErrInvalidArgument,
	ErrUnauthenticated,
	ErrForbidden,
	ErrNotFound,
	ErrConflict,
	ErrUpstream,
	ErrDataInconsistency,
}

// Kind returns the kind sentinel err wraps, or nil when it wraps none.
func Kind(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

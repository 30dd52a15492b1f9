package auth

import (
	"context"

	inErrors "github.com/Alturino/storefront/internal/errors"
)

type principalKey struct{}

func AttachPrincipal(c context.Context, principal Principal) context.Context {
	return context.WithValue(c, principalKey{}, principal)
}

func PrincipalFromContext(c context.Context) (Principal, error) {
	principal, ok := c.Value(principalKey{}).(Principal)
	if !ok {
		return Principal{}, inErrors.ErrEmptyAuth
	}
	return principal, nil
}

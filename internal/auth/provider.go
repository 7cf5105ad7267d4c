package auth

import (
	"context"

	"github.com/yourname/focustracker/internal"
)

// Provider resolves a bearer token to the user it belongs to.
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*internal.User, error)
}

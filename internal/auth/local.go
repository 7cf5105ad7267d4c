package auth

import (
	"context"

	"github.com/yourname/focustracker/internal"
)

// LocalProvider accepts a single static token and maps it to a demo user.
// Development mode only.
type LocalProvider struct {
	Token  string
	logger internal.Logger
}

func NewLocalProvider(token string, logger internal.Logger) *LocalProvider {
	return &LocalProvider{Token: token, logger: logger}
}

func (a *LocalProvider) ValidateToken(_ context.Context, token string) (*internal.User, error) {
	if token == a.Token {
		return &internal.User{ID: "u1", Username: "demo", DisplayName: "Demo User"}, nil
	}
	a.logger.Warnf("invalid token: %s", token)
	return nil, internal.ErrInvalidToken
}

var _ Provider = (*LocalProvider)(nil)

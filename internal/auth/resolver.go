package auth

import (
	"context"
	"fmt"

	"github.com/lalith-99/strangersmeet/internal/apperr"
	"github.com/lalith-99/strangersmeet/internal/models"
	"github.com/lalith-99/strangersmeet/internal/repository"
)

// TokenResolver maps an access token to the active user it was issued for.
type TokenResolver struct {
	secret string
	users  repository.UserRepository
}

func NewTokenResolver(secret string, users repository.UserRepository) *TokenResolver {
	return &TokenResolver{secret: secret, users: users}
}

// ResolveIdentity fails with apperr.ErrUnauthenticated for a bad or expired
// token, an unknown user, or a deactivated user. Any other error is a
// storage failure.
func (r *TokenResolver) ResolveIdentity(ctx context.Context, credential string) (*models.User, error) {
	if credential == "" {
		return nil, fmt.Errorf("empty credential: %w", apperr.ErrUnauthenticated)
	}

	claims, err := ParseToken(credential, r.secret)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrUnauthenticated)
	}

	user, err := r.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %s: %w", claims.UserID, apperr.ErrUnauthenticated)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("inactive user %s: %w", claims.UserID, apperr.ErrUnauthenticated)
	}
	return user, nil
}

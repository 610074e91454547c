package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cwrk-planet/plan-chat/internal/domain"
)

type AuthService struct {
	verifier TokenVerifier
	users    UserDirectory
}

func NewAuthService(verifier TokenVerifier, users UserDirectory) *AuthService {
	return &AuthService{verifier: verifier, users: users}
}

// Authenticate validates an access token and resolves its subject. Token
// problems and unknown subjects wrap domain.ErrUnauthenticated; directory
// outages are returned as is.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)
	}

	claims, err := s.verifier.ParseAndValidate(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	id, err := s.users.User(ctx, claims.Subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("resolve subject: %w", err)
	}
	return id, nil
}

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// Service handles registration, login, and token validation. Tokens are
// HS256 JWTs backed by an AuthSession row, so logout and expiry sweeps can
// revoke them server-side.
type Service struct {
	secret   []byte
	tokenTTL time.Duration
	users    storage.UserRepository
	sessions storage.AuthSessionRepository
	prefs    storage.PreferenceRepository
	stats    storage.StatsRepository
	logger   internal.Logger
	now      func() time.Time
}

func NewService(secret string, ttl time.Duration, users storage.UserRepository,
	sessions storage.AuthSessionRepository, prefs storage.PreferenceRepository,
	stats storage.StatsRepository, logger internal.Logger) *Service {
	return &Service{
		secret:   []byte(secret),
		tokenTTL: ttl,
		users:    users,
		sessions: sessions,
		prefs:    prefs,
		stats:    stats,
		logger:   logger,
		now:      time.Now,
	}
}

type RegisterInput struct {
	Username    string `json:"username" validate:"required,min=3,max=32"`
	DisplayName string `json:"display_name" validate:"required"`
	Password    string `json:"password" validate:"required,min=8"`
}

// Register creates the user plus its default preferences and an empty stats
// row, so every later read path can assume both exist.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*internal.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now()
	user := &internal.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		DisplayName:  in.DisplayName,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	if err := s.prefs.SavePreferences(ctx, internal.DefaultPreferences(user.ID, now)); err != nil {
		s.logger.Errorf("failed to create default preferences for %s: %v", user.ID, err)
	}
	if err := s.stats.SaveStats(ctx, &internal.UserStats{UserID: user.ID, UpdatedAt: now}); err != nil {
		s.logger.Errorf("failed to create empty stats for %s: %v", user.ID, err)
	}
	return user, nil
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, in LoginInput) (string, *internal.User, error) {
	user, err := s.users.GetUserByUsername(ctx, in.Username)
	if err != nil {
		return "", nil, internal.ErrInvalidToken
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return "", nil, internal.ErrInvalidToken
	}
	now := s.now()
	expires := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	if err := s.sessions.SaveAuthSession(ctx, &internal.AuthSession{
		Token:     claims.ID,
		UserID:    user.ID,
		ExpiresAt: expires,
		CreatedAt: now,
	}); err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Logout revokes the auth session behind a token.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return internal.ErrInvalidToken
	}
	return s.sessions.DeleteAuthSession(ctx, claims.ID)
}

// ValidateToken implements Provider.
func (s *Service) ValidateToken(ctx context.Context, token string) (*internal.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, internal.ErrInvalidToken
	}
	authSess, err := s.sessions.GetAuthSession(ctx, claims.ID)
	if err != nil || authSess.Expired(s.now()) {
		return nil, internal.ErrInvalidToken
	}
	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, internal.ErrInvalidToken
	}
	return user, nil
}

func (s *Service) parse(token string) (*jwt.RegisteredClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, internal.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}

var _ Provider = (*Service)(nil)

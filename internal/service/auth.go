package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/skywatch-labs/skywatch/internal/model"
	"github.com/skywatch-labs/skywatch/internal/store"
)

// DefaultTokenTTL is the lifetime of issued access tokens when none is
// configured.
const DefaultTokenTTL = time.Hour

// UserStore is the slice of the credential store the auth service needs.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// TokenOptions controls access token issuance.
type TokenOptions struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Principal is the verified content of an access token.
type Principal struct {
	UserID string
	Role   model.Role
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      model.PublicUser
}

// RegisterInput carries the fields for provisioning a new identity.
type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type AuthService struct {
	users  UserStore
	hasher *PasswordHasher
	secret []byte
	issuer string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthService(users UserStore, hasher *PasswordHasher, opts TokenOptions, logger *slog.Logger) *AuthService {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTokenTTL
	}
	if opts.Issuer == "" {
		opts.Issuer = "skywatch"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:  users,
		hasher: hasher,
		secret: []byte(opts.Secret),
		issuer: opts.Issuer,
		ttl:    opts.TTL,
		logger: logger,
		now:    time.Now,
	}
}

// TTL returns the lifetime of issued tokens.
func (s *AuthService) TTL() time.Duration {
	return s.ttl
}

// Login verifies a username/password pair and issues an access token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.burn(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("failed to record last login", "user_id", u.ID, "error", err)
	}

	token, expiresAt, err := s.IssueToken(u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: u.Public()}, nil
}

// Register provisions a new identity. The password is hashed before it
// reaches the store.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.PublicUser, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, invalid("username", "username is required")
	}
	if in.Password == "" {
		return nil, invalid("password", "password is required")
	}
	if len(in.Password) > MaxPasswordBytes {
		return nil, invalid("password", fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	if in.Role == "" {
		return nil, invalid("role", "role is required")
	}
	role, err := model.ParseRole(in.Role)
	if err != nil {
		return nil, invalid("role", err.Error())
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{Username: username, PasswordHash: hash, Role: role}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalid("username", fmt.Sprintf("username %q is already taken", username))
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	pub := u.Public()
	return &pub, nil
}

// IssueToken creates a signed access token for u.
func (s *AuthService) IssueToken(u *model.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := tokenClaims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, algorithm, issuer and expiry of an
// access token. Every failure wraps ErrInvalidToken.
func (s *AuthService) ValidateToken(tokenStr string) (*Principal, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return &Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

type tokenClaims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

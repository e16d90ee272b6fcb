package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"maze-rewards/internal/config"
)

const (
	adminIssuer  = "maze-rewards"
	adminSubject = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid admin credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrAdminDisabled      = errors.New("admin login is not configured")
)

// AdminClaims are the claims carried by an admin session token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth checks the admin password and issues HS256 session tokens.
type AdminAuth struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewAdminAuth creates an AdminAuth from admin configuration. Login is
// disabled while either the password hash or the JWT secret is empty.
func NewAdminAuth(cfg config.AdminConfig) *AdminAuth {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AdminAuth{
		passwordHash: []byte(cfg.PasswordHash),
		secret:       []byte(cfg.JWTSecret),
		ttl:          ttl,
		now:          time.Now,
	}
}

func (a *AdminAuth) enabled() bool {
	return len(a.passwordHash) > 0 && len(a.secret) > 0
}

// Login checks password against the configured bcrypt hash and returns a
// signed token with its expiry.
func (a *AdminAuth) Login(password string) (string, time.Time, error) {
	if !a.enabled() {
		return "", time.Time{}, ErrAdminDisabled
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.IssueToken()
}

// IssueToken signs a new admin session token.
func (a *AdminAuth) IssueToken() (string, time.Time, error) {
	if len(a.secret) == 0 {
		return "", time.Time{}, ErrAdminDisabled
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := AdminClaims{
		Role: adminSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminSubject,
			Issuer:    adminIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken parses and checks an admin session token.
func (a *AdminAuth) ValidateToken(token string) (*AdminClaims, error) {
	if len(a.secret) == 0 {
		return nil, ErrAdminDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &AdminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	},
		jwt.WithIssuer(adminIssuer),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*AdminClaims)
	if !ok || !parsed.Valid || claims.Role != adminSubject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Package auth guards the admin routes with a single operator account:
// a bcrypt password hash in config, exchanged for a short-lived HS256 JWT.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/koustreak/relicmart/internal/errs"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "relicmart"

// Config is the auth section of the server config.
type Config struct {
	// Enabled turns the guard on. Off, every route is open.
	Enabled      bool          `yaml:"enabled"`
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"passwordHash"`
	Secret       string        `yaml:"secret"`
	TokenTTL     time.Duration `yaml:"tokenTTL"`
}

// DefaultConfig is disabled with a one hour token lifetime.
func DefaultConfig() Config {
	return Config{TokenTTL: time.Hour}
}

// Validate checks an enabled config.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Username == "":
		return errs.New(errs.ErrKindValidation, "auth: username is required")
	case c.PasswordHash == "":
		return errs.New(errs.ErrKindValidation, "auth: passwordHash is required")
	case len(c.Secret) < 32:
		return errs.New(errs.ErrKindValidation, "auth: secret must be at least 32 bytes")
	case c.TokenTTL <= 0:
		return errs.New(errs.ErrKindValidation, "auth: tokenTTL must be positive")
	}
	if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
		return errs.Wrap(errs.ErrKindValidation, "auth: passwordHash is not a bcrypt hash", err)
	}
	return nil
}

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator issues and checks tokens. It is safe for concurrent use.
type Authenticator struct {
	cfg Config
	now func() time.Time
}

// New returns an Authenticator for cfg.
func New(cfg Config) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Authenticator{cfg: cfg, now: time.Now}, nil
}

// Enabled reports whether the guard is on.
func (a *Authenticator) Enabled() bool {
	return a != nil && a.cfg.Enabled
}

var errBadCredentials = errs.New(errs.ErrKindUnauthorized, "invalid username or password")

// Login checks the operator credentials and returns a signed token.
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, errs.New(errs.ErrKindValidation, "authentication is disabled")
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.cfg.Username)) == 1
	// Always run bcrypt so a wrong username costs as much as a wrong password.
	pwErr := bcrypt.CompareHashAndPassword([]byte(a.cfg.PasswordHash), []byte(password))
	if !userOK || pwErr != nil {
		return "", time.Time{}, errBadCredentials
	}

	now := a.now()
	exp := now.Add(a.cfg.TokenTTL)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.Secret))
	if err != nil {
		return "", time.Time{}, errs.Wrap(errs.ErrKindUnknown, "signing token", err)
	}
	return signed, exp, nil
}

// Verify parses token and checks signature, issuer and expiry.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return []byte(a.cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "token expired"
		}
		return nil, errs.Wrap(errs.ErrKindUnauthorized, msg, err)
	}
	return &claims, nil
}

type ctxKey struct{}

// Subject returns the authenticated operator stored by Middleware.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}

// Middleware requires a valid "Authorization: Bearer <token>" header when
// the guard is enabled. fail writes the rejection.
func (a *Authenticator) Middleware(fail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !a.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="relicmart"`)
				fail(w, r, errs.New(errs.ErrKindUnauthorized, "missing bearer token"))
				return
			}
			claims, err := a.Verify(strings.TrimSpace(token))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="relicmart", error="invalid_token"`)
				fail(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HashPassword produces the passwordHash config value for password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errs.New(errs.ErrKindValidation, "password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindValidation, "hashing password", err)
	}
	return string(h), nil
}

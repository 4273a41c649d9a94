package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"github.com/xenking/shopping-basket/pkg/httpmiddleware"
)

// ErrUnauthorized is returned for missing, malformed or rejected tokens.
var ErrUnauthorized = errors.New("unauthorized")

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Authenticator verifies HS256 bearer tokens and resolves the username from
// the subject claim.
type Authenticator struct {
	cfg AuthConfig
	now func() time.Time
}

// NewAuthenticator creates an Authenticator. An empty secret is rejected.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth secret is required")
	}
	return &Authenticator{cfg: cfg, now: time.Now}, nil
}

// Authenticate verifies token and returns its subject.
func (a *Authenticator) Authenticate(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.Wrap(ErrUnauthorized, "missing token")
	}

	parsed, err := jwt.ParseString(token,
		jwt.WithKey(jwa.HS256, a.cfg.Secret),
		jwt.WithValidate(false),
	)
	if err != nil {
		return "", errors.Wrapf(ErrUnauthorized, "parse: %v", err)
	}

	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(a.now)),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if a.cfg.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(a.cfg.ClockSkew))
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	if err := jwt.Validate(parsed, opts...); err != nil {
		return "", errors.Wrapf(ErrUnauthorized, "validate: %v", err)
	}

	sub := strings.TrimSpace(parsed.Subject())
	if sub == "" {
		return "", errors.Wrap(ErrUnauthorized, "token has no subject")
	}
	return sub, nil
}

// Issue signs a token for username valid for ttl. It is meant for local
// tooling; production tokens come from the identity provider.
func (a *Authenticator) Issue(username string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", errors.New("username is required")
	}

	now := a.now()
	b := jwt.NewBuilder().
		Subject(username).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if a.cfg.Issuer != "" {
		b = b.Issuer(a.cfg.Issuer)
	}
	if a.cfg.Audience != "" {
		b = b.Audience([]string{a.cfg.Audience})
	}
	tok, err := b.Build()
	if err != nil {
		return "", errors.Wrap(err, "build token")
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, a.cfg.Secret))
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return string(signed), nil
}

// Middleware rejects requests without a valid bearer token and stores the
// username in the request context.
func (a *Authenticator) Middleware() httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := a.Authenticate(bearerToken(r))
			if err != nil {
				zctx.From(r.Context()).Debug("Authentication failed", zap.Error(err))
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := WithUsername(r.Context(), username)
			ctx = zctx.With(ctx, zap.String("username", username))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return token
}

type usernameKey struct{}

// WithUsername returns ctx carrying the authenticated username.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey{}, username)
}

// UsernameFromContext returns the authenticated username, if any.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey{}).(string)
	return username, ok
}

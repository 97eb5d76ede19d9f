package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kursadbilgin/notification-pipeline/internal/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTokenTTL = 29 * time.Minute
	TokenCacheKey   = "admin-token"

	expirySkew = 30 * time.Second
)

// Authenticator issues admin access tokens.
type Authenticator interface {
	Login(ctx context.Context, login, password string) (string, error)
}

type CredentialOption func(*CredentialProvider)

func WithTokenTTL(ttl time.Duration) CredentialOption {
	return func(p *CredentialProvider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) CredentialOption {
	return func(p *CredentialProvider) {
		if now != nil {
			p.now = now
		}
	}
}

func WithCredentialLogger(logger *zap.Logger) CredentialOption {
	return func(p *CredentialProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// CredentialProvider hands out a cached admin token, logging in again when
// the cached one is missing or invalidated. Concurrent refreshes share one login.
type CredentialProvider struct {
	auth     Authenticator
	store    cache.Store
	login    string
	password string
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
	group    singleflight.Group
}

func NewCredentialProvider(auth Authenticator, store cache.Store, login, password string, opts ...CredentialOption) (*CredentialProvider, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}

	p := &CredentialProvider{
		auth:     auth,
		store:    store,
		login:    login,
		password: password,
		ttl:      DefaultTokenTTL,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *CredentialProvider) Token(ctx context.Context) (string, error) {
	token, ok, err := p.store.Get(ctx, TokenCacheKey)
	if err != nil {
		p.logger.Warn("credential cache read failed", zap.Error(err))
	}
	if ok && token != "" {
		return token, nil
	}

	value, err, _ := p.group.Do(TokenCacheKey, func() (any, error) {
		token, err := p.auth.Login(ctx, p.login, p.password)
		if err != nil {
			return "", fmt.Errorf("failed to obtain admin token: %w", err)
		}

		ttl := p.cacheTTL(token)
		if err := p.store.Set(ctx, TokenCacheKey, token, ttl); err != nil {
			p.logger.Warn("credential cache write failed", zap.Error(err))
		}
		p.logger.Debug("admin token refreshed", zap.Duration("ttl", ttl))
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// Invalidate drops the cached token so the next Token call logs in again.
func (p *CredentialProvider) Invalidate(ctx context.Context) error {
	if err := p.store.Delete(ctx, TokenCacheKey); err != nil {
		return fmt.Errorf("failed to invalidate admin token: %w", err)
	}
	return nil
}

// cacheTTL bounds the configured ttl by the token's own expiry when it is a JWT.
func (p *CredentialProvider) cacheTTL(token string) time.Duration {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return p.ttl
	}
	if claims.ExpiresAt == nil {
		return p.ttl
	}

	remaining := claims.ExpiresAt.Sub(p.now()) - expirySkew
	return min(p.ttl, remaining)
}

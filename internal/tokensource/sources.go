package tokensource

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

const defaultGuestTTL = 10 * time.Minute

// Static returns a source for a fixed upstream token.
func Static(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

// guestSource fetches anonymous visitor tokens from the upstream.
type guestSource struct {
	ctx       context.Context
	baseURL   string
	transport http.RoundTripper
	ttl       time.Duration
}

// Option configures the guest source.
type Option func(*guestSource)

// WithTransport sets the HTTP transport used for guest auth requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *guestSource) {
		g.transport = rt
	}
}

// NewGuest returns a source that fetches anonymous visitor tokens and
// caches each one for ttl. The context bounds all fetches made through the
// returned source.
func NewGuest(ctx context.Context, baseURL string, ttl time.Duration, opts ...Option) oauth2.TokenSource {
	if ttl <= 0 {
		ttl = defaultGuestTTL
	}
	src := &guestSource{
		ctx:     ctx,
		baseURL: baseURL,
		ttl:     ttl,
	}
	for _, opt := range opts {
		opt(src)
	}
	// ReuseTokenSource serves the cached token until Expiry and serializes
	// concurrent refreshes.
	return oauth2.ReuseTokenSource(nil, src)
}

// Token implements oauth2.TokenSource.
func (g *guestSource) Token() (*oauth2.Token, error) {
	token, err := zai.FetchGuestToken(g.ctx, g.baseURL, g.transport)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token,
		Expiry:      time.Now().Add(g.ttl),
	}, nil
}

// fallbackSource serves from primary and falls back on error.
type fallbackSource struct {
	primary  oauth2.TokenSource
	fallback oauth2.TokenSource
}

// Fallback returns a source that tries primary first and serves from
// fallback when primary fails.
func Fallback(primary, fallback oauth2.TokenSource) oauth2.TokenSource {
	return &fallbackSource{primary: primary, fallback: fallback}
}

// Token implements oauth2.TokenSource.
func (f *fallbackSource) Token() (*oauth2.Token, error) {
	token, err := f.primary.Token()
	if err == nil {
		return token, nil
	}
	slog.Warn("primary token source failed, using fallback", "error", err)
	return f.fallback.Token()
}

// Config carries what Resolve needs to build the upstream token source.
type Config struct {
	BaseURL     string
	Token       string // explicit upstream token, may be empty
	AnonEnabled bool
	AnonTTL     time.Duration
	Transport   http.RoundTripper
}

// ErrNoToken reports that no upstream credential is available at all.
var ErrNoToken = errors.New("no upstream token configured: provide one, run auth login, or enable anonymous tokens")

// Resolve builds the upstream token source. An explicit token beats the OS
// keyring entry; when anonymous tokens are enabled they are preferred per
// request, with the stored token as fallback.
func Resolve(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	token := cfg.Token
	if token == "" {
		if stored, err := FromKeyring(); err == nil {
			token = stored
		}
	}

	var base oauth2.TokenSource
	if token != "" {
		base = Static(token)
	}

	if cfg.AnonEnabled {
		guest := NewGuest(ctx, cfg.BaseURL, cfg.AnonTTL, WithTransport(cfg.Transport))
		if base == nil {
			return guest, nil
		}
		return Fallback(guest, base), nil
	}

	if base == nil {
		return nil, ErrNoToken
	}
	return base, nil
}

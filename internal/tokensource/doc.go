// Package tokensource builds oauth2.TokenSource values for the upstream
// chat service.
//
// The upstream accepts two kinds of bearer tokens: an account token the
// operator supplies, and an anonymous visitor token any client can fetch
// from the guest auth endpoint. Sources compose accordingly:
//   - Static wraps a fixed operator token.
//   - NewGuest fetches visitor tokens and caches each one until its TTL
//     lapses (the endpoint itself imposes no expiry, the cache does).
//   - Fallback prefers one source and falls back to another on error.
//
// # Resolution
//
// Resolve applies the precedence used by the proxy: an explicit token beats
// the OS keyring entry written by "auth login", and when anonymous tokens
// are enabled they are preferred per request with the stored token as
// fallback:
//
//	src, err := tokensource.Resolve(ctx, tokensource.Config{
//		BaseURL:     "https://chat.example.com",
//		AnonEnabled: true,
//		AnonTTL:     10 * time.Minute,
//	})
package tokensource

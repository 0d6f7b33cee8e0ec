package ratelimit

import "strings"

// Key scope prefixes. A key's scope names the call site class it guards and
// is the only part of a key safe to log or export (the remainder may embed an
// email address).
const (
	ScopeLogin  = "login"
	ScopeSignup = "signup"
	ScopeOAuth  = "oauth"
)

// LoginKey returns the rate-limit key for a password sign-in attempt.
// Emails are lowercased so case variants share one window.
func LoginKey(email string) string {
	return ScopeLogin + ":" + strings.ToLower(email)
}

// SignupKey returns the rate-limit key for an account creation attempt.
func SignupKey(email string) string {
	return ScopeSignup + ":" + strings.ToLower(email)
}

// OAuthKey returns the rate-limit key for an OAuth attempt against a
// provider from a given host.
func OAuthKey(provider, host string) string {
	return ScopeOAuth + ":" + provider + ":" + host
}

// KeyScope returns the scope prefix of a key, or "unknown" when the key has
// no recognizable scope.
func KeyScope(key string) string {
	idx := strings.IndexByte(key, ':')
	if idx <= 0 {
		return "unknown"
	}
	switch scope := key[:idx]; scope {
	case ScopeLogin, ScopeSignup, ScopeOAuth:
		return scope
	default:
		return "unknown"
	}
}

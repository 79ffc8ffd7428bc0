package model

import (
	"slices"
	"time"
)

// Scope constants for credential authorization.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// ValidScopes contains all valid scope values.
var ValidScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

// DefaultScopes are granted to new keys that request none.
var DefaultScopes = []string{ScopeRead, ScopeWrite}

// RateLimitTier constants.
const (
	TierFree      = "free"
	TierPro       = "pro"
	TierUnlimited = "unlimited"
)

// RateLimitConfig defines rate limit parameters per tier.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// TierConfigs maps tier names to their rate limit configurations.
var TierConfigs = map[string]RateLimitConfig{
	TierFree:      {RequestsPerMinute: 120, Burst: 20},
	TierPro:       {RequestsPerMinute: 1200, Burst: 100},
	TierUnlimited: {RequestsPerMinute: 0, Burst: 0}, // 0 means unlimited
}

// TierConfig returns the limits for tier, falling back to the free tier.
func TierConfig(tier string) RateLimitConfig {
	if cfg, ok := TierConfigs[tier]; ok {
		return cfg
	}
	return TierConfigs[TierFree]
}

// APIKey is a long-lived credential belonging to a user.
type APIKey struct {
	ID            string
	UserID        int64
	OwnerUsername string // populated by joins, never written
	KeyHash       string
	KeyPrefix     string
	Scopes        []string
	RateLimitTier string
	Name          string
	RevokedAt     *time.Time
	LastUsedAt    *time.Time
	CreatedAt     time.Time
}

// IsRevoked returns true if the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// HasScope checks if the key has a specific scope.
// Admin scope implies all other scopes.
func (k *APIKey) HasScope(scope string) bool {
	return hasScope(k.Scopes, scope)
}

// Credential kinds recorded on an AuthContext.
const (
	CredentialAPIKey = "api_key"
	CredentialJWT    = "jwt"
)

// AuthContext identifies the caller of an authenticated request.
// A nil *AuthContext is the anonymous caller.
type AuthContext struct {
	KeyID         string
	KeyPrefix     string
	UserID        int64
	Username      string
	Scopes        []string
	RateLimitTier string
	Credential    string
}

// HasScope checks if the auth context has a specific scope.
func (a *AuthContext) HasScope(scope string) bool {
	if a == nil {
		return false
	}
	return hasScope(a.Scopes, scope)
}

func hasScope(scopes []string, scope string) bool {
	if slices.Contains(scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(scopes, scope)
}

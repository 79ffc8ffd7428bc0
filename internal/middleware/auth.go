package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/taskboard/taskboard/internal/auth"
	"github.com/taskboard/taskboard/internal/metrics"
	"github.com/taskboard/taskboard/internal/model"
)

const lastUsedTimeout = 5 * time.Second

// KeyLookup finds API keys during authentication.
type KeyLookup interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// AuthCache caches resolved auth contexts keyed by credential fingerprint.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
}

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(token string) (*model.AuthContext, error)
}

// AuthConfig holds configuration for the auth middleware. Cache, Tokens,
// and Metrics are optional.
type AuthConfig struct {
	Logger  *slog.Logger
	Keys    KeyLookup
	Cache   AuthCache
	Tokens  TokenParser
	Metrics metrics.Recorder
	// MinDuration pads API key verification so that timing does not
	// reveal which check failed.
	MinDuration time.Duration
}

// Authenticate resolves the caller from the request credential and stores
// it in the request context. Requests without a credential, or with one
// that does not verify, continue as anonymous: reads still succeed and
// writes are refused downstream.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	a := &authenticator{cfg: cfg}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := extractCredential(r)
			if credential == "" {
				next.ServeHTTP(w, r)
				return
			}

			authCtx, cacheHit, reason := a.resolve(r.Context(), credential)
			if authCtx == nil {
				cfg.Metrics.IncAuthFailure()
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			cfg.Logger.Info("authentication successful",
				slog.String("key_id", authCtx.KeyID),
				slog.String("key_prefix", authCtx.KeyPrefix),
				slog.Int64("user_id", authCtx.UserID),
				slog.String("credential", authCtx.Credential),
				slog.Bool("cache_hit", cacheHit),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			next.ServeHTTP(w, r.WithContext(auth.ContextWithAuth(r.Context(), authCtx)))
		})
	}
}

type authenticator struct {
	cfg AuthConfig
}

// resolve returns the caller for credential, whether it came from the
// cache, and a failure reason when it could not be resolved.
func (a *authenticator) resolve(ctx context.Context, credential string) (*model.AuthContext, bool, string) {
	if !auth.LooksLikeAPIKey(credential) {
		return a.resolveToken(ctx, credential)
	}

	cacheKey := auth.Fingerprint(credential)
	if a.cfg.Cache != nil {
		cached, err := a.cfg.Cache.GetAuthContext(ctx, cacheKey)
		if err != nil {
			a.cfg.Logger.Debug("auth cache unavailable", slog.String("error", err.Error()))
		}
		if cached != nil {
			return cached, true, ""
		}
	}

	start := time.Now()
	defer func() {
		if elapsed := time.Since(start); elapsed < a.cfg.MinDuration {
			time.Sleep(a.cfg.MinDuration - elapsed)
		}
	}()

	key, reason := a.verifyAPIKey(ctx, credential)
	if key == nil {
		return nil, false, reason
	}

	authCtx := &model.AuthContext{
		KeyID:         key.ID,
		KeyPrefix:     key.KeyPrefix,
		UserID:        key.UserID,
		Username:      key.OwnerUsername,
		Scopes:        key.Scopes,
		RateLimitTier: key.RateLimitTier,
		Credential:    model.CredentialAPIKey,
	}

	if a.cfg.Cache != nil {
		if err := a.cfg.Cache.SetAuthContext(ctx, cacheKey, authCtx); err != nil {
			a.cfg.Logger.Debug("failed to cache auth context", slog.String("error", err.Error()))
		}
	}

	// The request may finish before the update does.
	go func(ctx context.Context, keyID string) {
		ctx, cancel := context.WithTimeout(ctx, lastUsedTimeout)
		defer cancel()
		if err := a.cfg.Keys.UpdateAPIKeyLastUsed(ctx, keyID); err != nil {
			a.cfg.Logger.Debug("failed to update key last used",
				slog.String("key_id", keyID),
				slog.String("error", err.Error()),
			)
		}
	}(context.WithoutCancel(ctx), key.ID)

	return authCtx, false, ""
}

func (a *authenticator) verifyAPIKey(ctx context.Context, credential string) (*model.APIKey, string) {
	parsed, err := auth.ParseAPIKey(credential)
	if err != nil {
		return nil, "invalid_format"
	}

	candidates, err := a.cfg.Keys.GetAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		a.cfg.Logger.Error("database error during auth",
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(ctx)),
		)
		return nil, "lookup_error"
	}

	// several keys may share a prefix
	for _, candidate := range candidates {
		match, err := auth.VerifyKey(credential, candidate.KeyHash)
		if err == nil && match {
			return candidate, ""
		}
	}
	return nil, "invalid_key"
}

// resolveToken verifies a bearer token and then checks that the API key
// it was minted from is still active. A confirmed key is cached under the
// token's fingerprint and indexed by key id, so revoking the key ends
// every token issued from it.
func (a *authenticator) resolveToken(ctx context.Context, token string) (*model.AuthContext, bool, string) {
	if a.cfg.Tokens == nil {
		return nil, false, "invalid_format"
	}
	authCtx, err := a.cfg.Tokens.Parse(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, false, "expired_token"
		}
		return nil, false, "invalid_token"
	}

	cacheKey := auth.Fingerprint(token)
	if a.cfg.Cache != nil {
		cached, err := a.cfg.Cache.GetAuthContext(ctx, cacheKey)
		if err != nil {
			a.cfg.Logger.Debug("auth cache unavailable", slog.String("error", err.Error()))
		}
		if cached != nil && cached.KeyID == authCtx.KeyID {
			return authCtx, true, ""
		}
	}

	active, err := a.keyActive(ctx, authCtx.KeyID, authCtx.KeyPrefix)
	if err != nil {
		a.cfg.Logger.Error("database error during auth",
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(ctx)),
		)
		return nil, false, "lookup_error"
	}
	if !active {
		return nil, false, "revoked_key"
	}

	if a.cfg.Cache != nil {
		if err := a.cfg.Cache.SetAuthContext(ctx, cacheKey, authCtx); err != nil {
			a.cfg.Logger.Debug("failed to cache auth context", slog.String("error", err.Error()))
		}
	}
	return authCtx, false, ""
}

// keyActive reports whether the key with the given id and prefix exists
// and has not been revoked.
func (a *authenticator) keyActive(ctx context.Context, keyID, prefix string) (bool, error) {
	if prefix == "" {
		return false, nil
	}
	candidates, err := a.cfg.Keys.GetAPIKeysByPrefix(ctx, prefix)
	if err != nil {
		return false, err
	}
	for _, candidate := range candidates {
		if candidate.ID == keyID && !candidate.IsRevoked() {
			return true, nil
		}
	}
	return false, nil
}

// extractCredential reads "Authorization: Bearer <credential>", falling
// back to the X-API-Key header.
func extractCredential(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, value, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskboard/taskboard/internal/auth"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/policy"
	"github.com/taskboard/taskboard/internal/repository"
)

// KeyGenerator produces a new API key for the given key environment.
type KeyGenerator func(env string) (*auth.GeneratedKey, error)

// KeyInvalidator drops cached state for a revoked key.
type KeyInvalidator interface {
	InvalidateKey(ctx context.Context, keyID string) error
}

// TokenIssuer mints bearer tokens for authenticated callers.
type TokenIssuer interface {
	Issue(caller *model.AuthContext) (string, time.Time, error)
}

// KeyService manages API keys and token exchange.
type KeyService struct {
	store       KeyStore
	invalidator KeyInvalidator
	tokens      TokenIssuer
	generate    KeyGenerator
	env         string
	logger      *slog.Logger
}

// KeyServiceConfig holds the collaborators of a KeyService. Invalidator
// and Tokens are optional.
type KeyServiceConfig struct {
	Store       KeyStore
	Invalidator KeyInvalidator
	Tokens      TokenIssuer
	Generate    KeyGenerator
	KeyEnv      string
	Logger      *slog.Logger
}

// NewKeyService creates a new KeyService.
func NewKeyService(cfg KeyServiceConfig) *KeyService {
	if cfg.Generate == nil {
		cfg.Generate = auth.GenerateAPIKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &KeyService{
		store:       cfg.Store,
		invalidator: cfg.Invalidator,
		tokens:      cfg.Tokens,
		generate:    cfg.Generate,
		env:         cfg.KeyEnv,
		logger:      cfg.Logger,
	}
}

// CreateKeyInput defines input for creating an API key.
type CreateKeyInput struct {
	Name   string
	Scopes []string
}

// CreatedKey is a stored key together with its plaintext, which is never
// available again.
type CreatedKey struct {
	Key       *model.APIKey
	Plaintext string
}

// CreateKey issues a new API key to caller. Callers cannot grant scopes
// they could not grant themselves.
func (s *KeyService) CreateKey(ctx context.Context, caller *model.AuthContext, input CreateKeyInput) (*CreatedKey, error) {
	if !policy.MayManageKeys(caller) {
		return nil, ErrForbidden
	}

	scopes := input.Scopes
	if len(scopes) == 0 {
		scopes = model.DefaultScopes
	}
	for _, scope := range scopes {
		if !policy.MayGrantScope(caller, scope) {
			return nil, ErrForbidden
		}
	}

	generated, err := s.generate(s.env)
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}

	tier := caller.RateLimitTier
	if tier == "" {
		tier = model.TierFree
	}

	key := &model.APIKey{
		ID:            ulid.Make().String(),
		UserID:        caller.UserID,
		OwnerUsername: caller.Username,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        scopes,
		RateLimitTier: tier,
		Name:          input.Name,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return &CreatedKey{Key: key, Plaintext: generated.Plaintext}, nil
}

// ListKeys returns the caller's keys, newest first.
func (s *KeyService) ListKeys(ctx context.Context, caller *model.AuthContext) ([]*model.APIKey, error) {
	if !policy.MayManageKeys(caller) {
		return nil, ErrForbidden
	}

	keys, err := s.store.ListAPIKeysByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// RevokeKey revokes one of the caller's active keys and drops any cached
// auth context derived from it.
func (s *KeyService) RevokeKey(ctx context.Context, caller *model.AuthContext, keyID string) error {
	if !policy.MayManageKeys(caller) {
		return ErrForbidden
	}

	if err := s.store.RevokeAPIKey(ctx, keyID, caller.UserID); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	if s.invalidator != nil {
		if err := s.invalidator.InvalidateKey(ctx, keyID); err != nil {
			// the cached entry still expires on its own TTL
			s.logger.Warn("failed to invalidate cached auth context",
				slog.String("key_id", keyID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// IssueToken exchanges the caller's API key credential for a bearer token.
// Tokens cannot be exchanged for further tokens, and stop authenticating
// once the key they were issued from is revoked.
func (s *KeyService) IssueToken(caller *model.AuthContext) (string, time.Time, error) {
	if s.tokens == nil {
		return "", time.Time{}, ErrTokensOff
	}
	if !policy.MayManageKeys(caller) || caller.Credential != model.CredentialAPIKey {
		return "", time.Time{}, ErrForbidden
	}

	token, expiresAt, err := s.tokens.Issue(caller)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, expiresAt, nil
}

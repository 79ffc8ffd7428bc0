package dto

import (
	"encoding/json"
	"io"
	"time"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/validate"
)

// CreateAPIKeyRequest is the body of POST /api-keys/.
type CreateAPIKeyRequest struct {
	Name   string   `json:"name,omitempty" validate:"max=100"`
	Scopes []string `json:"scopes" validate:"omitempty,dive,oneof=read write admin"`
}

// APIKeyResponse represents an API key without its secret.
type APIKeyResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	Revoked       bool       `json:"revoked"`
}

// APIKeyCreateResponse includes the plaintext key, shown exactly once.
type APIKeyCreateResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// TokenResponse carries a bearer token minted from an API key.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ToAPIKeyResponse converts an APIKey model to its wire form.
func ToAPIKeyResponse(key *model.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:            key.ID,
		Name:          key.Name,
		KeyPrefix:     key.KeyPrefix,
		Scopes:        key.Scopes,
		RateLimitTier: key.RateLimitTier,
		CreatedAt:     key.CreatedAt,
		LastUsedAt:    key.LastUsedAt,
		Revoked:       key.IsRevoked(),
	}
}

// DecodeCreateAPIKey reads and validates an API key request.
func DecodeCreateAPIKey(r io.Reader) (CreateAPIKeyRequest, error) {
	var req CreateAPIKeyRequest

	raw, err := decodeObject(r)
	if err != nil {
		return req, err
	}

	errs := validate.Errors{}
	if v, ok := raw["name"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &req.Name); err != nil {
			errs.Add("name", validate.MsgString)
		}
	}
	if v, ok := raw["scopes"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &req.Scopes); err != nil {
			errs.Add("scopes", "Expected a list of strings.")
		}
	}
	if len(errs) > 0 {
		return req, errs
	}

	if err := validate.Struct(req); err != nil {
		return req, err
	}
	return req, nil
}

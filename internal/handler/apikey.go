package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskboard/taskboard/internal/auth"
	"github.com/taskboard/taskboard/internal/handler/dto"
	"github.com/taskboard/taskboard/internal/service"
)

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	svc    *service.KeyService
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(svc *service.KeyService, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		svc:    svc,
		logger: logger,
	}
}

// CreateAPIKey handles POST /api/v1/api-keys/.
func (h *APIKeyHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	caller := auth.AuthFromContext(r.Context())

	req, err := dto.DecodeCreateAPIKey(r.Body)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	created, err := h.svc.CreateKey(r.Context(), caller, service.CreateKeyInput{
		Name:   req.Name,
		Scopes: req.Scopes,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("API key created",
		slog.String("key_id", created.Key.ID),
		slog.String("key_prefix", created.Key.KeyPrefix),
		slog.Int64("user_id", created.Key.UserID),
	)

	// the plaintext is returned here and never again
	writeJSON(w, http.StatusCreated, dto.APIKeyCreateResponse{
		APIKeyResponse: dto.ToAPIKeyResponse(created.Key),
		Key:            created.Plaintext,
	})
}

// ListAPIKeys handles GET /api/v1/api-keys/.
func (h *APIKeyHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.ListKeys(r.Context(), auth.AuthFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	responses := make([]dto.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, dto.ToAPIKeyResponse(key))
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": responses})
}

// RevokeAPIKey handles DELETE /api/v1/api-keys/{key_id}/.
// Keys of other users are reported as missing to prevent enumeration.
func (h *APIKeyHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	caller := auth.AuthFromContext(r.Context())
	keyID := chi.URLParam(r, "key_id")

	if err := h.svc.RevokeKey(r.Context(), caller, keyID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("API key revoked",
		slog.String("key_id", keyID),
		slog.Int64("user_id", caller.UserID),
	)

	w.WriteHeader(http.StatusNoContent)
}

// IssueToken handles POST /api/v1/auth/token.
func (h *APIKeyHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	caller := auth.AuthFromContext(r.Context())

	token, expiresAt, err := h.svc.IssueToken(caller)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("token issued",
		slog.String("key_id", caller.KeyID),
		slog.Int64("user_id", caller.UserID),
	)

	writeJSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}

func (h *APIKeyHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	handleServiceError(w, h.logger, auth.AuthFromContext(r.Context()), err)
}

package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keywarden/keywarden/internal/model"
	"github.com/keywarden/keywarden/internal/server/middleware"
	"github.com/keywarden/keywarden/internal/service"
)

// KeyHandler serves the key administration endpoints under /api/v1.
type KeyHandler struct {
	keys *service.KeyService
}

func NewKeyHandler(keys *service.KeyService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

type createKeyRequest struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	ExpiresIn   *int   `json:"expires_in_days,omitempty"`
	Description string `json:"description,omitempty"`
}

// CreateKey issues a new API key. The response carries the plaintext secret;
// this is the only time it will ever be visible.
func (h *KeyHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	role, err := model.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	createdBy := ""
	if caller := middleware.GetKeyInfo(r.Context()); caller != nil {
		createdBy = caller.KeyID
	}

	generated, err := h.keys.Generate(r.Context(), service.GenerateParams{
		Name:        req.Name,
		Role:        role,
		ExpiresIn:   req.ExpiresIn,
		CreatedBy:   createdBy,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create API key")
		return
	}

	writeJSON(w, http.StatusCreated, model.CreatedKeyResponse{
		KeyID:   generated.KeyID,
		Secret:  generated.Secret,
		Info:    generated.Info,
		Warning: model.SecretWarning,
	})
}

// ListKeys returns key metadata, newest first. Pass include_inactive=true to
// include revoked and expired-deactivated keys.
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	includeInactive := queryBool(r, "include_inactive")
	infos := h.keys.ListKeys(r.Context(), includeInactive)
	if infos == nil {
		infos = []model.KeyInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": infos})
}

// GetKey returns the metadata for a single key by its public ID.
func (h *KeyHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")
	info := h.keys.GetKeyInfo(r.Context(), keyID)
	if info == nil {
		writeError(w, http.StatusNotFound, "No API key with ID "+keyID)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// RevokeKey deactivates a key. Revoking an already-revoked key succeeds.
func (h *KeyHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")
	found, err := h.keys.Revoke(r.Context(), keyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to revoke API key")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "No API key with ID "+keyID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key_id": keyID, "revoked": true})
}

// RotateKey replaces a key's secret in place. Only active keys can be
// rotated; the new secret is returned once.
func (h *KeyHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")
	generated, ok, err := h.keys.Rotate(r.Context(), keyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to rotate API key")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "No active API key with ID "+keyID)
		return
	}
	writeJSON(w, http.StatusOK, model.CreatedKeyResponse{
		KeyID:   generated.KeyID,
		Secret:  generated.Secret,
		Info:    generated.Info,
		Warning: model.SecretWarning,
	})
}

// CleanupExpired deactivates all keys whose expiry has passed.
func (h *KeyHandler) CleanupExpired(w http.ResponseWriter, r *http.Request) {
	n, err := h.keys.CleanupExpired(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clean up expired keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deactivated": n})
}

// WhoAmI echoes the authenticated key's own metadata.
func (h *KeyHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	info := middleware.GetKeyInfo(r.Context())
	if info == nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// --- helpers ---

// writeJSON serializes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	code := "INTERNAL_ERROR"
	switch status {
	case http.StatusBadRequest:
		code = "BAD_REQUEST"
	case http.StatusNotFound:
		code = "NOT_FOUND"
	case http.StatusUnauthorized:
		code = model.CodeInvalidAPIKey
	case http.StatusServiceUnavailable:
		code = model.CodeAuthenticationError
	}
	writeJSON(w, status, model.ErrorResponse{
		Error: model.ErrorDetail{Code: code, Message: message},
	})
}

// readJSON decodes the request body as JSON into v.
func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryBool extracts a boolean query parameter. Returns false if the
// parameter is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/keywarden/keywarden/internal/model"
	"github.com/keywarden/keywarden/internal/service"
)

type contextKeyAuth string

// AuthKeyInfoKey is the context key for the authenticated key's metadata.
const AuthKeyInfoKey contextKeyAuth = "auth_key_info"

// AuthResult is the outcome of an authenticate or authorize check. On failure
// Code and Message describe the rejection and Status is the HTTP status to
// return; on success KeyInfo carries the resolved key metadata.
type AuthResult struct {
	OK      bool
	Status  int
	Code    string
	Message string
	KeyInfo *model.KeyInfo
}

// ExtractCredential pulls the presented secret from a request, checking in
// fixed priority order: the Authorization bearer header, then the X-API-Key
// header, then the api_key query parameter. First match wins; the locations
// are never merged. Returns "" if no credential is present anywhere.
func ExtractCredential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// AuthenticateRequest resolves the request's credential against the key
// service. It never distinguishes why a credential failed, only that it did.
// A panic out of the validation path fails closed as a 503.
func AuthenticateRequest(r *http.Request, keys *service.KeyService) (result AuthResult) {
	defer func() {
		if recover() != nil {
			result = AuthResult{
				OK:      false,
				Status:  http.StatusServiceUnavailable,
				Code:    model.CodeAuthenticationError,
				Message: "Authentication service unavailable",
			}
		}
	}()

	secret := ExtractCredential(r)
	if secret == "" {
		return AuthResult{
			OK:      false,
			Status:  http.StatusUnauthorized,
			Code:    model.CodeMissingAPIKey,
			Message: "API key required. Provide a Bearer token, X-API-Key header, or api_key parameter.",
		}
	}

	info := keys.Validate(r.Context(), secret)
	if info == nil {
		return AuthResult{
			OK:      false,
			Status:  http.StatusUnauthorized,
			Code:    model.CodeInvalidAPIKey,
			Message: "Invalid API key",
		}
	}

	return AuthResult{OK: true, KeyInfo: info}
}

// AuthorizeRequest runs AuthenticateRequest and then enforces the required
// role. Admin keys pass every check; other roles need an exact match.
func AuthorizeRequest(r *http.Request, keys *service.KeyService, required model.Role) AuthResult {
	result := AuthenticateRequest(r, keys)
	if !result.OK {
		return result
	}
	if !result.KeyInfo.Role.Satisfies(required) {
		return AuthResult{
			OK:      false,
			Status:  http.StatusForbidden,
			Code:    model.CodeInsufficientPermissions,
			Message: "This operation requires the " + required.String() + " role",
		}
	}
	return result
}

// Authenticate returns an HTTP middleware that validates the request's API
// key. On success the key metadata is attached to the request context; on
// failure a structured 401/503 JSON error is written.
func Authenticate(keys *service.KeyService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := AuthenticateRequest(r, keys)
			if !result.OK {
				writeAuthError(w, result)
				return
			}
			ctx := context.WithValue(r.Context(), AuthKeyInfoKey, result.KeyInfo)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns an HTTP middleware that enforces role-based access.
// It must be used after Authenticate in the middleware chain.
func RequireRole(required model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := GetKeyInfo(r.Context())
			if info == nil {
				writeAuthError(w, AuthResult{
					Status:  http.StatusUnauthorized,
					Code:    model.CodeInvalidAPIKey,
					Message: "Invalid API key",
				})
				return
			}
			if !info.Role.Satisfies(required) {
				writeAuthError(w, AuthResult{
					Status:  http.StatusForbidden,
					Code:    model.CodeInsufficientPermissions,
					Message: "This operation requires the " + required.String() + " role",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetKeyInfo extracts the authenticated key metadata from the context.
// Returns nil for an unauthenticated request.
func GetKeyInfo(ctx context.Context) *model.KeyInfo {
	if info, ok := ctx.Value(AuthKeyInfoKey).(*model.KeyInfo); ok {
		return info
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, result AuthResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: result.Code, Message: result.Message},
	})
}

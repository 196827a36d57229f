package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/model"
	"github.com/keywarden/keywarden/internal/service"
)

type testEnv struct {
	srv  *Server
	keys *service.KeyService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keys := service.NewKeyService(store, time.Minute, logger)
	cfg := DefaultConfig()
	cfg.RateLimitPerMin = 0 // rate limiting is off in tests
	return &testEnv{srv: New(cfg, store, keys, logger), keys: keys}
}

func (e *testEnv) issue(t *testing.T, role model.Role) *service.GeneratedKey {
	t.Helper()
	gen, err := e.keys.Generate(context.Background(), service.GenerateParams{
		Name: "test " + role.String(), Role: role,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return gen
}

func (e *testEnv) do(t *testing.T, method, path, secret string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	r := httptest.NewRequest(method, path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if secret != "" {
		r.Header.Set("Authorization", "Bearer "+secret)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, r)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	decodeBody(t, rec, &resp)
	return resp.Error.Code
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", rec.Code)
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/openapi.json", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/openapi.json status = %d, want 200", rec.Code)
	}
	var doc map[string]any
	decodeBody(t, rec, &doc)
	if _, ok := doc["paths"]; !ok {
		t.Error("OpenAPI document has no paths")
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/keys", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := errorCode(t, rec); code != model.CodeMissingAPIKey {
		t.Errorf("code = %q, want %s", code, model.CodeMissingAPIKey)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/keys", "kw_bogus", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := errorCode(t, rec); code != model.CodeInvalidAPIKey {
		t.Errorf("code = %q, want %s", code, model.CodeInvalidAPIKey)
	}
}

func TestNonAdminForbidden(t *testing.T) {
	env := newTestEnv(t)
	user := env.issue(t, model.RoleUser)

	rec := env.do(t, http.MethodGet, "/api/v1/keys", user.Secret, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if code := errorCode(t, rec); code != model.CodeInsufficientPermissions {
		t.Errorf("code = %q, want %s", code, model.CodeInsufficientPermissions)
	}
}

func TestWhoAmI(t *testing.T) {
	env := newTestEnv(t)
	user := env.issue(t, model.RoleReadOnly)

	rec := env.do(t, http.MethodGet, "/api/v1/auth/whoami", user.Secret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var info model.KeyInfo
	decodeBody(t, rec, &info)
	if info.KeyID != user.KeyID || info.Role != model.RoleReadOnly {
		t.Errorf("unexpected identity: %+v", info)
	}
}

func TestCreateKey(t *testing.T) {
	env := newTestEnv(t)
	admin := env.issue(t, model.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/v1/keys", admin.Secret, map[string]any{
		"name": "ci pipeline", "role": "user", "description": "deploy bot",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	var created model.CreatedKeyResponse
	decodeBody(t, rec, &created)
	if created.Secret == "" || created.KeyID == "" {
		t.Fatalf("incomplete response: %+v", created)
	}
	if created.Warning == "" {
		t.Error("response missing the one-time secret warning")
	}
	if created.Info.CreatedBy != admin.KeyID {
		t.Errorf("created_by = %q, want the caller's key ID %q", created.Info.CreatedBy, admin.KeyID)
	}

	// The new key works immediately.
	if rec := env.do(t, http.MethodGet, "/api/v1/auth/whoami", created.Secret, nil); rec.Code != http.StatusOK {
		t.Errorf("new key whoami status = %d, want 200", rec.Code)
	}
}

func TestCreateKeyValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.issue(t, model.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/v1/keys", admin.Secret, map[string]any{"role": "user"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/keys", admin.Secret, map[string]any{
		"name": "x", "role": "superuser",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad role: status = %d, want 400", rec.Code)
	}
}

func TestKeyLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	admin := env.issue(t, model.RoleAdmin)

	// Create.
	rec := env.do(t, http.MethodPost, "/api/v1/keys", admin.Secret, map[string]any{
		"name": "rotateme", "role": "user",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created model.CreatedKeyResponse
	decodeBody(t, rec, &created)

	// Fetch metadata.
	rec = env.do(t, http.MethodGet, "/api/v1/keys/"+created.KeyID, admin.Secret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Rotate: key ID stays, secret changes, old secret dies.
	rec = env.do(t, http.MethodPost, "/api/v1/keys/"+created.KeyID+"/rotate", admin.Secret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate status = %d; body %s", rec.Code, rec.Body.String())
	}
	var rotated model.CreatedKeyResponse
	decodeBody(t, rec, &rotated)
	if rotated.KeyID != created.KeyID {
		t.Errorf("rotate changed key ID: %q -> %q", created.KeyID, rotated.KeyID)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/auth/whoami", created.Secret, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("old secret after rotate: status = %d, want 401", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/auth/whoami", rotated.Secret, nil); rec.Code != http.StatusOK {
		t.Errorf("new secret after rotate: status = %d, want 200", rec.Code)
	}

	// Revoke, then the key stops working and rotate refuses.
	rec = env.do(t, http.MethodDelete, "/api/v1/keys/"+created.KeyID, admin.Secret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/auth/whoami", rotated.Secret, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked secret: status = %d, want 401", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/keys/"+created.KeyID+"/rotate", admin.Secret, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("rotate revoked key: status = %d, want 404", rec.Code)
	}
}

func TestListKeysFilter(t *testing.T) {
	env := newTestEnv(t)
	admin := env.issue(t, model.RoleAdmin)
	user := env.issue(t, model.RoleUser)

	if _, err := env.keys.Revoke(context.Background(), user.KeyID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	var listed struct {
		Keys []model.KeyInfo `json:"keys"`
	}

	rec := env.do(t, http.MethodGet, "/api/v1/keys", admin.Secret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	decodeBody(t, rec, &listed)
	if len(listed.Keys) != 1 {
		t.Errorf("active list length = %d, want 1", len(listed.Keys))
	}

	rec = env.do(t, http.MethodGet, "/api/v1/keys?include_inactive=true", admin.Secret, nil)
	decodeBody(t, rec, &listed)
	if len(listed.Keys) != 2 {
		t.Errorf("full list length = %d, want 2", len(listed.Keys))
	}
}

func TestRevokeAndGetUnknownKey(t *testing.T) {
	env := newTestEnv(t)
	admin := env.issue(t, model.RoleAdmin)

	rec := env.do(t, http.MethodDelete, "/api/v1/keys/does-not-exist", admin.Secret, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("revoke unknown: status = %d, want 404", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/keys/does-not-exist", admin.Secret, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get unknown: status = %d, want 404", rec.Code)
	}
}

func TestCleanupExpiredEndpoint(t *testing.T) {
	env := newTestEnv(t)
	admin := env.issue(t, model.RoleAdmin)

	days := 0
	if _, err := env.keys.Generate(context.Background(), service.GenerateParams{
		Name: "shortlived", Role: model.RoleUser, ExpiresIn: &days,
	}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/keys/cleanup", admin.Secret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", rec.Code)
	}
	var result struct {
		Deactivated int64 `json:"deactivated"`
	}
	decodeBody(t, rec, &result)
	if result.Deactivated != 1 {
		t.Errorf("deactivated = %d, want 1", result.Deactivated)
	}

	// The admin key survives the cleanup and the cache clear.
	if rec := env.do(t, http.MethodGet, "/api/v1/auth/whoami", admin.Secret, nil); rec.Code != http.StatusOK {
		t.Errorf("admin key after cleanup: status = %d, want 200", rec.Code)
	}
}

package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/model"
)

func newTestService(t *testing.T, ttl time.Duration) *KeyService {
	t.Helper()
	store, err := config.NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewKeyService(store, ttl, logger)
}

func intPtr(n int) *int { return &n }

func TestGenerateThenValidate(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, GenerateParams{Name: "ci", Role: model.RoleUser})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Secret == "" || gen.KeyID == "" {
		t.Fatalf("incomplete generated key: %+v", gen)
	}
	if gen.Info.ExpiresAt != nil {
		t.Error("key without ExpiresIn must never expire")
	}

	info := svc.Validate(ctx, gen.Secret)
	if info == nil {
		t.Fatal("freshly generated secret failed validation")
	}
	if info.KeyID != gen.KeyID || info.Role != model.RoleUser {
		t.Errorf("unexpected snapshot: %+v", info)
	}

	if svc.Validate(ctx, "kw_not_a_real_secret") != nil {
		t.Error("unknown secret validated")
	}
	if svc.Validate(ctx, "") != nil {
		t.Error("empty secret validated")
	}
}

func TestSecretNeverStored(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, GenerateParams{Name: "k", Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	key, err := svc.store.GetAPIKey(ctx, gen.KeyID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key.SecretHash == gen.Secret {
		t.Fatal("raw secret persisted")
	}
	if key.SecretHash != DigestSecret(gen.Secret) {
		t.Error("stored digest does not match the issued secret")
	}
}

func TestRevokeInvalidatesWarmCache(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, GenerateParams{Name: "k", Role: model.RoleUser})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if svc.Validate(ctx, gen.Secret) == nil {
		t.Fatal("validation failed before revoke")
	}
	if svc.cache.len() != 1 {
		t.Fatalf("expected warm cache, len = %d", svc.cache.len())
	}

	found, err := svc.Revoke(ctx, gen.KeyID)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !found {
		t.Fatal("Revoke reported key not found")
	}

	// The purge is synchronous: the very next validation must miss the
	// cache, hit the store, and fail.
	if svc.Validate(ctx, gen.Secret) != nil {
		t.Fatal("revoked key still validates")
	}
}

func TestRevokeIdempotentAndNotFound(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, GenerateParams{Name: "k", Role: model.RoleUser})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for i := 0; i < 2; i++ {
		found, err := svc.Revoke(ctx, gen.KeyID)
		if err != nil {
			t.Fatalf("Revoke #%d: %v", i+1, err)
		}
		if !found {
			t.Fatalf("Revoke #%d reported not found", i+1)
		}
	}

	found, err := svc.Revoke(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("Revoke unknown: %v", err)
	}
	if found {
		t.Error("Revoke of unknown key ID reported found")
	}
}

func TestRotate(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, GenerateParams{Name: "k", Role: model.RoleUser})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if svc.Validate(ctx, gen.Secret) == nil {
		t.Fatal("validation failed before rotate")
	}

	rotated, found, err := svc.Rotate(ctx, gen.KeyID)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if !found {
		t.Fatal("Rotate reported key not found")
	}
	if rotated.KeyID != gen.KeyID {
		t.Errorf("rotation changed the key ID: %q -> %q", gen.KeyID, rotated.KeyID)
	}
	if rotated.Secret == gen.Secret {
		t.Fatal("rotation reissued the same secret")
	}

	if svc.Validate(ctx, gen.Secret) != nil {
		t.Error("old secret still validates after rotate")
	}
	if svc.Validate(ctx, rotated.Secret) == nil {
		t.Error("new secret does not validate after rotate")
	}
}

func TestRotateRevokedOrUnknown(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, GenerateParams{Name: "k", Role: model.RoleUser})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := svc.Revoke(ctx, gen.KeyID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if _, found, err := svc.Rotate(ctx, gen.KeyID); err != nil || found {
		t.Errorf("Rotate of revoked key: found=%v err=%v, want false nil", found, err)
	}
	if _, found, err := svc.Rotate(ctx, "does-not-exist"); err != nil || found {
		t.Errorf("Rotate of unknown key: found=%v err=%v, want false nil", found, err)
	}
}

func TestImmediateExpiry(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, GenerateParams{
		Name: "k", Role: model.RoleUser, ExpiresIn: intPtr(0),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// The record stays active until a cleanup pass, but validation already
	// rejects it.
	key, err := svc.store.GetAPIKey(ctx, gen.KeyID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if !key.IsActive {
		t.Error("expiry must not flip is_active without a cleanup pass")
	}
	if svc.Validate(ctx, gen.Secret) != nil {
		t.Error("expired key validated")
	}
}

func TestCleanupExpired(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx := context.Background()

	if _, err := svc.Generate(ctx, GenerateParams{Name: "a", Role: model.RoleUser, ExpiresIn: intPtr(0)}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := svc.Generate(ctx, GenerateParams{Name: "b", Role: model.RoleUser, ExpiresIn: intPtr(0)}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	keep, err := svc.Generate(ctx, GenerateParams{Name: "c", Role: model.RoleUser, ExpiresIn: intPtr(30)})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if svc.Validate(ctx, keep.Secret) == nil {
		t.Fatal("unexpired key failed validation")
	}

	n, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 2 {
		t.Fatalf("deactivated %d keys, want 2", n)
	}
	if svc.cache.len() != 0 {
		t.Error("cleanup must clear the validation cache")
	}

	if svc.Validate(ctx, keep.Secret) == nil {
		t.Error("surviving key failed validation after cleanup")
	}

	n, err = svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("second CleanupExpired: %v", err)
	}
	if n != 0 {
		t.Errorf("second cleanup deactivated %d keys, want 0", n)
	}
}

func TestValidateRepopulatesAfterTTL(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, GenerateParams{Name: "k", Role: model.RoleUser})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if svc.Validate(ctx, gen.Secret) == nil {
		t.Fatal("validation failed")
	}

	// Force the cached entry past its TTL; the key itself is still valid,
	// so the next validation re-reads the store and re-caches.
	base := time.Now().Add(2 * time.Minute)
	svc.cache.now = func() time.Time { return base }

	if svc.Validate(ctx, gen.Secret) == nil {
		t.Fatal("validation failed after cache entry expired")
	}
	if svc.cache.len() != 1 {
		t.Errorf("expected repopulated cache, len = %d", svc.cache.len())
	}
}

func TestListKeys(t *testing.T) {
	svc := newTestService(t, time.Minute)
	ctx := context.Background()

	a, err := svc.Generate(ctx, GenerateParams{Name: "a", Role: model.RoleUser})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := svc.Generate(ctx, GenerateParams{Name: "b", Role: model.RoleReadOnly}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := svc.Revoke(ctx, a.KeyID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if got := svc.ListKeys(ctx, false); len(got) != 1 {
		t.Errorf("active list length = %d, want 1", len(got))
	}
	if got := svc.ListKeys(ctx, true); len(got) != 2 {
		t.Errorf("full list length = %d, want 2", len(got))
	}
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/model"
)

// KeyService is the facade for the API key lifecycle: generation, validation,
// revocation, rotation, listing, and expiry cleanup. One instance is shared
// by all request workers in a process; all methods are safe for concurrent
// use. Mutating operations commit atomically in the store and purge the
// validation cache before returning.
type KeyService struct {
	store  *config.Store
	cache  *validationCache
	logger *slog.Logger
}

// NewKeyService creates a KeyService over the given store. cacheTTL bounds
// how long a validated secret may be trusted without re-checking the store.
func NewKeyService(store *config.Store, cacheTTL time.Duration, logger *slog.Logger) *KeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyService{
		store:  store,
		cache:  newValidationCache(cacheTTL),
		logger: logger,
	}
}

// GenerateParams describes a key to be issued.
type GenerateParams struct {
	Name        string
	Role        model.Role
	ExpiresIn   *int // days until expiry; nil means the key never expires
	CreatedBy   string
	Description string
}

// GeneratedKey is returned by Generate and Rotate. Secret is the plaintext
// credential, shown exactly once; it is not recoverable afterwards.
type GeneratedKey struct {
	KeyID  string
	Secret string
	Info   *model.KeyInfo
}

// Generate issues a new API key and persists its record. The returned secret
// is the only copy that will ever exist in plaintext.
func (s *KeyService) Generate(ctx context.Context, p GenerateParams) (*GeneratedKey, error) {
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}

	key := &model.APIKey{
		KeyID:       NewKeyID(),
		SecretHash:  DigestSecret(secret),
		Name:        p.Name,
		Role:        p.Role,
		IsActive:    true,
		CreatedBy:   p.CreatedBy,
		Description: p.Description,
	}
	if p.ExpiresIn != nil {
		exp := time.Now().UTC().Add(time.Duration(*p.ExpiresIn) * 24 * time.Hour)
		key.ExpiresAt = &exp
	}

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("api key generated",
		"key_id", key.KeyID, "name", key.Name, "role", key.Role,
		"expires_at", key.ExpiresAt)

	return &GeneratedKey{KeyID: key.KeyID, Secret: secret, Info: key.Info()}, nil
}

// Validate resolves a presented secret to its key metadata, or nil if the
// credential is not valid. Unknown, revoked, and expired keys are all folded
// into the same nil result so callers cannot enumerate why a credential
// failed; the distinguishing reason is logged for operators. Store errors on
// this path also fail closed as nil.
func (s *KeyService) Validate(ctx context.Context, secret string) *model.KeyInfo {
	if secret == "" {
		return nil
	}

	if info, ok := s.cache.get(secret); ok {
		go s.touch(info.KeyID)
		return info
	}

	readAt := time.Now()
	key, err := s.store.GetAPIKeyByDigest(ctx, DigestSecret(secret))
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			// Fail closed: a store outage must reject requests, not crash them.
			s.logger.Error("api key lookup failed", "error", err)
		}
		return nil
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		// Expired keys validate as invalid even before a cleanup pass runs.
		s.logger.Debug("rejected expired api key", "key_id", key.KeyID,
			"expired_at", key.ExpiresAt)
		return nil
	}

	info := key.Info()
	s.cache.put(secret, info, readAt)
	go s.touch(key.KeyID)
	return info
}

// Revoke deactivates a key and purges its cache entries. Revocation is
// idempotent: revoking an already-inactive key returns true. The bool is
// false only when no key with that ID exists. Once revoked, a key is never
// reactivated; issue a new one instead.
func (s *KeyService) Revoke(ctx context.Context, keyID string) (bool, error) {
	if err := s.store.RevokeAPIKey(ctx, keyID); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	// Purge before returning so no caller can observe a revoked key
	// validating out of this process's cache.
	s.cache.purgeByKeyID(keyID)

	s.logger.Info("api key revoked", "key_id", keyID)
	return true, nil
}

// Rotate replaces a key's secret, leaving the key ID and metadata unchanged.
// Only active keys can be rotated; for a revoked key the second return is
// false and the caller should issue a new key instead.
func (s *KeyService) Rotate(ctx context.Context, keyID string) (*GeneratedKey, bool, error) {
	secret, err := NewSecret()
	if err != nil {
		return nil, false, err
	}

	if err := s.store.RotateAPIKeyDigest(ctx, keyID, DigestSecret(secret)); err != nil {
		if errors.Is(err, config.ErrNotFound) || errors.Is(err, config.ErrKeyInactive) {
			return nil, false, nil
		}
		return nil, false, err
	}

	s.cache.purgeByKeyID(keyID)

	s.logger.Info("api key rotated", "key_id", keyID)

	info := s.GetKeyInfo(ctx, keyID)
	return &GeneratedKey{KeyID: keyID, Secret: secret, Info: info}, true, nil
}

// ListKeys returns key metadata newest-created first. Store errors degrade
// to an empty list; the error is logged, not propagated.
func (s *KeyService) ListKeys(ctx context.Context, includeInactive bool) []model.KeyInfo {
	keys, err := s.store.ListAPIKeys(ctx, includeInactive)
	if err != nil {
		s.logger.Error("list api keys failed", "error", err)
		return nil
	}

	infos := make([]model.KeyInfo, len(keys))
	for i := range keys {
		infos[i] = *keys[i].Info()
	}
	return infos
}

// GetKeyInfo returns the metadata for one key, or nil if it does not exist.
func (s *KeyService) GetKeyInfo(ctx context.Context, keyID string) *model.KeyInfo {
	key, err := s.store.GetAPIKey(ctx, keyID)
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			s.logger.Error("get api key failed", "key_id", keyID, "error", err)
		}
		return nil
	}
	return key.Info()
}

// CleanupExpired deactivates every active key whose expiry has passed and
// returns the count. The whole validation cache is cleared afterwards;
// targeted purging is not worth the bookkeeping for a bulk mutation.
func (s *KeyService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeactivateExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	s.cache.clear()

	if n > 0 {
		s.logger.Info("deactivated expired api keys", "count", n)
	}
	return n, nil
}

// touch stamps last_used_at in the background. Best-effort audit signal;
// validation correctness never depends on it.
func (s *KeyService) touch(keyID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.TouchAPIKey(ctx, keyID); err != nil {
		s.logger.Debug("touch api key failed", "key_id", keyID, "error", err)
	}
}

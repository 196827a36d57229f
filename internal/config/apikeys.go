package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keywarden/keywarden/internal/model"
)

// CreateAPIKey inserts a new API key record. The secret_hash must already be
// set (the store never sees a raw secret). The ID and CreatedAt fields are
// populated after a successful commit.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO api_keys
		(key_id, secret_hash, name, role, is_active, expires_at, created_at, last_used_at, created_by, description)
		VALUES
		(:key_id, :secret_hash, :name, :role, :is_active, :expires_at, :created_at, :last_used_at, :created_by, :description)`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert api key: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.NamedExecContext(ctx, q, key)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		key.ID = id // pgx does not report LastInsertId; the row ID is advisory
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert api key: %w", err)
	}
	return nil
}

// GetAPIKey returns a key record by its public key ID.
func (s *Store) GetAPIKey(ctx context.Context, keyID string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE key_id = ?")
	if err := s.db.GetContext(ctx, &key, q, keyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// GetAPIKeyByDigest looks up an active API key by its SHA-256 secret digest.
// This is the validation path: revoked keys are invisible here.
func (s *Store) GetAPIKeyByDigest(ctx context.Context, digest string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE secret_hash = ? AND is_active = ?")
	if err := s.db.GetContext(ctx, &key, q, digest, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by digest: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns key records newest-created first. Inactive keys are
// excluded unless includeInactive is set.
func (s *Store) ListAPIKeys(ctx context.Context, includeInactive bool) ([]model.APIKey, error) {
	var keys []model.APIKey
	var err error
	if includeInactive {
		err = s.db.SelectContext(ctx, &keys,
			"SELECT * FROM api_keys ORDER BY created_at DESC, id DESC")
	} else {
		q := s.db.Rebind("SELECT * FROM api_keys WHERE is_active = ? ORDER BY created_at DESC, id DESC")
		err = s.db.SelectContext(ctx, &keys, q, true)
	}
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey marks an API key as inactive. Revocation is idempotent:
// revoking an already-inactive key succeeds. Returns ErrNotFound only when
// no record with the given key ID exists.
func (s *Store) RevokeAPIKey(ctx context.Context, keyID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revoke api key: %w", err)
	}
	defer tx.Rollback()

	var exists int
	q := tx.Rebind("SELECT COUNT(*) FROM api_keys WHERE key_id = ?")
	if err := tx.GetContext(ctx, &exists, q, keyID); err != nil {
		return fmt.Errorf("revoke api key lookup: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	q = tx.Rebind("UPDATE api_keys SET is_active = ? WHERE key_id = ?")
	if _, err := tx.ExecContext(ctx, q, false, keyID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revoke api key: %w", err)
	}
	return nil
}

// RotateAPIKeyDigest replaces the secret digest of an active key, leaving the
// key ID and all other metadata untouched. Returns ErrNotFound for unknown
// keys and ErrKeyInactive for revoked ones; inactive keys cannot be rotated.
func (s *Store) RotateAPIKeyDigest(ctx context.Context, keyID, newDigest string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate api key: %w", err)
	}
	defer tx.Rollback()

	var key model.APIKey
	q := tx.Rebind("SELECT * FROM api_keys WHERE key_id = ?")
	if err := tx.GetContext(ctx, &key, q, keyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("rotate api key lookup: %w", err)
	}
	if !key.IsActive {
		return ErrKeyInactive
	}

	q = tx.Rebind("UPDATE api_keys SET secret_hash = ? WHERE key_id = ?")
	if _, err := tx.ExecContext(ctx, q, newDigest, keyID); err != nil {
		return fmt.Errorf("rotate api key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotate api key: %w", err)
	}
	return nil
}

// TouchAPIKey sets the last_used_at timestamp. Best-effort audit signal;
// callers may fire and forget.
func (s *Store) TouchAPIKey(ctx context.Context, keyID string) error {
	q := s.db.Rebind("UPDATE api_keys SET last_used_at = ? WHERE key_id = ?")
	if _, err := s.db.ExecContext(ctx, q, time.Now().UTC(), keyID); err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// DeactivateExpired deactivates every active key whose expiry is strictly
// before now, in one bulk update, and returns the number of keys deactivated.
func (s *Store) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin deactivate expired: %w", err)
	}
	defer tx.Rollback()

	q := tx.Rebind(`UPDATE api_keys SET is_active = ?
		WHERE is_active = ? AND expires_at IS NOT NULL AND expires_at < ?`)
	result, err := tx.ExecContext(ctx, q, false, true, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("deactivate expired keys: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate expired rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit deactivate expired: %w", err)
	}
	return n, nil
}

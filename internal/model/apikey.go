package model

import "time"

// APIKey represents an issued API key. The raw secret is never stored; only
// a SHA-256 digest is persisted, and the public key ID is used for all
// administrative operations.
type APIKey struct {
	ID          int64      `json:"-" db:"id"`
	KeyID       string     `json:"key_id" db:"key_id"`
	SecretHash  string     `json:"-" db:"secret_hash"` // SHA-256 digest, never expose
	Name        string     `json:"name" db:"name"`
	Role        Role       `json:"role" db:"role"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedBy   string     `json:"created_by,omitempty" db:"created_by"`
	Description string     `json:"description,omitempty" db:"description"`
}

// Info returns the non-secret metadata snapshot for this key. Snapshots are
// what validation hands back to callers and what the validation cache holds.
func (k *APIKey) Info() *KeyInfo {
	return &KeyInfo{
		KeyID:       k.KeyID,
		Name:        k.Name,
		Role:        k.Role,
		IsActive:    k.IsActive,
		ExpiresAt:   k.ExpiresAt,
		CreatedAt:   k.CreatedAt,
		LastUsedAt:  k.LastUsedAt,
		CreatedBy:   k.CreatedBy,
		Description: k.Description,
	}
}

// KeyInfo is the non-secret view of an API key. It contains no digest and no
// raw secret, so it is safe to log, cache, and return from any endpoint.
type KeyInfo struct {
	KeyID       string     `json:"key_id"`
	Name        string     `json:"name"`
	Role        Role       `json:"role"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	Description string     `json:"description,omitempty"`
}

package config

import "errors"

// ErrNotFound is returned when a requested record does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrKeyInactive is returned when an operation requires an active key but the
// record has been revoked or deactivated. Inactive keys are never reactivated.
var ErrKeyInactive = errors.New("api key is inactive")

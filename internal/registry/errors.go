package registry

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound means the file ID doesn't resolve to a live record
	ErrNotFound = errors.New("file not found")

	// ErrLockTimeout means the exclusive section couldn't be entered in
	// time. Retryable with backoff
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrStoreUnavailable wraps any metadata store failure so callers
	// never see driver-specific error shapes
	ErrStoreUnavailable = errors.New("metadata store unavailable")
)

func storeErr(err error) error {
	return fmt.Errorf("%w, %v", ErrStoreUnavailable, err)
}

// isUniqueViolation reports whether err is the fingerprint uniqueness
// constraint firing. With the in-lock dedup lookup in place this only
// happens on exotic races and is resolved by re-reading, never surfaced.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// Fallbacks for drivers without error translation
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

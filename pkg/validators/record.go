// Package validators contains pure input validation used before any lock is
// taken or row written
package validators

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// Violation names the first field that failed validation and why. It is a
// result value, not an error: a candidate failing validation is an expected
// outcome, not a fault in the caller.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// FileCandidate is the metadata of a registration attempt before it touches
// the store.
type FileCandidate struct {
	OriginalName string
	Extension    string
	MediaType    string
	Size         int64
	Fingerprint  string
}

// RecordValidator checks candidates against the structural invariants every
// stored record must satisfy. Checks run in a fixed order and stop at the
// first failure. No I/O, safe for concurrent use.
type RecordValidator struct {
	// Expected fingerprint length, tied to the digest algorithm (64 for
	// hex SHA-256)
	DigestLength int

	// Lowercase extensions without the leading dot
	AllowedExts []string
}

// NewRecordValidator builds a validator from the loaded config.
func NewRecordValidator() *RecordValidator {
	return &RecordValidator{
		DigestLength: viper.GetInt("upload.fingerprint_length"),
		AllowedExts:  viper.GetStringSlice("upload.allowed_extensions"),
	}
}

// Validate returns nil when the candidate is acceptable, otherwise the first
// violation found.
func (v *RecordValidator) Validate(c *FileCandidate) *Violation {
	if c.Size <= 0 {
		return &Violation{Field: "size", Reason: "must be > 0"}
	}

	if len(c.Fingerprint) != v.DigestLength || !isHex(c.Fingerprint) {
		return &Violation{
			Field:  "fingerprint",
			Reason: fmt.Sprintf("must be %d hex characters", v.DigestLength),
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(c.Extension, "."))
	if !slices.Contains(v.AllowedExts, ext) {
		return &Violation{Field: "extension", Reason: "extension not allowed"}
	}

	if c.MediaType == "" {
		return &Violation{Field: "media_type", Reason: "must not be empty"}
	}

	return nil
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}

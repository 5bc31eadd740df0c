// Package storage holds the blob store collaborators the registration core
// depends on: raw bytes must land here before any metadata is registered.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/viper"
)

// FingerprintLength is the hex length of the digests Fingerprint produces.
const FingerprintLength = 64

// BlobStore stores and removes content blobs by opaque key. Implementations
// never touch metadata.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// New picks the configured backend.
func New() (BlobStore, error) {
	switch viper.GetString("storage.type") {
	case "s3":
		return NewS3()
	case "local":
		return NewLocal(viper.GetString("storage.local_path"))
	default:
		return nil, fmt.Errorf("invalid storage type %q", viper.GetString("storage.type"))
	}
}

// Fingerprint consumes the reader and returns the hex SHA-256 digest of the
// content along with the number of bytes read.
func Fingerprint(r io.Reader) (string, int64, error) {
	h := sha256.New()

	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash content, %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

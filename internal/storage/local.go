package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore keeps blobs as plain files under a root directory. Writes go
// through a temp file and a rename so a crash never leaves a half-written
// blob under its final key.
type LocalStore struct {
	root string
}

func NewLocal(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage.local_path can't be empty")
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory, %w", err)
	}

	return &LocalStore{root: root}, nil
}

func (l *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.root, "put-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary blob file, %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write blob, %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close blob file, %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(l.root, key)); err != nil {
		return fmt.Errorf("failed to move blob into place, %w", err)
	}

	return nil
}

func (l *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(l.root, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob, %w", err)
	}

	return nil
}

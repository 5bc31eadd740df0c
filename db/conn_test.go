package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMissingFile(t *testing.T) {
	dir := t.TempDir()

	require.True(t, missingFile(filepath.Join(dir, "nope.db")))

	existing := filepath.Join(dir, "there.db")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))
	require.False(t, missingFile(existing))
}

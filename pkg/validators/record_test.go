package validators

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testValidator() *RecordValidator {
	return &RecordValidator{
		DigestLength: 64,
		AllowedExts:  []string{"mp4", "webm", "png", "pdf"},
	}
}

func validCandidate() *FileCandidate {
	return &FileCandidate{
		OriginalName: "clip.mp4",
		Extension:    "mp4",
		MediaType:    "video/mp4",
		Size:         1024,
		Fingerprint:  strings.Repeat("a1b2", 16),
	}
}

func TestValidateOK(t *testing.T) {
	require.Nil(t, testValidator().Validate(validCandidate()))
}

func TestValidateSize(t *testing.T) {
	c := validCandidate()
	c.Size = 0

	v := testValidator().Validate(c)
	require.NotNil(t, v)
	require.Equal(t, "size", v.Field)
	require.Equal(t, "must be > 0", v.Reason)

	c.Size = -5
	v = testValidator().Validate(c)
	require.NotNil(t, v)
	require.Equal(t, "size", v.Field)
}

func TestValidateFingerprint(t *testing.T) {
	c := validCandidate()
	c.Fingerprint = "abc123"

	v := testValidator().Validate(c)
	require.NotNil(t, v)
	require.Equal(t, "fingerprint", v.Field)
	require.Equal(t, "must be 64 hex characters", v.Reason)

	// Right length, wrong alphabet
	c.Fingerprint = strings.Repeat("zz", 32)
	v = testValidator().Validate(c)
	require.NotNil(t, v)
	require.Equal(t, "fingerprint", v.Field)
}

func TestValidateExtension(t *testing.T) {
	c := validCandidate()
	c.Extension = "exe"

	v := testValidator().Validate(c)
	require.NotNil(t, v)
	require.Equal(t, "extension", v.Field)

	// Leading dot and case are normalized
	c.Extension = ".MP4"
	require.Nil(t, testValidator().Validate(c))
}

func TestValidateMediaType(t *testing.T) {
	c := validCandidate()
	c.MediaType = ""

	v := testValidator().Validate(c)
	require.NotNil(t, v)
	require.Equal(t, "media_type", v.Field)
}

func TestValidateOrder(t *testing.T) {
	// Everything is wrong at once, the size check must win
	c := &FileCandidate{}

	v := testValidator().Validate(c)
	require.NotNil(t, v)
	require.Equal(t, "size", v.Field)
}

package registry

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"filedrop/metadata-api/internal/model"
	"filedrop/metadata-api/pkg/validators"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRegistry(t *testing.T) (*Registry, *gorm.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "registry.db") + "?_busy_timeout=5000"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// SQLite takes one writer at a time anyway, let the pool enforce it
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.File{},
		&model.Category{},
		&model.Tag{},
		&model.FileTag{},
		&model.UploadEvent{},
		&model.AccessEvent{},
	))

	v := &validators.RecordValidator{
		DigestLength: 64,
		AllowedExts:  []string{"mp4", "png", "pdf"},
	}

	return New(db, v, 5*time.Second), db
}

func fp(seed string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(seed)))
}

func uploadReq(seed string) *UploadRequest {
	return &UploadRequest{
		OriginalName: seed + ".mp4",
		StoredName:   "stored-" + seed + ".mp4",
		Extension:    "mp4",
		MediaType:    "video/mp4",
		Size:         1024,
		Fingerprint:  fp(seed),
		StorageKey:   "blob/" + seed,
		Access: AccessMeta{
			IP:        "203.0.113.7",
			UserAgent: "test-agent",
			SessionID: "sess-" + seed,
		},
	}
}

func TestRegisterUploadCreated(t *testing.T) {
	r, db := newTestRegistry(t)

	res, err := r.RegisterUpload(context.Background(), uploadReq("one"))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, res.Status)
	require.Len(t, res.FileID, 16)
	require.Nil(t, res.Violation)

	var file model.File
	require.NoError(t, db.Where("id = ?", res.FileID).First(&file).Error)
	require.Equal(t, fp("one"), file.Fingerprint)
	require.Equal(t, int64(1024), file.Size)
	require.False(t, file.Deleted)

	var ev model.UploadEvent
	require.NoError(t, db.Where("outcome = ?", model.OutcomeCreated).First(&ev).Error)
	require.NotNil(t, ev.FileID)
	require.Equal(t, res.FileID, *ev.FileID)
	require.Equal(t, "203.0.113.7", ev.IP)
}

func TestRegisterUploadDistinctFingerprints(t *testing.T) {
	r, db := newTestRegistry(t)

	seen := make(map[string]bool)
	for _, seed := range []string{"a", "b", "c", "d"} {
		res, err := r.RegisterUpload(context.Background(), uploadReq(seed))
		require.NoError(t, err)
		require.Equal(t, StatusCreated, res.Status)
		require.False(t, seen[res.FileID], "identifier reused")
		seen[res.FileID] = true
	}

	var count int64
	require.NoError(t, db.Model(&model.File{}).Count(&count).Error)
	require.EqualValues(t, 4, count)
}

func TestRegisterUploadDuplicate(t *testing.T) {
	r, db := newTestRegistry(t)

	first, err := r.RegisterUpload(context.Background(), uploadReq("same"))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, first.Status)

	second, err := r.RegisterUpload(context.Background(), uploadReq("same"))
	require.NoError(t, err)
	require.Equal(t, StatusDuplicate, second.Status)
	require.Equal(t, first.FileID, second.FileID)

	var count int64
	require.NoError(t, db.Model(&model.File{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	// Both attempts left their own audit row
	var events int64
	require.NoError(t, db.Model(&model.UploadEvent{}).Count(&events).Error)
	require.EqualValues(t, 2, events)

	var dup model.UploadEvent
	require.NoError(t, db.Where("outcome = ?", model.OutcomeDuplicate).First(&dup).Error)
	require.NotNil(t, dup.FileID)
	require.Equal(t, first.FileID, *dup.FileID)
}

func TestRegisterUploadConcurrentSameContent(t *testing.T) {
	r, db := newTestRegistry(t)

	const attempts = 16

	// Collected per goroutine and asserted after the wait; failing from a
	// spawned goroutine is not safe
	results := make([]*UploadResult, attempts)
	errs := make([]error, attempts)
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = r.RegisterUpload(context.Background(), uploadReq("raced"))
		}()
	}
	wg.Wait()

	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
	}

	var created, duplicate int
	canonical := ""
	for _, res := range results {
		switch res.Status {
		case StatusCreated:
			created++
			canonical = res.FileID
		case StatusDuplicate:
			duplicate++
		default:
			t.Fatalf("unexpected status %q", res.Status)
		}
	}

	require.Equal(t, 1, created, "exactly one attempt may win")
	require.Equal(t, attempts-1, duplicate)

	for _, res := range results {
		require.Equal(t, canonical, res.FileID)
	}

	var count int64
	require.NoError(t, db.Model(&model.File{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestUniqueViolationResolvedAsDuplicate(t *testing.T) {
	r, db := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.RegisterUpload(ctx, uploadReq("backstop"))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, first.Status)

	// Drive the insert path directly against an already committed
	// fingerprint, as if another instance had won the race after this
	// one's dedup lookup came back empty. The constraint must fire, the
	// transaction must stay usable for the re-read and the audit write,
	// and the caller must see the committed row as a duplicate.
	result := &UploadResult{}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertOrResolve(tx, uploadReq("backstop"), result)
	})
	require.NoError(t, err)
	require.Equal(t, StatusDuplicate, result.Status)
	require.Equal(t, first.FileID, result.FileID)

	// Only the canonical row exists
	var count int64
	require.NoError(t, db.Model(&model.File{}).
		Where("fingerprint = ?", fp("backstop")).
		Count(&count).Error)
	require.EqualValues(t, 1, count)

	// And the losing attempt still left its audit row
	var dup model.UploadEvent
	require.NoError(t, db.Where("outcome = ?", model.OutcomeDuplicate).First(&dup).Error)
	require.NotNil(t, dup.FileID)
	require.Equal(t, first.FileID, *dup.FileID)
}

func TestRegisterUploadRejected(t *testing.T) {
	r, db := newTestRegistry(t)

	tests := []struct {
		name   string
		mutate func(*UploadRequest)
		field  string
	}{
		{"zero size", func(r *UploadRequest) { r.Size = 0 }, "size"},
		{"short fingerprint", func(r *UploadRequest) { r.Fingerprint = "abc" }, "fingerprint"},
		{"bad extension", func(r *UploadRequest) { r.Extension = "exe" }, "extension"},
		{"empty media type", func(r *UploadRequest) { r.MediaType = "" }, "media_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := uploadReq("reject-" + tt.name)
			tt.mutate(req)

			res, err := r.RegisterUpload(context.Background(), req)
			require.NoError(t, err)
			require.Equal(t, StatusRejected, res.Status)
			require.Empty(t, res.FileID)
			require.NotNil(t, res.Violation)
			require.Equal(t, tt.field, res.Violation.Field)
		})
	}

	// Rejections never reach the file table
	var count int64
	require.NoError(t, db.Model(&model.File{}).Count(&count).Error)
	require.Zero(t, count)

	// But each attempt is still audited
	var events int64
	require.NoError(t, db.Model(&model.UploadEvent{}).
		Where("outcome = ?", model.OutcomeRejected).
		Count(&events).Error)
	require.EqualValues(t, len(tests), events)
}

func TestRejectedSizeReason(t *testing.T) {
	r, _ := newTestRegistry(t)

	req := uploadReq("zero")
	req.Size = 0

	res, err := r.RegisterUpload(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, res.Status)
	require.Equal(t, "size", res.Violation.Field)
	require.Equal(t, "must be > 0", res.Violation.Reason)
}

func TestSoftDeleteFreesFingerprint(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.RegisterUpload(ctx, uploadReq("reborn"))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, first.Status)

	require.NoError(t, r.SoftDelete(ctx, first.FileID))

	// Same content again: the dead row must not count as a duplicate
	second, err := r.RegisterUpload(ctx, uploadReq("reborn"))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, second.Status)
	require.NotEqual(t, first.FileID, second.FileID)
}

func TestSoftDeleteMissing(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.SoftDelete(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterDownload(t *testing.T) {
	r, db := newTestRegistry(t)
	ctx := context.Background()

	up, err := r.RegisterUpload(ctx, uploadReq("dl"))
	require.NoError(t, err)

	res, err := r.RegisterDownload(ctx, up.FileID, AccessMeta{IP: "198.51.100.2"})
	require.NoError(t, err)
	require.Equal(t, StatusRecorded, res.Status)
	require.Equal(t, up.FileID, res.FileID)

	var file model.File
	require.NoError(t, db.Where("id = ?", up.FileID).First(&file).Error)
	require.EqualValues(t, 1, file.Downloads)
	require.EqualValues(t, 0, file.Views)

	// Without an explicit byte count the event carries the file size
	var ev model.AccessEvent
	require.NoError(t, db.Where("file_id = ? AND kind = ?", up.FileID, model.AccessDownload).
		First(&ev).Error)
	require.Equal(t, file.Size, ev.BytesSent)

	// An explicit byte count wins
	_, err = r.RegisterDownload(ctx, up.FileID, AccessMeta{BytesSent: 512})
	require.NoError(t, err)

	var partial model.AccessEvent
	require.NoError(t, db.Where("file_id = ? AND bytes_sent = ?", up.FileID, 512).
		First(&partial).Error)
}

func TestRegisterView(t *testing.T) {
	r, db := newTestRegistry(t)
	ctx := context.Background()

	up, err := r.RegisterUpload(ctx, uploadReq("vw"))
	require.NoError(t, err)

	for n := 0; n < 3; n++ {
		res, err := r.RegisterView(ctx, up.FileID, AccessMeta{})
		require.NoError(t, err)
		require.Equal(t, StatusRecorded, res.Status)
	}

	var file model.File
	require.NoError(t, db.Where("id = ?", up.FileID).First(&file).Error)
	require.EqualValues(t, 3, file.Views)
	require.EqualValues(t, 0, file.Downloads)

	var events int64
	require.NoError(t, db.Model(&model.AccessEvent{}).
		Where("file_id = ? AND kind = ?", up.FileID, model.AccessView).
		Count(&events).Error)
	require.EqualValues(t, 3, events)
}

func TestAccessNotFound(t *testing.T) {
	r, db := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.RegisterDownload(ctx, "missing", AccessMeta{})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.RegisterView(ctx, "missing", AccessMeta{})
	require.ErrorIs(t, err, ErrNotFound)

	// Soft-deleted files reject events too
	up, err := r.RegisterUpload(ctx, uploadReq("gone"))
	require.NoError(t, err)
	require.NoError(t, r.SoftDelete(ctx, up.FileID))

	_, err = r.RegisterDownload(ctx, up.FileID, AccessMeta{})
	require.ErrorIs(t, err, ErrNotFound)

	var events int64
	require.NoError(t, db.Model(&model.AccessEvent{}).Count(&events).Error)
	require.Zero(t, events, "no event row may exist for a failed access")
}

func TestGetFile(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	up, err := r.RegisterUpload(ctx, uploadReq("get"))
	require.NoError(t, err)

	file, err := r.GetFile(ctx, up.FileID)
	require.NoError(t, err)
	require.Equal(t, up.FileID, file.ID)
	require.Equal(t, "get.mp4", file.OriginalName)

	_, err = r.GetFile(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.SoftDelete(ctx, up.FileID))

	// Hidden from the read path, still reachable for audit
	_, err = r.GetFile(ctx, up.FileID)
	require.ErrorIs(t, err, ErrNotFound)

	audit, err := r.GetFileAudit(ctx, up.FileID)
	require.NoError(t, err)
	require.True(t, audit.Deleted)
	require.NotNil(t, audit.DeletedAt)
}

// tagUsage reads the counter column; liveRelations recounts the relation
// rows independently so the two can be compared.
func tagUsage(t *testing.T, db *gorm.DB, name string) (int64, int64) {
	t.Helper()

	var tag model.Tag
	require.NoError(t, db.Where("name = ?", name).First(&tag).Error)

	var relations int64
	require.NoError(t, db.Model(&model.FileTag{}).
		Where("tag_id = ?", tag.ID).
		Count(&relations).Error)

	return tag.UsageCount, relations
}

func TestTagUsageCounters(t *testing.T) {
	r, db := newTestRegistry(t)
	ctx := context.Background()

	reqA := uploadReq("tags-a")
	reqA.Tags = []string{"music", "lossless"}
	upA, err := r.RegisterUpload(ctx, reqA)
	require.NoError(t, err)

	reqB := uploadReq("tags-b")
	reqB.Tags = []string{"music"}
	upB, err := r.RegisterUpload(ctx, reqB)
	require.NoError(t, err)

	usage, relations := tagUsage(t, db, "music")
	require.EqualValues(t, 2, usage)
	require.Equal(t, relations, usage)

	usage, relations = tagUsage(t, db, "lossless")
	require.EqualValues(t, 1, usage)
	require.Equal(t, relations, usage)

	// Attaching an already attached tag must not double count
	require.NoError(t, r.AttachTags(ctx, upB.FileID, []string{"music", "live"}))

	usage, relations = tagUsage(t, db, "music")
	require.EqualValues(t, 2, usage)
	require.Equal(t, relations, usage)

	usage, relations = tagUsage(t, db, "live")
	require.EqualValues(t, 1, usage)
	require.Equal(t, relations, usage)

	require.NoError(t, r.DetachTag(ctx, upA.FileID, "music"))

	usage, relations = tagUsage(t, db, "music")
	require.EqualValues(t, 1, usage)
	require.Equal(t, relations, usage)

	// Detaching a relation that doesn't exist
	err = r.DetachTag(ctx, upA.FileID, "music")
	require.ErrorIs(t, err, ErrNotFound)

	names, err := r.FileTags(ctx, upA.FileID)
	require.NoError(t, err)
	require.Equal(t, []string{"lossless"}, names)
}

func TestAttachTagsMissingFile(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.AttachTags(context.Background(), "missing", []string{"x"})
	require.ErrorIs(t, err, ErrNotFound)
}

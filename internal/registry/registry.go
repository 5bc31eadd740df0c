// Package registry implements the metadata registration core: it is the only
// code allowed to write file, event or relation rows, and it does so under
// the lock discipline that keeps concurrent registrations consistent.
package registry

import (
	"context"
	"errors"
	"time"

	"filedrop/metadata-api/internal/model"
	"filedrop/metadata-api/pkg/lock"
	"filedrop/metadata-api/pkg/validators"

	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// Registration outcomes as reported to callers
const (
	StatusCreated   = "created"
	StatusDuplicate = "duplicate"
	StatusRejected  = "rejected"
	StatusRecorded  = "recorded"
)

// AccessMeta is the caller-supplied context of an attempt, persisted into the
// audit events.
type AccessMeta struct {
	IP        string
	UserAgent string
	SessionID string

	// Bytes actually transferred. Zero means "use the file's recorded size"
	BytesSent int64
}

// UploadRequest describes a registration attempt for content that was
// already written to the blob store. The fingerprint is computed by the
// storage collaborator, never here.
type UploadRequest struct {
	OriginalName string
	StoredName   string
	Extension    string
	MediaType    string
	Size         int64
	Fingerprint  string
	StorageKey   string
	CategoryID   *string
	Private      bool
	Tags         []string
	Access       AccessMeta
}

// UploadResult carries the outcome of one attempt. FileID points at the
// freshly created record for StatusCreated and at the already existing one
// for StatusDuplicate. Violation is set only for StatusRejected.
type UploadResult struct {
	Status    string                `json:"status"`
	FileID    string                `json:"file_id,omitempty"`
	Violation *validators.Violation `json:"violation,omitempty"`
}

// AccessResult reports a recorded download or view.
type AccessResult struct {
	Status string `json:"status"`
	FileID string `json:"file_id"`
}

// Registry orchestrates validation, locking, dedup and persistence. All
// mutation of file, event and relation rows goes through it.
type Registry struct {
	db        *gorm.DB
	locks     *lock.Keyed
	validator *validators.RecordValidator
}

func New(db *gorm.DB, v *validators.RecordValidator, lockTimeout time.Duration) *Registry {
	return &Registry{
		db:        db,
		locks:     lock.NewKeyed(lockTimeout),
		validator: v,
	}
}

// NewFromConfig wires a Registry with the loaded viper config.
func NewFromConfig(db *gorm.DB) *Registry {
	timeout := time.Duration(viper.GetInt("lock.timeout_ms")) * time.Millisecond
	return New(db, validators.NewRecordValidator(), timeout)
}

// GetFile returns a live record by ID. Soft-deleted files are reported as
// missing.
func (r *Registry) GetFile(ctx context.Context, fileID string) (*model.File, error) {
	var file model.File

	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted = ?", fileID, false).
		First(&file).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, storeErr(err)
	}

	return &file, nil
}

// GetFileAudit bypasses the soft-delete filter. For audit and history
// queries only, never for caller-facing reads.
func (r *Registry) GetFileAudit(ctx context.Context, fileID string) (*model.File, error) {
	var file model.File

	err := r.db.WithContext(ctx).
		Where("id = ?", fileID).
		First(&file).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, storeErr(err)
	}

	return &file, nil
}

func now() int64 {
	return time.Now().UnixMilli()
}

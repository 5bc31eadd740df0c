package registry

import (
	"context"
	"errors"

	"filedrop/metadata-api/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RegisterDownload records one download of a live file and bumps its
// download counter in the same transaction.
func (r *Registry) RegisterDownload(ctx context.Context, fileID string, meta AccessMeta) (*AccessResult, error) {
	return r.recordAccess(ctx, fileID, model.AccessDownload, meta)
}

// RegisterView records one view of a live file and bumps its view counter in
// the same transaction.
func (r *Registry) RegisterView(ctx context.Context, fileID string, meta AccessMeta) (*AccessResult, error) {
	return r.recordAccess(ctx, fileID, model.AccessView, meta)
}

// recordAccess runs the download/view protocol: locate the live record under
// the file's lock, write the event, bump the counter. A missing or
// soft-deleted file yields ErrNotFound and no event row. Counters only move
// here, so they always equal what the event log says.
func (r *Registry) recordAccess(ctx context.Context, fileID, kind string, meta AccessMeta) (*AccessResult, error) {
	if fileID == "" {
		return nil, ErrNotFound
	}

	// Keyed by file ID: accesses to different files never serialize
	// against each other
	release, err := r.locks.Acquire(ctx, "file:"+fileID)
	if err != nil {
		return nil, lockErr(err)
	}
	defer release()

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file model.File

		err := tx.
			Where("id = ? AND deleted = ?", fileID, false).
			First(&file).
			Error
		if err != nil {
			return err
		}

		bytesSent := meta.BytesSent
		if bytesSent <= 0 {
			bytesSent = file.Size
		}

		if err := tx.Create(&model.AccessEvent{
			ID:        uuid.NewString(),
			FileID:    file.ID,
			Kind:      kind,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			SessionID: meta.SessionID,
			BytesSent: bytesSent,
			CreatedAt: now(),
		}).Error; err != nil {
			return err
		}

		counter := "views"
		if kind == model.AccessDownload {
			counter = "downloads"
		}

		return tx.
			Model(&model.File{}).
			Where("id = ?", file.ID).
			Updates(map[string]any{
				counter:      gorm.Expr(counter+" + ?", 1),
				"updated_at": now(),
			}).
			Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, storeErr(err)
	}

	return &AccessResult{
		Status: StatusRecorded,
		FileID: fileID,
	}, nil
}

// SoftDelete marks a file as logically removed while keeping the row, its
// events and its tag relations for audit. The fingerprint slot frees up for
// future registrations of the same content.
func (r *Registry) SoftDelete(ctx context.Context, fileID string) error {
	release, err := r.locks.Acquire(ctx, "file:"+fileID)
	if err != nil {
		return lockErr(err)
	}
	defer release()

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file model.File

		err := tx.
			Where("id = ? AND deleted = ?", fileID, false).
			First(&file).
			Error
		if err != nil {
			return err
		}

		ts := now()

		return tx.
			Model(&model.File{}).
			Where("id = ?", file.ID).
			Updates(map[string]any{
				"deleted":    true,
				"deleted_at": ts,
				"updated_at": ts,
			}).
			Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}

		return storeErr(err)
	}

	return nil
}

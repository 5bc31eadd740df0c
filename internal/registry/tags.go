package registry

import (
	"context"
	"errors"

	"filedrop/metadata-api/internal/model"

	"gorm.io/gorm"
)

// AttachTags links tags to an existing live file, creating missing tags on
// the fly. Each new relation bumps the tag's usage counter in the same
// transaction. Already attached tags are skipped without touching counters.
func (r *Registry) AttachTags(ctx context.Context, fileID string, tags []string) error {
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

		for _, name := range tags {
			tag, err := findOrCreateTag(tx, name)
			if err != nil {
				return err
			}

			var count int64
			err = tx.
				Model(&model.FileTag{}).
				Where("file_id = ? AND tag_id = ?", file.ID, tag.ID).
				Count(&count).
				Error
			if err != nil {
				return err
			}
			if count > 0 {
				continue
			}

			if err := applyTags(tx, file.ID, []string{name}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}

		return storeErr(err)
	}

	return nil
}

// DetachTag removes one tag relation and decrements the tag's usage counter
// in the same transaction. ErrNotFound covers a missing file, tag or
// relation alike.
func (r *Registry) DetachTag(ctx context.Context, fileID, tagName string) error {
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

		var tag model.Tag
		if err := tx.Where("name = ?", tagName).First(&tag).Error; err != nil {
			return err
		}

		res := tx.
			Where("file_id = ? AND tag_id = ?", file.ID, tag.ID).
			Delete(&model.FileTag{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.
			Model(&model.Tag{}).
			Where("id = ?", tag.ID).
			Update("usage_count", gorm.Expr("usage_count - ?", 1)).
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

// FileTags returns the tag names attached to a file, audit-style (works for
// soft-deleted files too since relations are retained).
func (r *Registry) FileTags(ctx context.Context, fileID string) ([]string, error) {
	var names []string

	err := r.db.WithContext(ctx).
		Model(&model.Tag{}).
		Joins("JOIN file_tags ON file_tags.tag_id = tags.id").
		Where("file_tags.file_id = ?", fileID).
		Order("tags.name").
		Pluck("tags.name", &names).
		Error
	if err != nil {
		return nil, storeErr(err)
	}

	return names, nil
}

package registry

import (
	"context"
	"errors"

	"filedrop/metadata-api/internal/model"
	"filedrop/metadata-api/pkg/validators"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const idCharset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RegisterUpload runs the upload protocol: validate, lock on the
// fingerprint, dedup-check, then either insert the record or report the
// existing one. Exactly one of any number of concurrent attempts with the
// same fingerprint creates the record; every other attempt sees it as a
// duplicate. The whole insert (file, audit event, tag relations, counters)
// commits or rolls back as one transaction.
func (r *Registry) RegisterUpload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	violation := r.validator.Validate(&validators.FileCandidate{
		OriginalName: req.OriginalName,
		Extension:    req.Extension,
		MediaType:    req.MediaType,
		Size:         req.Size,
		Fingerprint:  req.Fingerprint,
	})
	if violation != nil {
		r.recordRejection(ctx, req, violation)

		return &UploadResult{
			Status:    StatusRejected,
			Violation: violation,
		}, nil
	}

	release, err := r.locks.Acquire(ctx, "fingerprint:"+req.Fingerprint)
	if err != nil {
		return nil, lockErr(err)
	}
	defer release()

	result := &UploadResult{}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := dedupLookup(tx, req.Fingerprint)
		if err != nil {
			return err
		}

		if existing != nil {
			result.Status = StatusDuplicate
			result.FileID = existing.ID

			return writeUploadEvent(tx, req, model.OutcomeDuplicate, &existing.ID, "")
		}

		return insertOrResolve(tx, req, result)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	return result, nil
}

// insertOrResolve writes the new file row and everything that hangs off it.
// The insert runs under a savepoint: Postgres aborts the whole transaction
// after any failed statement, so without one the duplicate recovery below
// could never run its re-read there. When the fingerprint constraint fires
// the savepoint is rolled back and the committed row is reported instead.
func insertOrResolve(tx *gorm.DB, req *UploadRequest, result *UploadResult) error {
	fileID, err := gonanoid.Generate(idCharset, 16)
	if err != nil {
		return err
	}

	ts := now()
	file := &model.File{
		ID:           fileID,
		OriginalName: req.OriginalName,
		StoredName:   req.StoredName,
		Extension:    req.Extension,
		MediaType:    req.MediaType,
		Size:         req.Size,
		Fingerprint:  req.Fingerprint,
		StorageKey:   req.StorageKey,
		CategoryID:   req.CategoryID,
		Private:      req.Private,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}

	if err := tx.SavePoint("register_insert").Error; err != nil {
		return err
	}

	if err := tx.Create(file).Error; err != nil {
		if !isUniqueViolation(err) {
			return err
		}

		if err := tx.RollbackTo("register_insert").Error; err != nil {
			return err
		}

		// The constraint is the backstop behind the dedup lookup.
		// Someone committed the same content between our lookup and
		// insert, so re-read and report theirs
		existing, rerr := dedupLookup(tx, req.Fingerprint)
		if rerr != nil {
			return rerr
		}
		if existing == nil {
			return err
		}

		zap.L().Debug("Fingerprint constraint fired, resolving as duplicate",
			zap.String("fingerprint", req.Fingerprint),
			zap.String("fileID", existing.ID))

		result.Status = StatusDuplicate
		result.FileID = existing.ID

		return writeUploadEvent(tx, req, model.OutcomeDuplicate, &existing.ID, "")
	}

	if err := applyTags(tx, fileID, req.Tags); err != nil {
		return err
	}

	result.Status = StatusCreated
	result.FileID = fileID

	return writeUploadEvent(tx, req, model.OutcomeCreated, &fileID, "")
}

// dedupLookup is the content dedup index: a query against the file table
// itself so the index can never diverge from the store. Must run inside the
// same lock scope as the insert that follows it.
func dedupLookup(tx *gorm.DB, fingerprint string) (*model.File, error) {
	var file model.File

	err := tx.
		Where("fingerprint = ? AND deleted = ?", fingerprint, false).
		First(&file).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return &file, nil
}

// applyTags creates the tag relations for a new file, bumping each tag's
// usage counter inside the caller's transaction.
func applyTags(tx *gorm.DB, fileID string, tags []string) error {
	for _, name := range tags {
		tag, err := findOrCreateTag(tx, name)
		if err != nil {
			return err
		}

		if err := tx.Create(&model.FileTag{
			FileID:    fileID,
			TagID:     tag.ID,
			CreatedAt: now(),
		}).Error; err != nil {
			return err
		}

		if err := tx.
			Model(&model.Tag{}).
			Where("id = ?", tag.ID).
			Update("usage_count", gorm.Expr("usage_count + ?", 1)).
			Error; err != nil {
			return err
		}
	}

	return nil
}

func findOrCreateTag(tx *gorm.DB, name string) (*model.Tag, error) {
	var tag model.Tag

	err := tx.Where("name = ?", name).First(&tag).Error
	if err == nil {
		return &tag, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tag = model.Tag{
		Name:      name,
		CreatedAt: now(),
	}

	if err := tx.Create(&tag).Error; err != nil {
		return nil, err
	}

	return &tag, nil
}

func writeUploadEvent(tx *gorm.DB, req *UploadRequest, outcome string, fileID *string, reason string) error {
	return tx.Create(&model.UploadEvent{
		ID:        uuid.NewString(),
		FileID:    fileID,
		Outcome:   outcome,
		Reason:    reason,
		IP:        req.Access.IP,
		UserAgent: req.Access.UserAgent,
		SessionID: req.Access.SessionID,
		CreatedAt: now(),
	}).Error
}

// recordRejection writes the audit row for a failed validation. This happens
// before any lock is taken and outside any transaction; losing it must not
// fail the response, so errors are only logged.
func (r *Registry) recordRejection(ctx context.Context, req *UploadRequest, v *validators.Violation) {
	err := writeUploadEvent(
		r.db.WithContext(ctx),
		req,
		model.OutcomeRejected,
		nil,
		v.Field+": "+v.Reason,
	)
	if err != nil {
		zap.L().Error("Failed to record rejected upload attempt", zap.Error(err))
	}
}

func lockErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return ErrLockTimeout
}

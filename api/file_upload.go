package api

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"filedrop/metadata-api/internal/registry"
	"filedrop/metadata-api/internal/storage"
	"filedrop/metadata-api/pkg/util"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileUpload stores the raw bytes and registers the file's metadata. The
// interesting decisions (dedup, locking, counters) all happen inside the
// registry; this handler only moves bytes and translates results.
func (a *API) FileUpload(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	fh, err := c.FormFile("file")
	if err != nil || fh == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No file provided",
			"requestID": requestID,
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to open multipart file", zap.String("requestID", requestID), zap.Error(err))
		return
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to sniff media type", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	if _, err := f.Seek(0, 0); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})
		return
	}

	fingerprint, size, err := storage.Fingerprint(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fingerprint upload", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	if _, err := f.Seek(0, 0); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})
		return
	}

	ext := strings.TrimPrefix(path.Ext(fh.Filename), ".")
	storedName := util.RandStr(10)
	if ext != "" {
		storedName += "." + ext
	}

	// Bytes must land in the blob store before any metadata exists for them
	err = a.Blobs.Put(c.Request.Context(), storedName, f, size, mtype.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to store blob", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	var tags []string
	if raw := c.PostForm("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	res, err := a.Registry.RegisterUpload(c.Request.Context(), &registry.UploadRequest{
		OriginalName: fh.Filename,
		StoredName:   storedName,
		Extension:    ext,
		MediaType:    mtype.String(),
		Size:         size,
		Fingerprint:  fingerprint,
		StorageKey:   storedName,
		Private:      c.PostForm("private") == "true",
		Tags:         tags,
		Access: registry.AccessMeta{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			SessionID: c.GetHeader("X-Session-ID"),
		},
	})
	if err != nil {
		a.cleanupBlob(storedName)

		if errors.Is(err, registry.ErrLockTimeout) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":     "Server is busy, please retry",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to register upload", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	switch res.Status {
	case registry.StatusCreated:
		c.JSON(http.StatusCreated, gin.H{
			"status":    res.Status,
			"file_id":   res.FileID,
			"requestID": requestID,
		})

	case registry.StatusDuplicate:
		// The content already exists, drop the blob written above so
		// identical bytes are never stored twice
		a.cleanupBlob(storedName)

		c.JSON(http.StatusOK, gin.H{
			"status":    res.Status,
			"file_id":   res.FileID,
			"message":   "Identical content already exists",
			"requestID": requestID,
		})

	case registry.StatusRejected:
		a.cleanupBlob(storedName)

		c.JSON(http.StatusBadRequest, gin.H{
			"status":    res.Status,
			"field":     res.Violation.Field,
			"reason":    res.Violation.Reason,
			"requestID": requestID,
		})
	}
}

func (a *API) cleanupBlob(key string) {
	if err := a.Blobs.Delete(context.Background(), key); err != nil {
		zap.L().Error("Failed to clean up blob", zap.String("key", key), zap.Error(err))
	}
}

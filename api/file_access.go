package api

import (
	"context"
	"errors"
	"net/http"

	"filedrop/metadata-api/internal/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type accessFn func(ctx context.Context, fileID string, meta registry.AccessMeta) (*registry.AccessResult, error)

// FileDownload records a download event against a live file
func (a *API) FileDownload(c *gin.Context) {
	a.recordAccess(c, a.Registry.RegisterDownload)
}

// FileView records a view event against a live file
func (a *API) FileView(c *gin.Context) {
	a.recordAccess(c, a.Registry.RegisterView)
}

func (a *API) recordAccess(c *gin.Context, record accessFn) {
	requestID := c.MustGet("requestID").(string)

	fileID := c.Param("id")
	if fileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No file ID provided",
			"requestID": requestID,
		})

		return
	}

	var body struct {
		BytesSent int64 `json:"bytes_sent"`
	}
	// Body is optional, a bare POST records the full file size
	_ = c.ShouldBindJSON(&body)

	res, err := record(c.Request.Context(), fileID, registry.AccessMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		SessionID: c.GetHeader("X-Session-ID"),
		BytesSent: body.BytesSent,
	})
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":    "not_found",
				"requestID": requestID,
			})

			return
		}

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

		zap.L().Error("Failed to record access event", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    res.Status,
		"file_id":   res.FileID,
		"requestID": requestID,
	})
}

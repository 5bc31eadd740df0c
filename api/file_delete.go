package api

import (
	"errors"
	"net/http"

	"filedrop/metadata-api/internal/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileDelete soft-deletes a file. The metadata row and its history stay
// behind for audit; the stored bytes are removed.
func (a *API) FileDelete(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	fileID := c.Param("id")
	if fileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No file ID provided",
			"requestID": requestID,
		})

		return
	}

	file, err := a.Registry.GetFile(c.Request.Context(), fileID)
	if err == nil {
		err = a.Registry.SoftDelete(c.Request.Context(), fileID)
	}
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "File not found",
				"requestID": requestID,
			})

			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to delete file", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	a.cleanupBlob(file.StorageKey)

	c.Status(http.StatusNoContent)
}

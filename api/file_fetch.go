package api

import (
	"errors"
	"net/http"

	"filedrop/metadata-api/internal/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (a *API) FileFetch(c *gin.Context) {
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

		zap.L().Error("Failed to fetch file from db", zap.Error(err))
		return
	}

	tags, err := a.Registry.FileTags(c.Request.Context(), fileID)
	if err != nil {
		zap.L().Error("Failed to fetch file tags", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"file": file,
		"tags": tags,
	})
}

package api

import (
	"errors"
	"net/http"

	"filedrop/metadata-api/internal/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileTagsAttach links tags to an existing file
func (a *API) FileTagsAttach(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	fileID := c.Param("id")

	var body struct {
		Tags []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Tags) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No tags provided",
			"requestID": requestID,
		})

		return
	}

	err := a.Registry.AttachTags(c.Request.Context(), fileID, body.Tags)
	if err != nil {
		a.tagError(c, requestID, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// FileTagsDetach removes a single tag from a file
func (a *API) FileTagsDetach(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	err := a.Registry.DetachTag(c.Request.Context(), c.Param("id"), c.Param("tag"))
	if err != nil {
		a.tagError(c, requestID, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) tagError(c *gin.Context, requestID string, err error) {
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "File or tag not found",
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

	zap.L().Error("Tag operation failed", zap.String("requestID", requestID), zap.Error(err))
}

package api

import (
	"net/http"
	"strings"

	"github.com/FrezCirno/CloudStorageSystem/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileDelete removes the requester's link to a file. The deduplicated
// content row stays even when the last link disappears; reclaiming
// unreferenced content is a job for an offline sweep, not the request
// path.
func (a *API) FileDelete(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	hash := strings.ToLower(c.Param("hash"))
	if hash == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "No file hash provided",
			"requestID": requestID,
		})
		return
	}

	res := a.DB.
		Where("user_id = ? AND file_hash = ?", userID, hash).
		Delete(model.UserFile{})
	if res.Error != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to delete file link", zap.Error(res.Error))
		return
	}

	if res.RowsAffected == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "File not found. It either doesn't exist or you don't own it",
			"requestID": requestID,
		})
		return
	}

	c.Status(http.StatusOK)
}

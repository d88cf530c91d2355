package api

import (
	"net/http"
	"strings"

	"github.com/FrezCirno/CloudStorageSystem/validators"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type uploadCompleteBody struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
	Name string `json:"name"`
}

// UploadComplete finalizes a session. A 409 means a finalization for
// the same content is already running and the client should retry in a
// moment; a 412 means chunks are still missing.
func (a *API) UploadComplete(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	var data uploadCompleteBody
	if err := c.BindJSON(&data); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	if err := validators.HashValidator(data.Hash); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}

	if strings.TrimSpace(data.Name) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "No file name provided",
			"requestID": requestID,
		})
		return
	}

	err := a.Uploads.Complete(c.Request.Context(), c.Param("key"), data.Hash, data.Size, data.Name, userID)
	if err != nil {
		status := uploadErrStatus(err)

		c.AbortWithStatusJSON(status, gin.H{
			"error":     uploadErrMessage(err),
			"requestID": requestID,
		})

		if status >= http.StatusInternalServerError {
			zap.L().Error("Failed to finalize upload", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	c.Status(http.StatusOK)
}

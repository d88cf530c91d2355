package api

import (
	"net/http"
	"strings"

	"github.com/FrezCirno/CloudStorageSystem/validators"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type fastUploadBody struct {
	Hash string `json:"hash"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// FileFastUpload links the user to content the server already stores,
// transferring zero bytes. A miss is reported as 404 and the client is
// expected to fall back to a chunked upload. The hit is advisory: even
// after a miss here, completion re-checks the index before storing
// anything twice.
func (a *API) FileFastUpload(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	var data fastUploadBody
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

	data.Hash = strings.ToLower(data.Hash)

	if strings.TrimSpace(data.Name) == "" || data.Size <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Name and size are required",
			"requestID": requestID,
		})
		return
	}

	exists, err := a.Uploads.Meta.FileHashExists(c.Request.Context(), data.Hash)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to check dedup index", zap.Error(err))
		return
	}

	if !exists {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "Content not stored yet, use the chunked upload",
			"requestID": requestID,
		})
		return
	}

	err = a.Uploads.Meta.CreateUserFileLink(c.Request.Context(), userID, data.Hash, data.Name, data.Size)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to create file link", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hash": data.Hash,
		"name": data.Name,
	})
}

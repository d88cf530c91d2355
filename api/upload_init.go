package api

import (
	"net/http"

	"github.com/FrezCirno/CloudStorageSystem/validators"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type uploadInitBody struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

type uploadStateResponse struct {
	UploadKey     string `json:"uploadKey"`
	ChunkSize     int64  `json:"chunkSize"`
	ChunkCount    int    `json:"chunkCount"`
	ChunksPresent []int  `json:"chunksPresent"`
}

// UploadInit creates a chunked upload session or resumes the caller's
// existing one for the same content. The response lists the chunk
// indices the server already holds so the client can skip them.
func (a *API) UploadInit(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	var data uploadInitBody
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

	if data.Size <= 0 || data.Size > viper.GetInt64("upload.max_size") {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid file size",
			"requestID": requestID,
		})
		return
	}

	s, present, err := a.Uploads.Initiate(c.Request.Context(), userID, data.Hash, data.Size)
	if err != nil {
		c.AbortWithStatusJSON(uploadErrStatus(err), gin.H{
			"error":     uploadErrMessage(err),
			"requestID": requestID,
		})

		zap.L().Error("Failed to initiate upload session", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, uploadStateResponse{
		UploadKey:     s.UploadKey,
		ChunkSize:     s.ChunkSize,
		ChunkCount:    s.ChunkCount,
		ChunksPresent: present,
	})
}

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UploadChunk accepts one chunk's raw bytes. Chunks may arrive in any
// order and re-sending an index is harmless.
func (a *API) UploadChunk(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	uploadKey := c.Param("key")

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Chunk index is not a valid integer",
			"requestID": requestID,
		})
		return
	}

	err = a.Uploads.AcceptChunk(c.Request.Context(), uploadKey, index, userID, c.Request.Body)
	if err != nil {
		status := uploadErrStatus(err)

		c.AbortWithStatusJSON(status, gin.H{
			"error":     uploadErrMessage(err),
			"requestID": requestID,
		})

		if status >= http.StatusInternalServerError {
			zap.L().Error("Failed to accept chunk", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	c.Status(http.StatusOK)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UploadStatus reports session parameters and received chunk indices
// so an interrupted client can find out where to resume.
func (a *API) UploadStatus(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	s, present, err := a.Uploads.Status(c.Request.Context(), c.Param("key"), userID)
	if err != nil {
		c.AbortWithStatusJSON(uploadErrStatus(err), gin.H{
			"error":     uploadErrMessage(err),
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, uploadStateResponse{
		UploadKey:     s.UploadKey,
		ChunkSize:     s.ChunkSize,
		ChunkCount:    s.ChunkCount,
		ChunksPresent: present,
	})
}

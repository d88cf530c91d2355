package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UploadCancel drops the session, its chunk set and any staged chunk
// files. Cancelling a session that's already gone is a 404, which
// callers racing a completion are expected to tolerate.
func (a *API) UploadCancel(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	err := a.Uploads.Cancel(c.Request.Context(), c.Param("key"), userID)
	if err != nil {
		c.AbortWithStatusJSON(uploadErrStatus(err), gin.H{
			"error":     uploadErrMessage(err),
			"requestID": requestID,
		})
		return
	}

	c.Status(http.StatusOK)
}

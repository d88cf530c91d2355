package api

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/FrezCirno/CloudStorageSystem/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FileServe streams a file's content to its owner, either from the
// local staging area while migration is pending or from the bucket
// once the content is durable.
func (a *API) FileServe(c *gin.Context) {
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

	var link model.UserFile
	err := a.DB.
		Where("user_id = ? AND file_hash = ?", userID, hash).
		First(&link).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":     "File not found",
				"requestID": requestID,
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch file link", zap.Error(err))
		return
	}

	var file model.File
	err = a.DB.
		Where("hash = ?", hash).
		First(&file).
		Error
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch file record", zap.Error(err))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+link.FileName+`"`)

	if !file.Durable {
		if _, err := os.Stat(file.Location); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":     "File is still being processed, try again shortly",
				"requestID": requestID,
			})
			return
		}

		c.File(file.Location)
		return
	}

	obj, err := a.S3.C.GetObject(c.Request.Context(), &s3.GetObjectInput{
		Bucket: a.S3.Bucket,
		Key:    aws.String(file.Location),
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch object from S3", zap.String("key", file.Location), zap.Error(err))
		return
	}
	defer obj.Body.Close()

	c.DataFromReader(http.StatusOK, aws.ToInt64(obj.ContentLength), "application/octet-stream", obj.Body, nil)
}

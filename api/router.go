// Package api contains all endpoints available
package api

import (
	"fmt"
	"time"

	"github.com/FrezCirno/CloudStorageSystem/aws"
	"github.com/FrezCirno/CloudStorageSystem/db"
	"github.com/FrezCirno/CloudStorageSystem/internal/store"
	"github.com/FrezCirno/CloudStorageSystem/internal/transfer"
	"github.com/FrezCirno/CloudStorageSystem/internal/upload"
	"github.com/FrezCirno/CloudStorageSystem/middleware"
	"github.com/FrezCirno/CloudStorageSystem/pkg/security"

	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

type API struct {
	DB        *gorm.DB
	Router    *gin.Engine
	Argon     *security.ArgonHash
	S3        *aws.S3Client
	Store     store.SessionStore
	Uploads   *upload.Manager
	Publisher *transfer.Publisher
}

func NewRouter() (*API, error) {
	a := &API{}

	d, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}
	a.DB = d

	makeLogger()

	rs, err := store.NewRedis()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store, %w", err)
	}
	a.Store = rs

	a.Publisher = transfer.NewPublisher()
	a.Uploads = upload.NewManager(rs, db.NewMetaStore(d), a.Publisher)

	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	jwt := middleware.NewJWTMiddleware(d)
	chunkSize := viper.GetInt64("upload.chunk_size")

	main := router.Group("/api")
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		main.HEAD("/heartbeat", a.Heartbeat)

		// HEAD /api/validate		-> Validates a JWT token
		main.HEAD("/validate", jwt, a.Validate)
	}

	users := main.Group("/users", middleware.BodySizeLimiter(1<<20))
	{
		// POST /api/users 		-> Registers a new user
		users.POST("", a.UserRegister)

		// POST /api/users/login 	-> Logs in a user and returns a JWT token
		users.POST("/login", a.UserLogin)
	}

	files := main.Group("/files", jwt)
	{
		// GET /api/files 			-> Lists the user's files
		files.GET("", a.FileFetchBulk)

		// GET /api/files/:hash/content 	-> Downloads a file
		files.GET("/:hash/content", a.FileServe)

		// POST /api/files/fast 		-> Links existing content by hash, no bytes transferred
		files.POST("/fast", middleware.BodySizeLimiter(1<<20), a.FileFastUpload)

		// PATCH /api/files/:hash 		-> Renames a file
		files.PATCH("/:hash", middleware.BodySizeLimiter(1<<20), a.FileEdit)

		// DELETE /api/files/:hash 		-> Removes the user's link to a file
		files.DELETE("/:hash", a.FileDelete)
	}

	uploads := main.Group("/upload", jwt)
	{
		// POST /api/upload/init 		-> Creates or resumes an upload session
		uploads.POST("/init", middleware.BodySizeLimiter(1<<20), a.UploadInit)

		// GET /api/upload/:key 		-> Reports which chunks the server holds
		uploads.GET("/:key", a.UploadStatus)

		// POST /api/upload/:key/:index 	-> Uploads one chunk as a raw body
		uploads.POST("/:key/:index", middleware.BodySizeLimiter(chunkSize+1<<10), a.UploadChunk)

		// POST /api/upload/:key/complete 	-> Finalizes the upload once all chunks are present
		uploads.POST("/:key/complete", middleware.BodySizeLimiter(1<<20), a.UploadComplete)

		// DELETE /api/upload/:key 		-> Cancels the session and drops staged chunks
		uploads.DELETE("/:key", a.UploadCancel)
	}

	a.Argon = security.New()

	s3, err := aws.NewS3()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client, %w", err)
	}
	a.S3 = s3

	return a, nil
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

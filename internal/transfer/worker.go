package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	a "github.com/FrezCirno/CloudStorageSystem/aws"
	"github.com/FrezCirno/CloudStorageSystem/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Above this size the migration switches to the concurrent multipart
// uploader
const minMultipartSize = 12 << 20

// Worker consumes migration tasks and copies staged files into the
// bucket. Migrations are idempotent per hash: a redelivered task for
// content that's already durable is acknowledged without re-uploading.
type Worker struct {
	srv *asynq.Server
	db  *gorm.DB
	s3  *a.S3Client
}

func NewWorker(db *gorm.DB, s3c *a.S3Client) *Worker {
	srv := asynq.NewServer(redisOpt(), asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"transfer": 1,
		},
	})

	return &Worker{
		srv: srv,
		db:  db,
		s3:  s3c,
	}
}

// Start attaches the task handlers and runs the worker pool in the
// background.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeMigrate, w.handleMigrate)

	return w.srv.Start(mux)
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

func (w *Worker) handleMigrate(ctx context.Context, t *asynq.Task) error {
	var p MigratePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("malformed migration payload, %v: %w", err, asynq.SkipRetry)
	}

	var file model.File
	err := w.db.WithContext(ctx).Where("hash = ?", p.Hash).First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Metadata row is gone, nothing to migrate
			return fmt.Errorf("no file record for hash %s: %w", p.Hash, asynq.SkipRetry)
		}

		return fmt.Errorf("failed to look up file record, %w", err)
	}

	if file.Durable {
		// Duplicate delivery, the content already made it
		os.Remove(p.Source)
		return nil
	}

	src, err := os.Open(p.Source)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("staged file %s is gone: %w", p.Source, asynq.SkipRetry)
		}

		return fmt.Errorf("failed to open staged file, %w", err)
	}
	defer src.Close()

	stat, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat staged file, %w", err)
	}

	now := time.Now()

	objectInput := &s3.PutObjectInput{
		Bucket:        w.s3.Bucket,
		Key:           aws.String(p.Dest),
		Body:          src,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String("application/octet-stream"),
	}

	if stat.Size() > minMultipartSize {
		uploader := manager.NewUploader(w.s3.C, func(u *manager.Uploader) {
			u.Concurrency = 5
			u.PartSize = 6 << 20
		})

		_, err = uploader.Upload(ctx, objectInput)
	} else {
		_, err = w.s3.C.PutObject(ctx, objectInput)
	}
	if err != nil {
		return fmt.Errorf("failed to upload staged file to S3, %w", err)
	}

	err = w.db.
		WithContext(ctx).
		Model(model.File{}).
		Where("hash = ?", p.Hash).
		Updates(map[string]any{
			"location": p.Dest,
			"durable":  true,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to mark file durable, %w", err)
	}

	if err := os.Remove(p.Source); err != nil {
		zap.L().Error("Failed to remove staged file after migration", zap.String("path", p.Source), zap.Error(err))
	}

	zap.L().Info("Staged file migrated",
		zap.String("hash", p.Hash),
		zap.String("dest", p.Dest),
		zap.Duration("took", time.Since(now)))

	return nil
}

// Package service holds background maintenance jobs that run alongside
// the request handlers
package service

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/FrezCirno/CloudStorageSystem/internal/store"
	"github.com/FrezCirno/CloudStorageSystem/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StagingCleanup periodically sweeps the staging area. Chunk
// directories whose session expired and merged files that either lost
// their metadata row to a failed finalization or already migrated are
// deleted. Upload state itself expires through store TTLs, only the
// local files need help.
func StagingCleanup(t time.Duration, tempDir string, s store.SessionStore, db *gorm.DB) {
	ticker := time.NewTicker(t)

	zap.L().Debug("Staging cleanup attached", zap.Duration("tick_every", t))

	go func() {
		for range ticker.C {
			sweepChunks(tempDir, s)
			sweepStaged(tempDir, db)
		}
	}()
}

// SweepStagingOnce runs a single sweep immediately, used by the
// --sweep-staging startup flag.
func SweepStagingOnce(tempDir string, s store.SessionStore, db *gorm.DB) {
	sweepChunks(tempDir, s)
	sweepStaged(tempDir, db)
}

func sweepChunks(tempDir string, s store.SessionStore) {
	entries, err := os.ReadDir(filepath.Join(tempDir, "chunks"))
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Error("Failed to read chunk staging directory", zap.Error(err))
		}
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		alive, err := s.Exists(context.Background(), "upload:"+entry.Name())
		if err != nil {
			zap.L().Error("Failed to check session liveness", zap.String("uploadKey", entry.Name()), zap.Error(err))
			continue
		}

		if alive {
			continue
		}

		if err := os.RemoveAll(filepath.Join(tempDir, "chunks", entry.Name())); err != nil {
			zap.L().Error("Failed to remove orphaned chunk directory", zap.String("uploadKey", entry.Name()), zap.Error(err))
			continue
		}

		zap.L().Debug("Removed orphaned chunk directory", zap.String("uploadKey", entry.Name()))
	}
}

func sweepStaged(tempDir string, db *gorm.DB) {
	entries, err := os.ReadDir(filepath.Join(tempDir, "staged"))
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Error("Failed to read merge staging directory", zap.Error(err))
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Leave fresh files alone, a finalization may still be in
		// flight between merge and metadata write
		if info, err := entry.Info(); err != nil || time.Since(info.ModTime()) < time.Hour {
			continue
		}

		var file model.File
		err := db.Where("hash = ?", entry.Name()).First(&file).Error

		keep := err == nil && !file.Durable
		if err != nil && err != gorm.ErrRecordNotFound {
			zap.L().Error("Failed to look up staged file", zap.String("hash", entry.Name()), zap.Error(err))
			continue
		}

		if keep {
			continue
		}

		if err := os.Remove(filepath.Join(tempDir, "staged", entry.Name())); err != nil {
			zap.L().Error("Failed to remove orphaned staged file", zap.String("hash", entry.Name()), zap.Error(err))
			continue
		}

		zap.L().Debug("Removed orphaned staged file", zap.String("hash", entry.Name()))
	}
}

package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Complete finalizes a session once every chunk is present: merge the
// chunks in index order, resolve deduplication, register metadata,
// hand the staged file to the migration queue and clear session state.
//
// A completion guard keyed by content hash makes the whole sequence
// run at most once per hash, even when sessions owned by different
// users race to finalize identical content. The guard is released on
// every exit path; its TTL is only a backstop against a crashed
// finalizer wedging future uploads of the same content.
func (m *Manager) Complete(ctx context.Context, uploadKey, fileHash string, fileSize int64, fileName, requester string) error {
	s, err := m.loadSession(ctx, uploadKey, requester)
	if err != nil {
		return err
	}

	// Sessions store the lowercased digest
	fileHash = strings.ToLower(fileHash)

	if fileName == "" {
		return fmt.Errorf("%w: file name missing", ErrInvalidArgument)
	}

	if fileHash != s.FileHash || fileSize != s.FileSize {
		return fmt.Errorf("%w: hash or size differs from the initiated session", ErrInvalidArgument)
	}

	received, err := m.Store.SetCard(ctx, chunksKey(uploadKey))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if received != int64(s.ChunkCount) {
		return fmt.Errorf("%w: have %d of %d chunks", ErrIncomplete, received, s.ChunkCount)
	}

	acquired, err := m.Store.SetIfAbsent(ctx, guardKey(fileHash), uploadKey, m.GuardTTL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if !acquired {
		return ErrConflict
	}

	defer func() {
		if err := m.Store.Delete(context.WithoutCancel(ctx), guardKey(fileHash)); err != nil {
			zap.L().Error("Failed to release completion guard", zap.String("hash", fileHash), zap.Error(err))
		}
	}()

	merged, err := m.mergeChunks(s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	// The index is re-checked under the guard: a concurrent session may
	// have stored this content after the client's initial dedup probe.
	// Identical bytes must never be stored twice
	exists, err := m.Meta.FileHashExists(ctx, fileHash)
	if err != nil {
		os.Remove(merged)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if exists {
		// The staged path belongs to the first finalizer and its
		// migration may still be queued, so only our private merge file
		// is dropped
		if err := os.Remove(merged); err != nil {
			zap.L().Error("Failed to drop redundant merged file", zap.String("path", merged), zap.Error(err))
		}
	} else {
		staged := m.StagedPath(fileHash)

		if err := os.Rename(merged, staged); err != nil {
			os.Remove(merged)
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		if err := m.Meta.CreateFileMeta(ctx, fileHash, fileName, fileSize, staged); err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		if err := m.Queue.PublishMigration(ctx, fileHash, staged, "files/"+fileHash); err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	if err := m.Meta.CreateUserFileLink(ctx, s.Owner, fileHash, fileName, fileSize); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	m.cleanupSession(ctx, s)

	zap.L().Info("Upload finalized",
		zap.String("uploadKey", uploadKey),
		zap.String("hash", fileHash),
		zap.Bool("deduplicated", exists))

	return nil
}

// mergeChunks concatenates chunks 0..chunkCount-1 by numeric index
// into a private temp file in the staging area and returns its path.
// Arrival order is irrelevant, position is dictated by the index
// alone. The caller decides whether the result lands on the shared
// staged path or gets discarded as a duplicate.
func (m *Manager) mergeChunks(s *Session) (string, error) {
	if err := os.MkdirAll(filepath.Dir(m.StagedPath(s.FileHash)), 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory, %w", err)
	}

	merged, err := os.CreateTemp(filepath.Dir(m.StagedPath(s.FileHash)), "merge-*")
	if err != nil {
		return "", fmt.Errorf("failed to create merge file, %w", err)
	}

	for i := range s.ChunkCount {
		chunk, err := os.Open(m.chunkPath(s.UploadKey, i))
		if err != nil {
			merged.Close()
			os.Remove(merged.Name())
			return "", fmt.Errorf("failed to open chunk %d, %w", i, err)
		}

		_, err = io.Copy(merged, chunk)
		chunk.Close()
		if err != nil {
			merged.Close()
			os.Remove(merged.Name())
			return "", fmt.Errorf("failed to append chunk %d, %w", i, err)
		}
	}

	if err := merged.Close(); err != nil {
		os.Remove(merged.Name())
		return "", fmt.Errorf("failed to close merge file, %w", err)
	}

	return merged.Name(), nil
}

// cleanupSession removes the per-chunk files and all session state.
// Failures here leave garbage for the staging sweep, not a broken
// upload, so they are only logged.
func (m *Manager) cleanupSession(ctx context.Context, s *Session) {
	if err := os.RemoveAll(m.chunkDir(s.UploadKey)); err != nil {
		zap.L().Error("Failed to remove chunk directory", zap.String("uploadKey", s.UploadKey), zap.Error(err))
	}

	err := m.Store.Delete(ctx,
		sessionKey(s.UploadKey),
		chunksKey(s.UploadKey),
		resumeKey(s.Owner, s.FileHash),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("Failed to clear session state", zap.String("uploadKey", s.UploadKey), zap.Error(err))
	}
}

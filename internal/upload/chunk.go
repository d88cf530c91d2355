package upload

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// AcceptChunk persists one chunk's bytes for a session and records its
// index as received. Re-uploading an index is safe: the bytes fully
// replace the previous ones and the set insert is a no-op.
func (m *Manager) AcceptChunk(ctx context.Context, uploadKey string, index int, requester string, body io.Reader) error {
	s, err := m.loadSession(ctx, uploadKey, requester)
	if err != nil {
		return err
	}

	if index < 0 || index >= s.ChunkCount {
		return fmt.Errorf("%w: chunk index %d outside [0, %d)", ErrInvalidArgument, index, s.ChunkCount)
	}

	if err := os.MkdirAll(m.chunkDir(uploadKey), 0o755); err != nil {
		return fmt.Errorf("failed to create chunk directory, %w", err)
	}

	// Write to a temp file first so a half-written re-upload never
	// clobbers a complete chunk already on disk
	temp, err := os.CreateTemp(m.chunkDir(uploadKey), "part-*")
	if err != nil {
		return fmt.Errorf("failed to create chunk file, %w", err)
	}

	_, err = io.Copy(temp, body)
	if err != nil {
		temp.Close()
		os.Remove(temp.Name())
		return fmt.Errorf("failed to write chunk, %w", err)
	}

	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return fmt.Errorf("failed to close chunk file, %w", err)
	}

	if err := os.Rename(temp.Name(), m.chunkPath(uploadKey, index)); err != nil {
		os.Remove(temp.Name())
		return fmt.Errorf("failed to place chunk file, %w", err)
	}

	if err := m.Store.AddToSet(ctx, chunksKey(uploadKey), fmt.Sprint(index)); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	// Every accepted chunk extends the session's life
	for _, key := range []string{
		sessionKey(uploadKey),
		chunksKey(uploadKey),
		resumeKey(s.Owner, s.FileHash),
	} {
		if err := m.Store.Expire(ctx, key, m.SessionTTL); err != nil {
			zap.L().Error("Failed to refresh session TTL", zap.String("key", key), zap.Error(err))
		}
	}

	zap.L().Debug("Chunk accepted",
		zap.String("uploadKey", uploadKey),
		zap.Int("index", index))

	return nil
}

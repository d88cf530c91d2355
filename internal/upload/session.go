package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/FrezCirno/CloudStorageSystem/internal/store"
	"go.uber.org/zap"
)

// initAttempts bounds the create-or-resume loop in Initiate. More than
// one retry only happens when the resume pointer keeps expiring
// between our SETNX and the follow-up read.
const initAttempts = 3

// Initiate creates a new upload session for (owner, fileHash) or
// resumes the existing one. The returned indices are the chunks the
// server already holds, so a resuming client can skip them.
//
// The resume pointer is claimed with an atomic create-if-absent, so
// two concurrent initiations for the same pair converge on a single
// session: exactly one SETNX wins and the loser reads the winner's
// key.
func (m *Manager) Initiate(ctx context.Context, owner, fileHash string, fileSize int64) (*Session, []int, error) {
	if owner == "" || fileHash == "" || fileSize <= 0 {
		return nil, nil, ErrInvalidArgument
	}

	// Hex digests are case-insensitive but every dedup key derived from
	// them is not, so the casing is pinned here
	fileHash = strings.ToLower(fileHash)

	for range initAttempts {
		uploadKey := newUploadKey(owner, fileHash)

		created, err := m.Store.SetIfAbsent(ctx, resumeKey(owner, fileHash), uploadKey, m.SessionTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		if created {
			s := &Session{
				UploadKey:  uploadKey,
				Owner:      owner,
				FileHash:   fileHash,
				FileSize:   fileSize,
				ChunkSize:  m.ChunkSize,
				ChunkCount: int((fileSize + m.ChunkSize - 1) / m.ChunkSize),
			}

			if err := m.Store.HashSetAll(ctx, sessionKey(uploadKey), s.encode()); err != nil {
				return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
			}

			if err := m.Store.Expire(ctx, sessionKey(uploadKey), m.SessionTTL); err != nil {
				return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
			}

			zap.L().Debug("Upload session created",
				zap.String("uploadKey", uploadKey),
				zap.String("hash", fileHash),
				zap.Int("chunkCount", s.ChunkCount))

			return s, []int{}, nil
		}

		// Someone else holds the pointer, resume their session
		existingKey, err := m.Store.GetString(ctx, resumeKey(owner, fileHash))
		if errors.Is(err, store.ErrKeyMissing) {
			// Pointer expired between the SETNX and the read
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		s, err := m.loadSession(ctx, existingKey, owner)
		if errors.Is(err, ErrNotFound) {
			// Stale pointer to an expired session, drop it and retry
			if err := m.Store.Delete(ctx, resumeKey(owner, fileHash)); err != nil {
				return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		indices, err := m.chunkIndices(ctx, existingKey)
		if err != nil {
			return nil, nil, err
		}

		zap.L().Debug("Upload session resumed",
			zap.String("uploadKey", existingKey),
			zap.Int("chunksPresent", len(indices)))

		return s, indices, nil
	}

	return nil, nil, fmt.Errorf("%w: could not claim upload session", ErrUnavailable)
}

// Status reports the session parameters and which chunk indices have
// been received so far.
func (m *Manager) Status(ctx context.Context, uploadKey, requester string) (*Session, []int, error) {
	s, err := m.loadSession(ctx, uploadKey, requester)
	if err != nil {
		return nil, nil, err
	}

	indices, err := m.chunkIndices(ctx, uploadKey)
	if err != nil {
		return nil, nil, err
	}

	return s, indices, nil
}

// Cancel tears down a session: staged chunks, the chunk set, the
// session record and the resume pointer. Racing against an in-flight
// chunk upload or completion is fine, the loser just sees ErrNotFound.
func (m *Manager) Cancel(ctx context.Context, uploadKey, requester string) error {
	s, err := m.loadSession(ctx, uploadKey, requester)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(m.chunkDir(uploadKey)); err != nil {
		zap.L().Error("Failed to remove staged chunks", zap.String("uploadKey", uploadKey), zap.Error(err))
	}

	err = m.Store.Delete(ctx,
		sessionKey(uploadKey),
		chunksKey(uploadKey),
		resumeKey(s.Owner, s.FileHash),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	zap.L().Debug("Upload session cancelled", zap.String("uploadKey", uploadKey))
	return nil
}

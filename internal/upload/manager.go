// Package upload implements the chunked-upload coordination and
// deduplication pipeline: session lifecycle, chunk staging, and the
// merge/dedup/finalize sequence that runs at most once per content
// hash even under concurrent completion attempts.
package upload

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/FrezCirno/CloudStorageSystem/internal/store"
	"github.com/FrezCirno/CloudStorageSystem/util"
	"github.com/spf13/viper"
)

// MetaStore is the slice of the file metadata store the pipeline
// consumes. FileHashExists doubles as the deduplication index lookup.
type MetaStore interface {
	FileHashExists(ctx context.Context, hash string) (bool, error)
	CreateFileMeta(ctx context.Context, hash, name string, size int64, location string) error
	CreateUserFileLink(ctx context.Context, userID, hash, name string, size int64) error
}

// Publisher hands a staged file over to the migration queue. Delivery
// is fire-and-forget; the pipeline only cares that the message was
// accepted.
type Publisher interface {
	PublishMigration(ctx context.Context, hash, source, dest string) error
}

// Manager owns every operation on upload sessions. It keeps no state
// of its own: all coordination lives in the session store so any
// number of server instances can share the work.
type Manager struct {
	Store store.SessionStore
	Meta  MetaStore
	Queue Publisher

	// Root of the local staging area for chunks and merged files
	TempDir string

	ChunkSize  int64
	SessionTTL time.Duration
	GuardTTL   time.Duration
}

func NewManager(s store.SessionStore, m MetaStore, q Publisher) *Manager {
	return &Manager{
		Store:      s,
		Meta:       m,
		Queue:      q,
		TempDir:    viper.GetString("storage.temp_dir"),
		ChunkSize:  viper.GetInt64("upload.chunk_size"),
		SessionTTL: viper.GetDuration("upload.session_ttl"),
		GuardTTL:   viper.GetDuration("upload.guard_ttl"),
	}
}

// Session is one resumable upload attempt, stored as a hash in the
// session store under sessionKey(UploadKey).
type Session struct {
	UploadKey  string
	Owner      string
	FileHash   string
	FileSize   int64
	ChunkSize  int64
	ChunkCount int
}

func sessionKey(uploadKey string) string {
	return "upload:" + uploadKey
}

func chunksKey(uploadKey string) string {
	return "upload:" + uploadKey + ":chunks"
}

// resumeKey points from (owner, hash) to the live upload key so a
// second initiation resumes instead of duplicating the session.
func resumeKey(owner, fileHash string) string {
	return "uploading:" + owner + ":" + fileHash
}

// guardKey is the completion guard. Keyed by content hash, not by
// session, because two sessions for identical content must not both
// finalize.
func guardKey(fileHash string) string {
	return "completing:" + fileHash
}

// newUploadKey derives an opaque session identifier from the owner,
// the claimed content hash and a random nonce.
func newUploadKey(owner, fileHash string) string {
	sum := sha1.Sum([]byte(owner + fileHash + util.RandStr(16)))
	return hex.EncodeToString(sum[:])
}

func (s *Session) encode() map[string]string {
	return map[string]string{
		"owner":       s.Owner,
		"hash":        s.FileHash,
		"size":        strconv.FormatInt(s.FileSize, 10),
		"chunk_size":  strconv.FormatInt(s.ChunkSize, 10),
		"chunk_count": strconv.Itoa(s.ChunkCount),
	}
}

func decodeSession(uploadKey string, fields map[string]string) (*Session, error) {
	size, err := strconv.ParseInt(fields["size"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad size field, %w", err)
	}

	chunkSize, err := strconv.ParseInt(fields["chunk_size"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad chunk_size field, %w", err)
	}

	chunkCount, err := strconv.Atoi(fields["chunk_count"])
	if err != nil {
		return nil, fmt.Errorf("bad chunk_count field, %w", err)
	}

	return &Session{
		UploadKey:  uploadKey,
		Owner:      fields["owner"],
		FileHash:   fields["hash"],
		FileSize:   size,
		ChunkSize:  chunkSize,
		ChunkCount: chunkCount,
	}, nil
}

func (m *Manager) chunkDir(uploadKey string) string {
	return filepath.Join(m.TempDir, "chunks", uploadKey)
}

func (m *Manager) chunkPath(uploadKey string, index int) string {
	return filepath.Join(m.chunkDir(uploadKey), strconv.Itoa(index))
}

// StagedPath is where a merged upload waits for migration to durable
// storage. Keyed by hash so concurrent sessions for the same content
// converge on one file.
func (m *Manager) StagedPath(fileHash string) string {
	return filepath.Join(m.TempDir, "staged", fileHash)
}

// loadSession fetches and decodes a session, mapping a missing key to
// ErrNotFound and an owner mismatch to ErrForbidden.
func (m *Manager) loadSession(ctx context.Context, uploadKey, requester string) (*Session, error) {
	fields, err := m.Store.HashGetAll(ctx, sessionKey(uploadKey))
	if err != nil {
		if errors.Is(err, store.ErrKeyMissing) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s, err := decodeSession(uploadKey, fields)
	if err != nil {
		return nil, err
	}

	if s.Owner != requester {
		return nil, ErrForbidden
	}

	return s, nil
}

// chunkIndices returns the sorted indices present in the session's
// chunk set.
func (m *Manager) chunkIndices(ctx context.Context, uploadKey string) ([]int, error) {
	members, err := m.Store.SetMembers(ctx, chunksKey(uploadKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	indices := make([]int, 0, len(members))
	for _, member := range members {
		i, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		indices = append(indices, i)
	}

	slices.Sort(indices)
	return indices, nil
}

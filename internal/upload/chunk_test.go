package upload_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/FrezCirno/CloudStorageSystem/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptChunkRejectsBadIndex(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 8)
	require.NoError(t, err)

	err = m.AcceptChunk(context.Background(), s.UploadKey, -1, "alice", bytes.NewReader([]byte("aaaa")))
	assert.ErrorIs(t, err, upload.ErrInvalidArgument)

	err = m.AcceptChunk(context.Background(), s.UploadKey, 2, "alice", bytes.NewReader([]byte("aaaa")))
	assert.ErrorIs(t, err, upload.ErrInvalidArgument)
}

func TestAcceptChunkUnknownSession(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	err := m.AcceptChunk(context.Background(), "nonexistent", 0, "alice", bytes.NewReader([]byte("aaaa")))
	assert.ErrorIs(t, err, upload.ErrNotFound)
}

func TestAcceptChunkIdempotent(t *testing.T) {
	m, _, fm, _ := newTestManager(t)

	s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 4)
	require.NoError(t, err)
	require.Equal(t, 1, s.ChunkCount)

	// Same index twice with different bytes: the set must not grow and
	// the second write fully replaces the first
	err = m.AcceptChunk(context.Background(), s.UploadKey, 0, "alice", bytes.NewReader([]byte("aaaa")))
	require.NoError(t, err)

	err = m.AcceptChunk(context.Background(), s.UploadKey, 0, "alice", bytes.NewReader([]byte("zzzz")))
	require.NoError(t, err)

	_, present, err := m.Status(context.Background(), s.UploadKey, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, present)

	err = m.Complete(context.Background(), s.UploadKey, "cafebabe", 4, "notes.txt", "alice")
	require.NoError(t, err)

	content, err := readStored(fm, "cafebabe")
	require.NoError(t, err)
	assert.Equal(t, []byte("zzzz"), content)
}

func TestAcceptChunkAnyOrder(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 16)
	require.NoError(t, err)
	require.Equal(t, 4, s.ChunkCount)

	parts := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc"), []byte("dddd")}
	sendChunks(t, m, s.UploadKey, "alice", parts, []int{2, 0, 3, 1})

	_, present, err := m.Status(context.Background(), s.UploadKey, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, present, "indices are reported sorted regardless of arrival order")
}

package upload_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/FrezCirno/CloudStorageSystem/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteRequiresAllChunks(t *testing.T) {
	for n := 1; n <= 4; n++ {
		t.Run(fmt.Sprintf("chunks=%d", n), func(t *testing.T) {
			m, _, _, _ := newTestManager(t)

			size := int64(4 * n)
			s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", size)
			require.NoError(t, err)
			require.Equal(t, n, s.ChunkCount)

			parts := make([][]byte, n)
			order := make([]int, 0, n)
			for i := range parts {
				parts[i] = bytes.Repeat([]byte{byte('a' + i)}, 4)
				order = append(order, i)
			}

			// Every proper subset of chunks must be rejected
			sendChunks(t, m, s.UploadKey, "alice", parts, order[:n-1])

			err = m.Complete(context.Background(), s.UploadKey, "cafebabe", size, "notes.txt", "alice")
			assert.ErrorIs(t, err, upload.ErrIncomplete)

			// The final chunk flips the precondition
			sendChunks(t, m, s.UploadKey, "alice", parts, order[n-1:])

			err = m.Complete(context.Background(), s.UploadKey, "cafebabe", size, "notes.txt", "alice")
			assert.NoError(t, err)
		})
	}
}

func TestCompleteMergesInIndexOrder(t *testing.T) {
	m, _, fm, fp := newTestManager(t)

	s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 16)
	require.NoError(t, err)

	parts := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc"), []byte("dddd")}

	// Upload in reverse, the merge must still come out ascending
	sendChunks(t, m, s.UploadKey, "alice", parts, []int{3, 2, 1, 0})

	err = m.Complete(context.Background(), s.UploadKey, "cafebabe", 16, "notes.txt", "alice")
	require.NoError(t, err)

	content, err := readStored(fm, "cafebabe")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaabbbbccccdddd"), content)

	require.Equal(t, 1, fp.sentCount())
	assert.Equal(t, "cafebabe", fp.sent[0].hash)
	assert.Equal(t, "files/cafebabe", fp.sent[0].dest)

	assert.Equal(t, 1, fm.linkCount())
}

func TestCompleteClearsSessionState(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 4)
	require.NoError(t, err)

	sendChunks(t, m, s.UploadKey, "alice", [][]byte{[]byte("aaaa")}, []int{0})

	require.NoError(t, m.Complete(context.Background(), s.UploadKey, "cafebabe", 4, "notes.txt", "alice"))

	_, _, err = m.Status(context.Background(), s.UploadKey, "alice")
	assert.ErrorIs(t, err, upload.ErrNotFound)

	_, err = os.Stat(m.StagedPath("cafebabe"))
	require.NoError(t, err, "staged file stays until the migration worker picks it up")

	// A fresh session for the same pair starts from zero
	s2, present, err := m.Initiate(context.Background(), "alice", "cafebabe", 4)
	require.NoError(t, err)
	assert.NotEqual(t, s.UploadKey, s2.UploadKey)
	assert.Empty(t, present)
}

func TestCompleteValidatesRequest(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 4)
	require.NoError(t, err)

	sendChunks(t, m, s.UploadKey, "alice", [][]byte{[]byte("aaaa")}, []int{0})

	err = m.Complete(context.Background(), s.UploadKey, "deadbeef", 4, "notes.txt", "alice")
	assert.ErrorIs(t, err, upload.ErrInvalidArgument, "hash mismatch")

	err = m.Complete(context.Background(), s.UploadKey, "cafebabe", 5, "notes.txt", "alice")
	assert.ErrorIs(t, err, upload.ErrInvalidArgument, "size mismatch")

	err = m.Complete(context.Background(), s.UploadKey, "cafebabe", 4, "", "alice")
	assert.ErrorIs(t, err, upload.ErrInvalidArgument, "missing name")

	err = m.Complete(context.Background(), s.UploadKey, "cafebabe", 4, "notes.txt", "mallory")
	assert.ErrorIs(t, err, upload.ErrForbidden)
}

func TestCompleteDedupShortcut(t *testing.T) {
	m, _, fm, fp := newTestManager(t)

	// Identical content was stored by someone else before this upload
	// finishes
	require.NoError(t, fm.CreateFileMeta(context.Background(), "cafebabe", "theirs.txt", 4, "/elsewhere/cafebabe"))

	s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 4)
	require.NoError(t, err)

	sendChunks(t, m, s.UploadKey, "alice", [][]byte{[]byte("aaaa")}, []int{0})

	err = m.Complete(context.Background(), s.UploadKey, "cafebabe", 4, "mine.txt", "alice")
	require.NoError(t, err)

	assert.Equal(t, 1, fm.fileCount(), "no second StoredFile for identical content")
	assert.Equal(t, 0, fp.sentCount(), "no migration for content that's already stored")
	assert.Equal(t, 1, fm.linkCount(), "the uploader still gets a link")

	_, err = os.Stat(m.StagedPath("cafebabe"))
	assert.True(t, os.IsNotExist(err), "redundant merged bytes are discarded")
}

func TestDedupShortcutPreservesQueuedMigration(t *testing.T) {
	m, _, fm, fp := newTestManager(t)

	// Alice finalizes first; her migration is still sitting in the queue
	s1, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 4)
	require.NoError(t, err)
	sendChunks(t, m, s1.UploadKey, "alice", [][]byte{[]byte("aaaa")}, []int{0})
	require.NoError(t, m.Complete(context.Background(), s1.UploadKey, "cafebabe", 4, "notes.txt", "alice"))
	require.Equal(t, 1, fp.sentCount())

	// Bob finalizes identical content before the worker runs
	s2, _, err := m.Initiate(context.Background(), "bob", "cafebabe", 4)
	require.NoError(t, err)
	sendChunks(t, m, s2.UploadKey, "bob", [][]byte{[]byte("aaaa")}, []int{0})
	require.NoError(t, m.Complete(context.Background(), s2.UploadKey, "cafebabe", 4, "notes.txt", "bob"))

	_, err = os.Stat(fp.sent[0].source)
	require.NoError(t, err, "staged file awaiting migration must survive the dedup shortcut")

	content, err := readStored(fm, "cafebabe")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaa"), content)

	assert.Equal(t, 1, fp.sentCount(), "no second migration for the same content")
	assert.Equal(t, 1, fm.fileCount())
	assert.Equal(t, 2, fm.linkCount())
}

func TestCompleteRelinkIsNoOp(t *testing.T) {
	m, _, fm, fp := newTestManager(t)

	// Alice already linked this content through the fast path
	require.NoError(t, fm.CreateFileMeta(context.Background(), "cafebabe", "notes.txt", 4, "/elsewhere/cafebabe"))
	require.NoError(t, fm.CreateUserFileLink(context.Background(), "alice", "cafebabe", "notes.txt", 4))

	s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 4)
	require.NoError(t, err)
	sendChunks(t, m, s.UploadKey, "alice", [][]byte{[]byte("aaaa")}, []int{0})

	err = m.Complete(context.Background(), s.UploadKey, "cafebabe", 4, "notes.txt", "alice")
	require.NoError(t, err, "re-uploading content the user already owns must succeed")

	assert.Equal(t, 1, fm.linkCount(), "no duplicate link for the same (user, hash)")
	assert.Equal(t, 0, fp.sentCount())
}

func TestCompleteConflictWhileGuardHeld(t *testing.T) {
	m, fs, _, _ := newTestManager(t)

	s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 4)
	require.NoError(t, err)

	sendChunks(t, m, s.UploadKey, "alice", [][]byte{[]byte("aaaa")}, []int{0})

	// Another finalizer holds the guard for this content
	ok, err := fs.SetIfAbsent(context.Background(), "completing:cafebabe", "other", m.GuardTTL)
	require.NoError(t, err)
	require.True(t, ok)

	err = m.Complete(context.Background(), s.UploadKey, "cafebabe", 4, "notes.txt", "alice")
	assert.ErrorIs(t, err, upload.ErrConflict)
}

func TestCompleteReleasesGuardOnFailure(t *testing.T) {
	m, fs, fm, fp := newTestManager(t)

	s, _, err := m.Initiate(context.Background(), "alice", "cafebabe", 4)
	require.NoError(t, err)

	sendChunks(t, m, s.UploadKey, "alice", [][]byte{[]byte("aaaa")}, []int{0})

	fm.failLink = true

	err = m.Complete(context.Background(), s.UploadKey, "cafebabe", 4, "notes.txt", "alice")
	require.ErrorIs(t, err, upload.ErrUnavailable)

	held, err := fs.Exists(context.Background(), "completing:cafebabe")
	require.NoError(t, err)
	assert.False(t, held, "guard must be released on the failure path")

	// With the store healthy again the retry goes through. The content
	// itself already landed, so the retry takes the dedup shortcut
	fm.failLink = false

	err = m.Complete(context.Background(), s.UploadKey, "cafebabe", 4, "notes.txt", "alice")
	require.NoError(t, err)

	assert.Equal(t, 1, fm.fileCount())
	assert.Equal(t, 1, fp.sentCount())
	assert.Equal(t, 1, fm.linkCount())
}

func TestConcurrentCompletionsSingleFinalizer(t *testing.T) {
	m, _, fm, fp := newTestManager(t)

	const uploaders = 8
	parts := [][]byte{[]byte("aaaa"), []byte("bbbb")}

	keys := make([]string, uploaders)
	owners := make([]string, uploaders)

	for i := range uploaders {
		owners[i] = fmt.Sprintf("user-%d", i)

		s, _, err := m.Initiate(context.Background(), owners[i], "cafebabe", 8)
		require.NoError(t, err)
		keys[i] = s.UploadKey

		sendChunks(t, m, keys[i], owners[i], parts, []int{0, 1})
	}

	errs := make([]error, uploaders)
	var wg sync.WaitGroup

	for i := range uploaders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.Complete(context.Background(), keys[i], "cafebabe", 8, "notes.txt", owners[i])
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, upload.ErrConflict, "losers may only see Conflict")
	}

	require.GreaterOrEqual(t, succeeded, 1, "someone must win")
	assert.Equal(t, 1, fm.fileCount(), "identical bytes stored exactly once")
	assert.Equal(t, 1, fp.sentCount(), "exactly one migration message")
	assert.Equal(t, succeeded, fm.linkCount(), "every successful completion links its owner")
}

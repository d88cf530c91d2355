package upload_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/FrezCirno/CloudStorageSystem/internal/store"
)

// fakeStore is an in-memory SessionStore with real TTL semantics
// driven by an injectable clock. All operations are atomic under one
// mutex, mirroring Redis's single-threaded command execution.
type fakeStore struct {
	mu  sync.Mutex
	now func() time.Time

	strs   map[string]string
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	exp    map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		strs:   map[string]string{},
		hashes: map[string]map[string]string{},
		sets:   map[string]map[string]struct{}{},
		exp:    map[string]time.Time{},
	}
}

func (f *fakeStore) clock() time.Time {
	if f.now != nil {
		return f.now()
	}

	return time.Now()
}

// purgeLocked drops the key if its TTL has passed. Callers hold the
// mutex.
func (f *fakeStore) purgeLocked(key string) {
	deadline, ok := f.exp[key]
	if !ok || f.clock().Before(deadline) {
		return
	}

	delete(f.strs, key)
	delete(f.hashes, key)
	delete(f.sets, key)
	delete(f.exp, key)
}

func (f *fakeStore) GetString(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeLocked(key)

	val, ok := f.strs[key]
	if !ok {
		return "", store.ErrKeyMissing
	}

	return val, nil
}

func (f *fakeStore) SetString(_ context.Context, key, val string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.strs[key] = val
	f.exp[key] = f.clock().Add(ttl)
	return nil
}

func (f *fakeStore) SetIfAbsent(_ context.Context, key, val string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeLocked(key)

	if _, ok := f.strs[key]; ok {
		return false, nil
	}

	f.strs[key] = val
	f.exp[key] = f.clock().Add(ttl)
	return true, nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeLocked(key)

	if _, ok := f.strs[key]; ok {
		return true, nil
	}
	if _, ok := f.hashes[key]; ok {
		return true, nil
	}
	_, ok := f.sets[key]
	return ok, nil
}

func (f *fakeStore) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, key := range keys {
		delete(f.strs, key)
		delete(f.hashes, key)
		delete(f.sets, key)
		delete(f.exp, key)
	}
	return nil
}

func (f *fakeStore) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeLocked(key)

	fields, ok := f.hashes[key]
	if !ok || len(fields) == 0 {
		return nil, store.ErrKeyMissing
	}

	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) HashSetAll(_ context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeLocked(key)

	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}

	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *fakeStore) AddToSet(_ context.Context, key, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeLocked(key)

	s, ok := f.sets[key]
	if !ok {
		s = map[string]struct{}{}
		f.sets[key] = s
	}

	s[member] = struct{}{}
	return nil
}

func (f *fakeStore) SetMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeLocked(key)

	members := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		members = append(members, m)
	}
	return members, nil
}

func (f *fakeStore) SetCard(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeLocked(key)

	return int64(len(f.sets[key])), nil
}

func (f *fakeStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.exp[key] = f.clock().Add(ttl)
	return nil
}

type fileMeta struct {
	hash     string
	name     string
	size     int64
	location string
}

type userLink struct {
	userID string
	hash   string
	name   string
	size   int64
}

// fakeMeta is an in-memory metadata store with injectable failures.
type fakeMeta struct {
	mu    sync.Mutex
	files map[string]fileMeta
	links []userLink

	failLink bool
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{files: map[string]fileMeta{}}
}

func (f *fakeMeta) FileHashExists(_ context.Context, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.files[hash]
	return ok, nil
}

func (f *fakeMeta) CreateFileMeta(_ context.Context, hash, name string, size int64, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[hash] = fileMeta{hash: hash, name: name, size: size, location: location}
	return nil
}

func (f *fakeMeta) CreateUserFileLink(_ context.Context, userID, hash, name string, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failLink {
		return errors.New("metadata store down")
	}

	for _, l := range f.links {
		if l.userID == userID && l.hash == hash {
			return nil
		}
	}

	f.links = append(f.links, userLink{userID: userID, hash: hash, name: name, size: size})
	return nil
}

func (f *fakeMeta) fileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// readStored reads the staged content registered for hash.
func readStored(f *fakeMeta, hash string) ([]byte, error) {
	f.mu.Lock()
	meta, ok := f.files[hash]
	f.mu.Unlock()

	if !ok {
		return nil, errors.New("no file meta for hash")
	}

	return os.ReadFile(meta.location)
}

func (f *fakeMeta) linkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links)
}

type published struct {
	hash   string
	source string
	dest   string
}

// fakePublisher records migration messages instead of enqueueing them.
type fakePublisher struct {
	mu   sync.Mutex
	sent []published
}

func (f *fakePublisher) PublishMigration(_ context.Context, hash, source, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, published{hash: hash, source: source, dest: dest})
	return nil
}

func (f *fakePublisher) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

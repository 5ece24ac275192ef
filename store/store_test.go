package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendFactory func(t *testing.T) Store

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"file": func(t *testing.T) Store {
			s, err := NewFile(afero.NewMemMapFs(), "/data/logins.json", "/data/log")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedis(rdb, "test:")
		},
		"sqlite": func(t *testing.T) Store {
			db, err := OpenSQL(DialectSQLite, filepath.Join(t.TempDir(), "kv.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			require.NoError(t, Migrate(context.Background(), db, DialectSQLite))
			s, err := NewSQL(db, DialectSQLite, "logins")
			require.NoError(t, err)
			return s
		},
		"s3": func(t *testing.T) Store {
			s, err := NewS3(newFakeS3(), "auth", "logins/")
			require.NoError(t, err)
			return s
		},
		"cached": func(t *testing.T) Store {
			cache, err := NewCache(context.Background(), time.Minute, 8)
			require.NoError(t, err)
			s := NewCached(NewMemory(), cache)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStoreConformance(t *testing.T) {
	for name, factory := range backends() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			_, err := s.Get(ctx, "alice")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "alice", []byte(`{"level":0}`)))
			got, err := s.Get(ctx, "alice")
			require.NoError(t, err)
			require.JSONEq(t, `{"level":0}`, string(got))

			require.NoError(t, s.Put(ctx, "alice", []byte(`{"level":1}`)))
			got, err = s.Get(ctx, "alice")
			require.NoError(t, err)
			require.JSONEq(t, `{"level":1}`, string(got))

			require.NoError(t, s.Put(ctx, "bob", []byte(`{"level":2}`)))

			require.NoError(t, s.Delete(ctx, "alice"))
			_, err = s.Get(ctx, "alice")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Delete(ctx, "alice"), "deleting an absent key must succeed")

			got, err = s.Get(ctx, "bob")
			require.NoError(t, err)
			require.JSONEq(t, `{"level":2}`, string(got))
		})
	}
}

func TestStoreConcurrentDistinctKeys(t *testing.T) {
	for name, factory := range backends() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					key := fmt.Sprintf("user-%d", i)
					assert.NoError(t, s.Put(ctx, key, []byte(fmt.Sprintf(`{"n":%d}`, i))))
				}(i)
			}
			wg.Wait()

			for i := 0; i < 16; i++ {
				got, err := s.Get(ctx, fmt.Sprintf("user-%d", i))
				require.NoError(t, err)
				require.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(got))
			}
		})
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "k", []byte(`"v"`)))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	got[1] = 'x'

	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, `"v"`, string(again))
	require.Equal(t, 1, m.Len())
}

func TestFileStoreWritesIndentedDocumentAndLog(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s, err := NewFile(fs, "/data/logins.json", "/data/log")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "alice", []byte(`{"secret":"s3cr3t"}`)))
	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete(ctx, "alice"))
	require.NoError(t, s.Close())

	doc, err := afero.ReadFile(fs, "/data/logins.json")
	require.NoError(t, err)
	require.Equal(t, "{}", string(doc))

	logData, err := afero.ReadFile(fs, "/data/log")
	require.NoError(t, err)
	require.Contains(t, string(logData), `"op":"put"`)
	require.Contains(t, string(logData), `"op":"get"`)
	require.Contains(t, string(logData), `"op":"delete"`)
	require.NotContains(t, string(logData), "s3cr3t", "values must not be written to the operation log")
}

func TestFileStoreRejectsNonJSON(t *testing.T) {
	s, err := NewFile(afero.NewMemMapFs(), "/data/logins.json", "")
	require.NoError(t, err)
	require.Error(t, s.Put(context.Background(), "alice", []byte("not json")))
}

func TestFileStoreReopenSeesData(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	first, err := NewFile(fs, "/data/logins.json", "")
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "alice", []byte(`{"level":2}`)))

	second, err := NewFile(fs, "/data/logins.json", "")
	require.NoError(t, err)
	got, err := second.Get(ctx, "alice")
	require.NoError(t, err)
	require.JSONEq(t, `{"level":2}`, string(got))
}

func TestSQLNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQL(DialectSQLite, filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(ctx, db, DialectSQLite))

	logins, err := NewSQL(db, DialectSQLite, "logins")
	require.NoError(t, err)
	bookings, err := NewSQL(db, DialectSQLite, "bookings")
	require.NoError(t, err)

	require.NoError(t, logins.Put(ctx, "alice", []byte(`{"a":1}`)))
	_, err = bookings.Get(ctx, "alice")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDialectRebind(t *testing.T) {
	q := `SELECT value FROM kv_entries WHERE namespace = ? AND entry_key = ?`
	require.Equal(t, q, DialectSQLite.rebind(q))
	require.Equal(t,
		`SELECT value FROM kv_entries WHERE namespace = $1 AND entry_key = $2`,
		DialectPostgres.rebind(q))

	_, err := OpenSQL(Dialect("oracle"), "")
	require.Error(t, err)
}

func TestCachedServesFromCacheAndInvalidates(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()
	cache, err := NewCache(ctx, time.Minute, 8)
	require.NoError(t, err)
	c := NewCached(backing, cache)
	defer c.Close()

	require.NoError(t, c.Put(ctx, "alice", []byte(`{"v":1}`)))

	// A write that bypasses the cache is not observed until invalidation.
	require.NoError(t, backing.Put(ctx, "alice", []byte(`{"v":2}`)))
	got, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(got))

	require.NoError(t, c.Delete(ctx, "alice"))
	_, err = c.Get(ctx, "alice")
	require.ErrorIs(t, err, ErrNotFound)
}

type failingStore struct{ Store }

func (failingStore) Put(context.Context, string, []byte) error { return errors.New("boom") }

func TestCachedPutFailureInvalidates(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()
	require.NoError(t, backing.Put(ctx, "alice", []byte(`{"v":1}`)))

	cache, err := NewCache(ctx, time.Minute, 8)
	require.NoError(t, err)
	c := NewCached(failingStore{backing}, cache)
	defer c.Close()

	_, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	require.Error(t, c.Put(ctx, "alice", []byte(`{"v":2}`)))

	got, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(got))
}

// pausedStore blocks Get for one key until release is closed.
type pausedStore struct {
	Store
	key     string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *pausedStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := p.Store.Get(ctx, key)
	if key == p.key {
		p.once.Do(func() {
			close(p.entered)
			<-p.release
		})
	}
	return v, err
}

func TestCachedDeleteDuringFillDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()
	require.NoError(t, backing.Put(ctx, "alice", []byte(`{"v":1}`)))

	paused := &pausedStore{
		Store:   backing,
		key:     "alice",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache, err := NewCache(ctx, time.Minute, 8)
	require.NoError(t, err)
	c := NewCached(paused, cache)
	defer c.Close()

	readDone := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "alice")
		readDone <- err
	}()
	<-paused.entered

	deleteDone := make(chan error, 1)
	go func() { deleteDone <- c.Delete(ctx, "alice") }()

	select {
	case <-deleteDone:
		t.Fatal("delete finished while a fill of the same key was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(paused.release)
	require.NoError(t, <-readDone)
	require.NoError(t, <-deleteDone)

	_, err = c.Get(ctx, "alice")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = backing.Get(ctx, "alice")
	require.ErrorIs(t, err, ErrNotFound)
}

type failingDeleteStore struct{ Store }

func (failingDeleteStore) Delete(context.Context, string) error { return errors.New("boom") }

func TestCachedDeleteFailureLeavesBackingAuthoritative(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()
	require.NoError(t, backing.Put(ctx, "alice", []byte(`{"v":1}`)))

	cache, err := NewCache(ctx, time.Minute, 8)
	require.NoError(t, err)
	c := NewCached(failingDeleteStore{backing}, cache)
	defer c.Close()

	_, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, backing.Put(ctx, "alice", []byte(`{"v":2}`)))

	require.Error(t, c.Delete(ctx, "alice"))

	got, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(got))
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(v))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3ObjectLayout(t *testing.T) {
	api := newFakeS3()
	s, err := NewS3(api, "auth", "logins/")
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "alice", []byte(`{}`)))

	_, ok := api.objects["auth/logins/alice.json"]
	require.True(t, ok)

	_, err = NewS3(api, "", "")
	require.Error(t, err)
}

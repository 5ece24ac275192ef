//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/MrEthical07/authengine"
	"github.com/MrEthical07/authengine/store"
)

// backend names one store implementation the suites run against.
type backend struct {
	name string
	open func(t *testing.T) store.Store
}

// backends returns every store the engine ships with that can run without
// external services. A real Redis is added when REDIS_ADDR is set and a
// Postgres when POSTGRES_DSN is set.
func backends(t *testing.T) []backend {
	t.Helper()
	list := []backend{
		{
			name: "memory",
			open: func(t *testing.T) store.Store { return store.NewMemory() },
		},
		{
			name: "file",
			open: func(t *testing.T) store.Store {
				s, err := store.NewFile(afero.NewMemMapFs(), "/data/database.json", "/data/log")
				if err != nil {
					t.Fatalf("file store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
		{
			name: "miniredis",
			open: func(t *testing.T) store.Store {
				client, _ := newMiniredis(t)
				return store.NewRedis(client, "it:")
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) store.Store {
				return openSQL(t, store.DialectSQLite, filepath.Join(t.TempDir(), "it.db"))
			},
		},
		{
			name: "cached-memory",
			open: func(t *testing.T) store.Store {
				cache, err := store.NewCache(context.Background(), time.Minute, 8)
				if err != nil {
					t.Fatalf("cache: %v", err)
				}
				c := store.NewCached(store.NewMemory(), cache)
				t.Cleanup(func() { _ = c.Close() })
				return c
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		list = append(list, backend{
			name: "redis:" + addr,
			open: func(t *testing.T) store.Store {
				client := redis.NewClient(&redis.Options{Addr: addr})
				t.Cleanup(func() { _ = client.Close() })
				prefix := "it:" + t.Name() + ":"
				t.Cleanup(func() { flushPrefix(client, prefix) })
				return store.NewRedis(client, prefix)
			},
		})
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		list = append(list, backend{
			name: "postgres",
			open: func(t *testing.T) store.Store {
				return openSQL(t, store.DialectPostgres, dsn)
			},
		})
	}
	return list
}

func newMiniredis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func openSQL(t *testing.T, dialect store.Dialect, dsn string) store.Store {
	t.Helper()
	db, err := store.OpenSQL(dialect, dsn)
	if err != nil {
		t.Fatalf("open %s: %v", dialect, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(context.Background(), db, dialect); err != nil {
		t.Fatalf("migrate %s: %v", dialect, err)
	}
	// A unique namespace keeps shared databases isolated between tests.
	s, err := store.NewSQL(db, dialect, "it_"+uuid.NewString())
	if err != nil {
		t.Fatalf("sql store: %v", err)
	}
	return s
}

func flushPrefix(client *redis.Client, prefix string) {
	ctx := context.Background()
	iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		_ = client.Del(ctx, iter.Val()).Err()
	}
}

// cheapConfig is DefaultConfig with argon2 costs fit for tests.
func cheapConfig() authengine.Config {
	cfg := authengine.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newEngine(t *testing.T, s store.Store, configure ...func(*authengine.Builder)) *authengine.Engine {
	t.Helper()
	b := authengine.New().WithConfig(cheapConfig()).WithStore(s)
	for _, fn := range configure {
		fn(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func seed(t *testing.T, engine *authengine.Engine, username string, level authengine.PrivilegeLevel) string {
	t.Helper()
	ctx := context.Background()
	if err := engine.Register(ctx, "", "", username, "Password1", true); err != nil {
		t.Fatalf("seed %q: %v", username, err)
	}
	if err := engine.ForceSetPrivilegeLevel(ctx, username, level); err != nil {
		t.Fatalf("seed level %q: %v", username, err)
	}
	token, err := engine.Login(ctx, username, "Password1")
	if err != nil {
		t.Fatalf("login %q: %v", username, err)
	}
	return token
}

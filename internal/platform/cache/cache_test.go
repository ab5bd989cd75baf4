package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type clinic struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "fh:test", time.Minute, zerolog.Nop()), mr
}

func TestGetOrLoad_CachesLoaderResult(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) ([]clinic, error) {
		calls++
		return []clinic{{ID: 1, Name: "Central"}}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetOrLoad(ctx, c, "clinics", load)
		if err != nil {
			t.Fatalf("GetOrLoad() error: %v", err)
		}
		if len(got) != 1 || got[0].Name != "Central" {
			t.Fatalf("unexpected value %+v", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected loader to run once, ran %d times", calls)
	}
	if !mr.Exists("fh:test:clinics") {
		t.Error("expected prefixed key in redis")
	}
	if ttl := mr.TTL("fh:test:clinics"); ttl != time.Minute {
		t.Errorf("expected ttl 1m, got %v", ttl)
	}
}

func TestGetOrLoad_ExpiresAfterTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, _ = GetOrLoad(ctx, c, "n", load)
	mr.FastForward(2 * time.Minute)
	got, _ := GetOrLoad(ctx, c, "n", load)

	if got != 2 || calls != 2 {
		t.Errorf("expected reload after expiry, got value %d after %d calls", got, calls)
	}
}

func TestGetOrLoad_LoaderErrorNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	boom := errors.New("db down")

	_, err := GetOrLoad(context.Background(), c, "clinics", func(context.Context) ([]clinic, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if mr.Exists("fh:test:clinics") {
		t.Error("failed loads must not be cached")
	}
}

func TestGetOrLoad_RedisDownFallsBack(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	got, err := GetOrLoad(context.Background(), c, "clinics", func(context.Context) (string, error) {
		return "fresh", nil
	})
	if err != nil {
		t.Fatalf("expected redis failures to be swallowed, got %v", err)
	}
	if got != "fresh" {
		t.Errorf("expected loader value, got %q", got)
	}
}

func TestGetOrLoad_CorruptEntryReloads(t *testing.T) {
	c, mr := newTestCache(t)
	if err := mr.Set("fh:test:clinics", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := GetOrLoad(context.Background(), c, "clinics", func(context.Context) ([]clinic, error) {
		return []clinic{{ID: 2, Name: "North"}}, nil
	})
	if err != nil {
		t.Fatalf("GetOrLoad() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("unexpected value %+v", got)
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	calls := 0
	for i := 0; i < 2; i++ {
		_, _ = GetOrLoad(context.Background(), c, "k", func(context.Context) (int, error) {
			calls++
			return 1, nil
		})
	}
	if calls != 2 {
		t.Errorf("expected loader on every call, got %d", calls)
	}
	if err := c.Invalidate(context.Background(), "k"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	c, mr := newTestCache(t)
	_, _ = GetOrLoad(context.Background(), c, "directions", func(context.Context) (int, error) { return 1, nil })

	if err := c.Invalidate(context.Background(), "directions"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if mr.Exists("fh:test:directions") {
		t.Error("expected key to be removed")
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(context.Background(), "")
	if err != nil || client != nil {
		t.Fatalf("expected disabled cache for empty url, got %v, %v", client, err)
	}

	mr := miniredis.RunT(t)
	client, err = NewClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	_ = client.Close()

	if _, err := NewClient(context.Background(), "not-a-url"); err == nil {
		t.Error("expected parse error")
	}
}

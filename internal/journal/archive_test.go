package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testArchive(t *testing.T, a Archive) {
	t.Helper()
	ctx := context.Background()

	if err := a.Append(ctx, entry("r2d2", 0, "a", true)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	a.Append(ctx, entry("c3po", 0, "b", false))
	a.Append(ctx, entry("r2d2", time.Second, "c", false))

	hist, err := a.History(ctx, "r2d2")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 2 || hist[0].Msg != "a" || hist[1].Msg != "c" {
		t.Errorf("History(r2d2) = %+v", hist)
	}

	empty, err := a.History(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Errorf("History(nobody) = %v, %v", empty, err)
	}

	clients, err := a.Clients(ctx)
	if err != nil {
		t.Fatalf("Clients() error = %v", err)
	}
	if len(clients) != 2 || clients[0] != "c3po" || clients[1] != "r2d2" {
		t.Errorf("Clients() = %v", clients)
	}

	if err := a.Append(ctx, entry("", 0, "x", true)); err == nil {
		t.Error("Append without client should fail")
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestMemoryArchive(t *testing.T) {
	testArchive(t, NewMemoryArchive())
}

// newRedisArchiveForTest connects to the Redis named by
// ROBOMON_TEST_REDIS_ADDR under a throwaway prefix.
func newRedisArchiveForTest(t *testing.T) *RedisArchive {
	t.Helper()
	addr := os.Getenv("ROBOMON_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROBOMON_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a, err := NewRedisArchive(ctx, RedisConfig{
		Addr:       addr,
		Prefix:     "robomon-test:" + uuid.NewString() + ":",
		MaxRetries: 1,
	})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRedisArchive(t *testing.T) {
	testArchive(t, newRedisArchiveForTest(t))
}

func TestNewRedisArchive_RequiresAddr(t *testing.T) {
	if _, err := NewRedisArchive(context.Background(), RedisConfig{}); err == nil {
		t.Error("expected error for empty addr")
	}
}

func TestNewRedisArchiveFromClient_DefaultPrefix(t *testing.T) {
	a := NewRedisArchiveFromClient(nil, "")
	if a.prefix != DefaultRedisPrefix {
		t.Errorf("prefix = %q, want %q", a.prefix, DefaultRedisPrefix)
	}
}

func TestRedisArchive_KeysDoNotCollide(t *testing.T) {
	a := NewRedisArchiveFromClient(nil, "robomon:")
	if a.logKey("clients") == a.clientsKey() {
		t.Fatalf("logKey(clients) = clientsKey() = %q", a.clientsKey())
	}
	if got, want := a.logKey("r2d2"), "robomon:log:r2d2"; got != want {
		t.Errorf("logKey(r2d2) = %q, want %q", got, want)
	}
	if got, want := a.clientsKey(), "robomon:clients"; got != want {
		t.Errorf("clientsKey() = %q, want %q", got, want)
	}
}

func TestRedisArchive_ClientNamedClients(t *testing.T) {
	a := newRedisArchiveForTest(t)
	ctx := context.Background()

	if err := a.Append(ctx, entry("r2d2", 0, "a", true)); err != nil {
		t.Fatalf("Append(r2d2) error = %v", err)
	}
	if err := a.Append(ctx, entry("clients", time.Second, "b", false)); err != nil {
		t.Fatalf("Append(clients) error = %v", err)
	}

	hist, err := a.History(ctx, "clients")
	if err != nil {
		t.Fatalf("History(clients) error = %v", err)
	}
	if len(hist) != 1 || hist[0].Msg != "b" {
		t.Errorf("History(clients) = %+v", hist)
	}
	ids, err := a.Clients(ctx)
	if err != nil {
		t.Fatalf("Clients() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "clients" || ids[1] != "r2d2" {
		t.Errorf("Clients() = %v", ids)
	}
}

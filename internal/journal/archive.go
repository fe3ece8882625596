package journal

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
)

const (
	defaultRedisPoolSize    = 10
	defaultRedisMaxRetries  = 3
	defaultRedisDialTimeout = 5 * time.Second

	// DefaultRedisPrefix namespaces archive keys.
	DefaultRedisPrefix = "robomon:"
)

// Archive retains per-client log history beyond the lifetime of the store.
type Archive interface {
	Append(ctx context.Context, e monitor.LogEntry) error
	History(ctx context.Context, clientID string) ([]monitor.LogEntry, error)
	Clients(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryArchive is an in-process Archive.
type MemoryArchive struct {
	mu   sync.RWMutex
	logs map[string][]monitor.LogEntry
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{logs: make(map[string][]monitor.LogEntry)}
}

func (a *MemoryArchive) Append(_ context.Context, e monitor.LogEntry) error {
	if e.ClientName == "" {
		return errors.New("log entry without client")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs[e.ClientName] = append(a.logs[e.ClientName], e)
	return nil
}

func (a *MemoryArchive) History(_ context.Context, clientID string) ([]monitor.LogEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]monitor.LogEntry{}, a.logs[clientID]...), nil
}

func (a *MemoryArchive) Clients(_ context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.logs))
	for id := range a.logs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (a *MemoryArchive) Close() error { return nil }

// RedisConfig holds the Redis archive settings.
type RedisConfig struct {
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	Prefix      string        `koanf:"prefix"`
	PoolSize    int           `koanf:"pool"`
	MaxRetries  int           `koanf:"retries"`
	DialTimeout time.Duration `koanf:"timeout"`
}

// RedisArchive keeps each client's log in a Redis list at <prefix>log:<client>
// and the set of known clients at <prefix>clients. Client ids are opaque, so
// the two key kinds never share a namespace.
type RedisArchive struct {
	client redis.UniversalClient
	prefix string

	closeOnce sync.Once
	closeErr  error
}

// NewRedisArchive connects to Redis and verifies the connection.
func NewRedisArchive(ctx context.Context, cfg RedisConfig) (*RedisArchive, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultRedisPoolSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultRedisMaxRetries
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultRedisDialTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	})
	a := NewRedisArchiveFromClient(client, cfg.Prefix)

	if err := a.pingWithRetry(ctx, cfg.MaxRetries); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}
	return a, nil
}

// NewRedisArchiveFromClient wraps an existing client. An empty prefix means
// DefaultRedisPrefix.
func NewRedisArchiveFromClient(client redis.UniversalClient, prefix string) *RedisArchive {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisArchive{client: client, prefix: prefix}
}

func (a *RedisArchive) Append(ctx context.Context, e monitor.LogEntry) error {
	if e.ClientName == "" {
		return errors.New("log entry without client")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding log entry")
	}

	pipe := a.client.TxPipeline()
	pipe.RPush(ctx, a.logKey(e.ClientName), data)
	pipe.SAdd(ctx, a.clientsKey(), e.ClientName)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "archiving entry for %q", e.ClientName)
	}
	return nil
}

func (a *RedisArchive) History(ctx context.Context, clientID string) ([]monitor.LogEntry, error) {
	raw, err := a.client.LRange(ctx, a.logKey(clientID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "reading history of %q", clientID)
	}
	out := make([]monitor.LogEntry, 0, len(raw))
	for i, r := range raw {
		var e monitor.LogEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, errors.Wrapf(err, "decoding entry %d of %q", i, clientID)
		}
		out = append(out, e)
	}
	return out, nil
}

func (a *RedisArchive) Clients(ctx context.Context) ([]string, error) {
	ids, err := a.client.SMembers(ctx, a.clientsKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "listing archived clients")
	}
	sort.Strings(ids)
	return ids, nil
}

func (a *RedisArchive) logKey(clientID string) string { return a.prefix + "log:" + clientID }

func (a *RedisArchive) clientsKey() string { return a.prefix + "clients" }

// Close releases Redis resources. It is idempotent.
func (a *RedisArchive) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.client.Close()
	})
	return a.closeErr
}

func (a *RedisArchive) pingWithRetry(ctx context.Context, maxRetries int) error {
	attempts := maxRetries + 1
	backoff := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = a.client.Ping(ctx).Err(); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

var (
	_ Archive = (*MemoryArchive)(nil)
	_ Archive = (*RedisArchive)(nil)
)

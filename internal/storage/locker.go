package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/motify-engine/internal/ledger"
)

// JoinLocker serializes joins of one wallet into one challenge
type JoinLocker interface {
	Lock(ctx context.Context, challengeID int64, wallet string) (unlock func(), err error)
}

func lockKey(challengeID int64, wallet string) string {
	return fmt.Sprintf("%d:%s", challengeID, ledger.NormalizeAddress(wallet))
}

// LocalLocker is a JoinLocker for a single process
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates a new in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

// Lock blocks until the key is free or ctx is done
func (l *LocalLocker) Lock(ctx context.Context, challengeID int64, wallet string) (func(), error) {
	key := lockKey(challengeID, wallet)

	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.ch
				l.release(key, lk)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, lk)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockerConfig holds Redis locker configuration
type RedisLockerConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
	Retry    time.Duration
}

// RedisLocker is a JoinLocker shared by every process using the same Redis
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// NewRedisLocker connects to Redis and returns a locker
func NewRedisLocker(ctx context.Context, cfg RedisLockerConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisLocker(client, cfg), nil
}

func newRedisLocker(client *redis.Client, cfg RedisLockerConfig) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 50 * time.Millisecond
	}
	return &RedisLocker{
		client: client,
		ttl:    cfg.TTL,
		retry:  cfg.Retry,
		prefix: "motify:join-lock:",
	}
}

// Lock acquires a lease on the key, retrying until ctx is done
func (l *RedisLocker) Lock(ctx context.Context, challengeID int64, wallet string) (func(), error) {
	key := l.prefix + lockKey(challengeID, wallet)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire join lock: %w", err)
		}
		if ok {
			return func() { l.unlock(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		slog.Error("failed to release join lock", "error", err, "key", key)
	}
}

// Ping checks Redis connectivity
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

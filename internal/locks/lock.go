package locks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/stackbill/stackbill/internal/config"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var ErrLockHeld = errors.New("lock_already_held")

// DeployLocker serializes deployments per billing model. With a redis
// address configured the lock spans processes; without one it falls back
// to an in-process mutex table, which is enough for a single replica.
type DeployLocker struct {
	client *redis.Client
	script *redis.Script

	mu    sync.Mutex
	local map[string]string
}

func NewDeployLocker(cfg config.Config) *DeployLocker {
	locker := &DeployLocker{local: map[string]string{}}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr != "" {
		locker.client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: strings.TrimSpace(cfg.RedisPassword),
			DB:       cfg.RedisDB,
		})
		locker.script = redis.NewScript(lockReleaseScript)
	}
	return locker
}

// TryLock acquires the lock for key, returning a release token. It never
// blocks; a held lock yields ErrLockHeld.
func (l *DeployLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", errors.New("lock ttl must be positive")
	}
	token := uuid.NewString()

	if l.client != nil {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrLockHeld
		}
		return token, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.local[key]; held {
		return "", ErrLockHeld
	}
	l.local[key] = token
	return token, nil
}

// Release frees the lock only if token still owns it, so a lock that
// expired and was re-acquired elsewhere is left alone.
func (l *DeployLocker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}

	if l.client != nil {
		return l.script.Run(ctx, l.client, []string{key}, token).Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.local[key] == token {
		delete(l.local, key)
	}
	return nil
}

package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	gerrors "github.com/logflow/rawgate/pkg/errors"
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Redis locks with SET NX so runs on different hosts sharing a storage
// location are serialized too.
type Redis struct {
	Client redis.UniversalClient
	Key    string
	TTL    time.Duration
}

// NewRedis returns a Redis lock on key. The TTL bounds how long a crashed
// run can hold it.
func NewRedis(client redis.UniversalClient, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{Client: client, Key: key, TTL: ttl}
}

// Acquire sets the key to a token unique to this acquisition.
func (l *Redis) Acquire(ctx context.Context, owner string) (Lease, error) {
	token := fmt.Sprintf("%s:%d", owner, time.Now().UnixNano())

	ok, err := l.Client.SetNX(ctx, l.Key, token, l.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		holder, _ := l.Client.Get(ctx, l.Key).Result()
		return nil, gerrors.New(gerrors.CodeRunLocked, "another run holds the lock").
			WithContext("key", l.Key).
			WithContext("holder", holder)
	}
	return &redisLease{client: l.Client, key: l.Key, token: token}, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Release deletes the key only while it still holds this lease's token.
func (l *redisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

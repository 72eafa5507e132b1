package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/braid/pkg/api"
)

type (
	// RedisStore keeps each instance's history in a Redis list, guarded by
	// a server-side compare-and-append script
	RedisStore struct {
		client *redis.Client
		prefix string
	}

	// RedisConfig addresses the Redis server backing a RedisStore
	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}
)

const appendedOK = -1

// KEYS[1] is the history list and KEYS[2] the instance index. ARGV[1] is
// the expected length, ARGV[2] the instance ID, the rest are events
var appendScript = redis.NewScript(`
local len = redis.call('LLEN', KEYS[1])
if len ~= tonumber(ARGV[1]) then
	return len
end
for i = 3, #ARGV do
	redis.call('RPUSH', KEYS[1], ARGV[i])
end
if len == 0 then
	redis.call('SADD', KEYS[2], ARGV[2])
end
return -1
`)

var ErrRedisUnavailable = errors.New("redis unavailable")

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

// Append implements Store
func (s *RedisStore) Append(
	ctx context.Context, id api.InstanceID, expected int64,
	evs ...*api.HistoryEvent,
) error {
	if len(evs) == 0 {
		return ErrEmptyAppend
	}
	stamp(id, expected, evs)

	args := make([]any, 0, len(evs)+2)
	args = append(args, expected, string(id))
	for _, ev := range evs {
		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		args = append(args, raw)
	}

	res, err := appendScript.Run(ctx, s.client,
		[]string{s.historyKey(id), s.indexKey()}, args...,
	).Int64()
	if err != nil {
		return err
	}
	if res != appendedOK {
		return &ConflictError{Expected: expected, Actual: res}
	}
	return nil
}

// Read implements Store
func (s *RedisStore) Read(
	ctx context.Context, id api.InstanceID,
) ([]*api.HistoryEvent, error) {
	raw, err := s.client.LRange(ctx, s.historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	res := make([]*api.HistoryEvent, 0, len(raw))
	for _, r := range raw {
		var ev api.HistoryEvent
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, err
		}
		res = append(res, &ev)
	}
	return res, nil
}

// Instances implements Store
func (s *RedisStore) Instances(ctx context.Context) ([]api.InstanceID, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	res := make([]api.InstanceID, len(members))
	for i, m := range members {
		res[i] = api.InstanceID(m)
	}
	slices.Sort(res)
	return res, nil
}

// Close releases the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) historyKey(id api.InstanceID) string {
	return s.prefix + ":history:{" + string(id) + "}"
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":instances"
}

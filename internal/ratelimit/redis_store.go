package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript implements the sliding window over a ZSET scored by
// request time in microseconds.
// Input: ARGV[1]=now_us, ARGV[2]=window_us, ARGV[3]=limit
// Output: { admitted, count, oldest_us }
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("zremrangebyscore", key, "-inf", now - window)

local count = redis.call("zcard", key)
if count >= limit then
    local oldest = redis.call("zrange", key, 0, 0, "WITHSCORES")
    return { 0, count, oldest[2] }
end

redis.call("zadd", key, now, now .. "-" .. math.random(1000000))
redis.call("pexpire", key, math.ceil(window / 1000) * 2)
return { 1, count, 0 }
`)

// RedisStore shares window state across instances so admission counts hold
// for the whole deployment, per the single-instance caveat in the design.
type RedisStore struct {
	rdb       *redis.Client
	keyPrefix string
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, keyPrefix: "payflow:ratelimit:"}
}

func (s *RedisStore) Take(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (bool, int, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	res, err := slidingWindowScript.Run(ctx, s.rdb,
		[]string{s.keyPrefix + key},
		now.UnixMicro(), window.Microseconds(), limit,
	).Result()
	if err != nil {
		return false, 0, time.Time{}, err
	}

	vals, ok := res.([]any)
	if !ok || len(vals) != 3 {
		return false, 0, time.Time{}, errInvalidScriptReply
	}

	admitted := toInt64(vals[0]) == 1
	count := int(toInt64(vals[1]))
	oldest := time.UnixMicro(toInt64(vals[2]))
	return admitted, count, oldest, nil
}

func (s *RedisStore) Peek(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	fullKey := s.keyPrefix + key
	cutoff := now.Add(-window).UnixMicro()

	if err := s.rdb.ZRemRangeByScore(ctx, fullKey, "-inf", formatScore(cutoff)).Err(); err != nil {
		return 0, time.Time{}, err
	}

	count, err := s.rdb.ZCard(ctx, fullKey).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 0 {
		return 0, time.Time{}, nil
	}

	oldest, err := s.rdb.ZRangeWithScores(ctx, fullKey, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return int(count), time.Time{}, err
	}
	return int(count), time.UnixMicro(int64(oldest[0].Score)), nil
}

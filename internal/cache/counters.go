package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments a window counter only while it is below the limit.
var fixedWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local ttl_ms = tonumber(ARGV[2])

	local count = tonumber(redis.call('GET', key) or '0')
	if count >= limit then
		return {0, count}
	end

	count = redis.call('INCR', key)
	if count == 1 then
		redis.call('PEXPIRE', key, ttl_ms)
	end
	return {1, count}
`)

// hitLogScript keeps hit timestamps in a sorted set scored by unix millis.
var hitLogScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local ttl_ms = tonumber(ARGV[3])
	local limit = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)
	local recent = redis.call('ZCARD', key)
	if recent >= limit then
		redis.call('PEXPIRE', key, ttl_ms)
		return {0, recent}
	end

	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, ttl_ms)
	return {1, recent + 1}
`)

// referrerScript maintains the per-code referrer statistics hash.
var referrerScript = redis.NewScript(`
	local key = KEYS[1]
	local referrer = ARGV[1]
	local ttl = tonumber(ARGV[2])

	local data = redis.call('HMGET', key, 'same_referrer_count', 'empty_referrer_count', 'last_referrer', 'total_clicks')
	local same = tonumber(data[1]) or 0
	local empty = tonumber(data[2]) or 0
	local last = data[3] or ''
	local total = (tonumber(data[4]) or 0) + 1

	if referrer == '' then
		empty = empty + 1
	elseif referrer == last then
		same = same + 1
	else
		same = 1
		last = referrer
	end

	redis.call('HSET', key,
		'same_referrer_count', same,
		'empty_referrer_count', empty,
		'last_referrer', last,
		'total_clicks', total)
	redis.call('EXPIRE', key, ttl)

	return {same, empty, total, last}
`)

// CheckAndIncr runs the fixed-window counter script.
func (c *Cache) CheckAndIncr(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	res, err := fixedWindowScript.Run(ctx, c.client, []string{key}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("fixed window script failed: %w", err)
	}
	return res[1], res[0] == 1, nil
}

// RecordHit runs the trailing-window hit log script.
func (c *Cache) RecordHit(ctx context.Context, key string, now time.Time, window, ttl time.Duration, limit int64) (int64, bool, error) {
	member := ulid.Make().String()

	res, err := hitLogScript.Run(ctx, c.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), ttl.Milliseconds(), limit, member,
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("hit log script failed: %w", err)
	}
	return res[1], res[0] == 1, nil
}

// TrackReferrer runs the referrer statistics script.
func (c *Cache) TrackReferrer(ctx context.Context, key, referrer string, ttl time.Duration) (ReferrerStats, error) {
	res, err := referrerScript.Run(ctx, c.client, []string{key}, referrer, int64(ttl.Seconds())).Slice()
	if err != nil {
		return ReferrerStats{}, fmt.Errorf("referrer script failed: %w", err)
	}
	if len(res) != 4 {
		return ReferrerStats{}, fmt.Errorf("referrer script returned %d values", len(res))
	}

	stats := ReferrerStats{}
	stats.SameReferrerCount, _ = res[0].(int64)
	stats.EmptyReferrerCount, _ = res[1].(int64)
	stats.TotalClicks, _ = res[2].(int64)
	stats.LastReferrer, _ = res[3].(string)
	return stats, nil
}

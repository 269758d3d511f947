package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conorfennell/knolqueue/internal/domain"
)

// RedisRecorder keeps rating counters in Redis hashes:
//
//	<prefix>:<deck>:total             rating -> count
//	<prefix>:<deck>:minute:<yyyymmddhhmm> rating -> count (expires after ttl)
//	<prefix>:<deck>:card:<id>         rating -> count
type RedisRecorder struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisRecorder)

func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

func WithTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

func NewRedisRecorder(rdb *redis.Client, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "knolqueue:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Keys returns the hash keys an event is counted under.
func (r *RedisRecorder) Keys(ev domain.ReviewEvent) (total, minute, card string) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	base := r.prefix
	if ev.Deck != "" {
		base += ":" + ev.Deck
	}
	total = base + ":total"
	minute = fmt.Sprintf("%s:minute:%s", base, at.UTC().Format("200601021504"))
	card = base + ":card:" + strconv.Itoa(ev.CardID)
	return total, minute, card
}

func (r *RedisRecorder) Record(ctx context.Context, ev domain.ReviewEvent) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	field := string(ev.Rating)
	totalKey, minuteKey, cardKey := r.Keys(ev)

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, minuteKey, r.ttl)
	}
	pipe.HIncrBy(ctx, cardKey, field, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record rating for card %d: %w", ev.CardID, err)
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReminders is a reminder outbox. Payloads live in a hash keyed by
// reminder id and fire times in a sorted set, so a delivery worker can pop
// everything due with one range query.
type RedisReminders struct {
	client *redis.Client
	queue  string
	items  string
}

func NewRedisReminders(client *redis.Client, namespace string) *RedisReminders {
	prefix := "reminders"
	if namespace != "" {
		prefix = namespace + ":reminders"
	}
	return &RedisReminders{client: client, queue: prefix + ":due", items: prefix + ":items"}
}

func (r *RedisReminders) Schedule(ctx context.Context, rem Reminder) error {
	payload, err := json.Marshal(rem)
	if err != nil {
		return fmt.Errorf("encode reminder: %w", err)
	}
	id := strconv.Itoa(rem.ID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.items, id, payload)
	pipe.ZAdd(ctx, r.queue, redis.Z{Score: float64(rem.FireAt.Unix()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis schedule %s: %w", id, err)
	}
	return nil
}

func (r *RedisReminders) CancelAll(ctx context.Context) error {
	if err := r.client.Del(ctx, r.queue, r.items).Err(); err != nil {
		return fmt.Errorf("redis cancel reminders: %w", err)
	}
	return nil
}

// Due removes and returns reminders whose fire time is at or before now.
func (r *RedisReminders) Due(ctx context.Context, now time.Time) ([]Reminder, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.queue, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis due reminders: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := r.client.HMGet(ctx, r.items, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load reminders: %w", err)
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, r.queue, members...)
	pipe.HDel(ctx, r.items, ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis ack reminders: %w", err)
	}

	out := make([]Reminder, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rem Reminder
		if err := json.Unmarshal([]byte(s), &rem); err != nil {
			continue
		}
		out = append(out, rem)
	}
	return out, nil
}

// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/docqueue/internal/jobs"
)

// promoteScript moves an ID from the delayed zset to the pending list only
// if it was still delayed, so two promoters cannot push it twice.
//
// KEYS[1] delayed zset, KEYS[2] pending list; ARGV[1] id
var promoteScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
  redis.call('RPUSH', KEYS[2], ARGV[1])
  return 1
end
return 0
`)

// RedisQueue keeps a LIST of pending IDs and a ZSET of delayed IDs scored by
// run time in milliseconds, per job type:
//
//	P q:<type>:pending
//	P q:<type>:delayed
type RedisQueue struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisQueue shares rdb with the store; prefix should match the store's.
func NewRedisQueue(rdb redis.UniversalClient, prefix string) *RedisQueue {
	return &RedisQueue{rdb: rdb, prefix: prefix, now: time.Now}
}

func (q *RedisQueue) pendingKey(t jobs.Type) string {
	return q.prefix + "q:" + string(t) + ":pending"
}

func (q *RedisQueue) delayedKey(t jobs.Type) string {
	return q.prefix + "q:" + string(t) + ":delayed"
}

func (q *RedisQueue) Enqueue(ctx context.Context, t jobs.Type, id string, runAt time.Time) error {
	if runAt.After(q.now()) {
		return q.schedule(ctx, t, id, runAt)
	}
	if err := q.rdb.RPush(ctx, q.pendingKey(t), id).Err(); err != nil {
		return jobs.Unavailable("queue push", err)
	}
	return nil
}

func (q *RedisQueue) schedule(ctx context.Context, t jobs.Type, id string, runAt time.Time) error {
	err := q.rdb.ZAdd(ctx, q.delayedKey(t), redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: id,
	}).Err()
	if err != nil {
		return jobs.Unavailable("queue schedule", err)
	}
	return nil
}

func (q *RedisQueue) ClaimNext(ctx context.Context, t jobs.Type) (string, error) {
	id, err := q.rdb.LPop(ctx, q.pendingKey(t)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", jobs.Unavailable("queue pop", err)
	}
	return id, nil
}

func (q *RedisQueue) PushFront(ctx context.Context, t jobs.Type, id string) error {
	if err := q.rdb.LPush(ctx, q.pendingKey(t), id).Err(); err != nil {
		return jobs.Unavailable("queue push front", err)
	}
	return nil
}

func (q *RedisQueue) Requeue(ctx context.Context, t jobs.Type, id string, delay time.Duration) error {
	return q.schedule(ctx, t, id, q.now().Add(delay))
}

func (q *RedisQueue) DueDelayed(ctx context.Context, t jobs.Type, now time.Time, limit int) ([]string, error) {
	by := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	ids, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(t), by).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, jobs.Unavailable("queue due", err)
	}
	return ids, nil
}

func (q *RedisQueue) Promote(ctx context.Context, t jobs.Type, id string) (bool, error) {
	n, err := promoteScript.Run(ctx, q.rdb, []string{q.delayedKey(t), q.pendingKey(t)}, id).Int64()
	if err != nil {
		return false, jobs.Unavailable("queue promote", err)
	}
	return n == 1, nil
}

func (q *RedisQueue) Contains(ctx context.Context, t jobs.Type, id string) (bool, error) {
	_, err := q.rdb.ZScore(ctx, q.delayedKey(t), id).Result()
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, redis.Nil) {
		return false, jobs.Unavailable("queue contains", err)
	}
	_, err = q.rdb.LPos(ctx, q.pendingKey(t), id, redis.LPosArgs{}).Result()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return false, jobs.Unavailable("queue contains", err)
}

func (q *RedisQueue) Remove(ctx context.Context, t jobs.Type, id string) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.pendingKey(t), 0, id)
		p.ZRem(ctx, q.delayedKey(t), id)
		return nil
	})
	if err != nil {
		return jobs.Unavailable("queue remove", err)
	}
	return nil
}

func (q *RedisQueue) Depth(ctx context.Context, t jobs.Type) (int64, int64, error) {
	var pending, delayed *redis.IntCmd
	_, err := q.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		pending = p.LLen(ctx, q.pendingKey(t))
		delayed = p.ZCard(ctx, q.delayedKey(t))
		return nil
	})
	if err != nil {
		return 0, 0, jobs.Unavailable("queue depth", err)
	}
	return pending.Val(), delayed.Val(), nil
}

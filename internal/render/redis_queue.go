package render

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a reliable list queue shared by API and worker processes.
//
//	Claim: BRPOPLPUSH queue -> processing, claim time stored in a hash
//	Ack:   LREM from processing, HDEL claim time
//
// Ids whose claim is older than the stale threshold are moved back by
// RequeueStale, giving at-least-once delivery.
type RedisQueue struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
	claimsKey     string
}

// NewRedisQueue derives the processing list and claim hash keys from key.
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{
		rdb:           rdb,
		queueKey:      key,
		processingKey: key + ":processing",
		claimsKey:     key + ":claims",
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, id string) error {
	return q.rdb.LPush(ctx, q.queueKey, id).Err()
}

// ClaimBlocking waits in one second slots so a cancelled ctx is noticed
// promptly. A non-positive timeout waits until ctx is done.
func (q *RedisQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	forever := timeout <= 0
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		wait := time.Second
		if !forever {
			remain := time.Until(deadline)
			if remain <= 0 {
				return "", ErrQueueEmpty
			}
			wait = min(wait, remain)
		}
		id, err := q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, wait).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := q.rdb.HSet(ctx, q.claimsKey, id, time.Now().Unix()).Err(); err != nil {
			return "", err
		}
		return id, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey, 1, id)
	pipe.HDel(ctx, q.claimsKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// RequeueStale moves up to limit ids claimed before now-olderThan back onto the
// queue. Ids without a recorded claim time count as stale.
func (q *RedisQueue) RequeueStale(ctx context.Context, olderThan time.Duration, limit int64) (int64, error) {
	ids, err := q.rdb.LRange(ctx, q.processingKey, 0, limit-1).Result()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan).Unix()
	var moved int64
	for _, id := range ids {
		raw, err := q.rdb.HGet(ctx, q.claimsKey, id).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return moved, err
		}
		if err == nil {
			if claimed, perr := strconv.ParseInt(raw, 10, 64); perr == nil && claimed > cutoff {
				continue
			}
		}
		pipe := q.rdb.TxPipeline()
		rem := pipe.LRem(ctx, q.processingKey, 1, id)
		pipe.HDel(ctx, q.claimsKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, err
		}
		if rem.Val() == 0 {
			// acked between LRANGE and LREM
			continue
		}
		if err := q.rdb.LPush(ctx, q.queueKey, id).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Len reports waiting and in-processing counts.
func (q *RedisQueue) Len(ctx context.Context) (waiting, processing int64, err error) {
	if waiting, err = q.rdb.LLen(ctx, q.queueKey).Result(); err != nil {
		return 0, 0, err
	}
	processing, err = q.rdb.LLen(ctx, q.processingKey).Result()
	return waiting, processing, err
}

var _ Queue = (*RedisQueue)(nil)

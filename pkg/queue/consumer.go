package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func (q *RedisJobQueue) consume(ctx context.Context, consumer string, handler Handler) {
	for ctx.Err() == nil {
		msgs, err := q.next(ctx, consumer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Warn("read stream failed", "consumer", consumer, "err", err)
			sleepCtx(ctx, q.cfg.RetryDelay)
			continue
		}
		for _, msg := range msgs {
			q.process(ctx, msg, handler)
		}
	}
}

// next returns stale entries abandoned by other consumers first, then blocks
// for new ones.
func (q *RedisJobQueue) next(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: consumer,
		MinIdle:  q.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    q.cfg.ClaimCount,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(claimed) > 0 {
		return claimed, nil
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    q.cfg.ReadCount,
		Block:    q.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (q *RedisJobQueue) process(ctx context.Context, msg redis.XMessage, handler Handler) {
	jobID, _ := msg.Values["job"].(string)
	if jobID == "" {
		q.log.Warn("dropping malformed entry", "entry", msg.ID)
		q.remove(ctx, msg.ID)
		return
	}
	job, ok, err := q.begin(ctx, jobID)
	if err != nil {
		q.log.Warn("start job failed", "job_id", jobID, "err", err)
		return
	}
	if !ok {
		q.log.Warn("dropping entry for expired job", "job_id", jobID)
		q.remove(ctx, msg.ID)
		return
	}
	log := q.log.With("job_id", job.ID, "kind", job.Kind, "subject_id", job.SubjectID, "attempt", job.Attempts)

	herr := handler(ctx, job)
	switch {
	case herr == nil:
		q.finish(ctx, job.ID, StatusDone, "")
		q.remove(ctx, msg.ID)
	case IsPermanent(herr) || job.Attempts >= q.cfg.MaxRetries:
		log.Warn("job failed", "err", herr)
		q.finish(ctx, job.ID, StatusFailed, herr.Error())
		q.remove(ctx, msg.ID)
	default:
		log.Info("job will be retried", "err", herr)
		q.finish(ctx, job.ID, StatusQueued, herr.Error())
		sleepCtx(ctx, q.cfg.RetryDelay)
		if err := q.requeue(ctx, msg.ID, job.ID); err != nil {
			// The entry stays pending and is reclaimed after ClaimIdle.
			log.Warn("requeue failed", "err", err)
		}
	}
}

// begin counts the attempt and marks the job processing. It reports false
// when the job record has expired.
func (q *RedisJobQueue) begin(ctx context.Context, jobID string) (JobStatus, bool, error) {
	key := q.jobKey(jobID)
	var all *redis.MapStringStringCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldAttempts, 1)
		pipe.HSet(ctx, key, fieldStatus, StatusProcessing, fieldUpdatedAt, time.Now().UnixMilli())
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return JobStatus{}, false, err
	}
	h := all.Val()
	if h[fieldKind] == "" {
		// HINCRBY recreated an expired record; drop it again.
		_ = q.client.Del(ctx, key).Err()
		return JobStatus{}, false, nil
	}
	return parseJob(jobID, h), true, nil
}

func (q *RedisJobQueue) finish(ctx context.Context, jobID, status, errMsg string) {
	key := q.jobKey(jobID)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldStatus, status, fieldError, errMsg, fieldUpdatedAt, time.Now().UnixMilli())
		pipe.Expire(ctx, key, q.cfg.JobTTL)
		return nil
	})
	if err != nil {
		q.log.Warn("update job status failed", "job_id", jobID, "status", status, "err", err)
	}
}

func (q *RedisJobQueue) remove(ctx context.Context, entryID string) {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, q.cfg.Stream, q.cfg.Group, entryID)
		pipe.XDel(ctx, q.cfg.Stream, entryID)
		return nil
	})
	if err != nil {
		q.log.Warn("ack entry failed", "entry", entryID, "err", err)
	}
}

// requeue appends a fresh entry for jobID and retires the delivered one in
// the same transaction.
func (q *RedisJobQueue) requeue(ctx context.Context, entryID, jobID string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, q.addArgs(jobID))
		pipe.XAck(ctx, q.cfg.Stream, q.cfg.Group, entryID)
		pipe.XDel(ctx, q.cfg.Stream, entryID)
		return nil
	})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

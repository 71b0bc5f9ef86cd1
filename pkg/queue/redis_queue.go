package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"casedoc/internal/util"
)

// RedisQueueConfig configures a RedisJobQueue. Zero values take defaults.
type RedisQueueConfig struct {
	Addr     string
	Password string
	Stream   string
	Group    string
	Consumer string
	// JobTTL is how long a job record stays readable after its last update.
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	// ClaimIdle is how long a delivered message may stay unacked before
	// another consumer takes it over.
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
	Logger     *slog.Logger
}

func (c RedisQueueConfig) withDefaults() RedisQueueConfig {
	c.Stream = strings.TrimSpace(c.Stream)
	c.Group = strings.TrimSpace(c.Group)
	if c.Group == "" {
		c.Group = "default"
	}
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = util.NewID()
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 24 * time.Hour
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = 30 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 10000
	}
	if c.ReadCount <= 0 {
		c.ReadCount = 10
	}
	if c.ClaimCount <= 0 {
		c.ClaimCount = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// RedisJobQueue is a work queue on a Redis stream read through a consumer
// group. Stream entries carry only the job id; the job itself lives in a hash
// that clients poll for status.
type RedisJobQueue struct {
	client redis.UniversalClient
	cfg    RedisQueueConfig
	log    *slog.Logger
	wg     sync.WaitGroup
	group  sync.Once
}

// NewRedisJobQueue dials cfg.Addr and builds a queue on it.
func NewRedisJobQueue(cfg RedisQueueConfig) (*RedisJobQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	return NewJobQueue(redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}), cfg)
}

// NewJobQueue builds a queue on an existing client. The queue owns the client
// from then on and closes it in Close.
func NewJobQueue(client redis.UniversalClient, cfg RedisQueueConfig) (*RedisJobQueue, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	cfg = cfg.withDefaults()
	if cfg.Stream == "" {
		return nil, errors.New("queue stream required")
	}
	return &RedisJobQueue{
		client: client,
		cfg:    cfg,
		log:    cfg.Logger.With("component", "queue", "stream", cfg.Stream),
	}, nil
}

// Enqueue stores a queued job for subjectID and appends it to the stream.
func (q *RedisJobQueue) Enqueue(ctx context.Context, kind, subjectID string) (JobStatus, error) {
	kind, subjectID = strings.TrimSpace(kind), strings.TrimSpace(subjectID)
	if kind == "" {
		return JobStatus{}, errors.New("job kind required")
	}
	if subjectID == "" {
		return JobStatus{}, errors.New("subject id required")
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	job := JobStatus{
		ID:        util.NewID(),
		Kind:      kind,
		SubjectID: subjectID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	key := q.jobKey(job.ID)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, job.fields())
		pipe.Expire(ctx, key, q.cfg.JobTTL)
		pipe.XAdd(ctx, q.addArgs(job.ID))
		return nil
	})
	if err != nil {
		return JobStatus{}, fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	return job, nil
}

// GetJob returns a job while its record is retained.
func (q *RedisJobQueue) GetJob(ctx context.Context, jobID string) (JobStatus, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobStatus{}, false, nil
	}
	h, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return JobStatus{}, false, err
	}
	if len(h) == 0 {
		return JobStatus{}, false, nil
	}
	return parseJob(jobID, h), true, nil
}

// Start launches concurrency consumers that run until ctx is cancelled.
func (q *RedisJobQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := range concurrency {
		name := fmt.Sprintf("%s-%d", q.cfg.Consumer, i)
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.consume(ctx, name, handler)
		}()
	}
}

// Wait blocks until all consumers have returned.
func (q *RedisJobQueue) Wait() {
	q.wg.Wait()
}

// Close closes the Redis client.
func (q *RedisJobQueue) Close() error {
	return q.client.Close()
}

// Ping checks Redis connectivity.
func (q *RedisJobQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisJobQueue) ensureGroup(ctx context.Context) {
	q.group.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			q.log.Warn("create consumer group failed", "group", q.cfg.Group, "err", err)
		}
	})
}

func (q *RedisJobQueue) addArgs(jobID string) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: q.cfg.Stream,
		MaxLen: q.cfg.MaxLen,
		Approx: true,
		Values: []any{"job", jobID},
	}
}

func (q *RedisJobQueue) jobKey(jobID string) string {
	return q.cfg.Stream + ":job:" + jobID
}

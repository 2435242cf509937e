package jobxredis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/jobx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "mailroom:jobx"
	// Finished jobs stay readable for status lookups this long.
	defaultRetention = 24 * time.Hour
)

// RedisQueue implements jobx.Queue with a list per queue for ready jobs, a
// sorted set per queue for delayed ones and a string key per job.
type RedisQueue struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ jobx.Queue = (*RedisQueue)(nil)

type Option func(*RedisQueue)

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.prefix = prefix
		}
	}
}

// WithRetention sets how long completed and failed jobs are kept.
func WithRetention(d time.Duration) Option {
	return func(q *RedisQueue) { q.retention = d }
}

func NewRedisQueue(rdb redis.UniversalClient, opts ...Option) *RedisQueue {
	q := &RedisQueue{rdb: rdb, prefix: defaultPrefix, retention: defaultRetention}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *RedisQueue) queueKey(name string) string     { return q.prefix + ":queue:" + name }
func (q *RedisQueue) scheduledKey(name string) string { return q.prefix + ":scheduled:" + name }
func (q *RedisQueue) jobKey(id string) string         { return q.prefix + ":job:" + id }

func (q *RedisQueue) Enqueue(ctx context.Context, job jobx.Job) (string, error) {
	return q.put(ctx, job, 0)
}

func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job jobx.Job, delay time.Duration) (string, error) {
	return q.put(ctx, job, delay)
}

// put stores the job record and pushes it to the ready list, or to the
// scheduled set when delay is positive, in one pipeline.
func (q *RedisQueue) put(ctx context.Context, job jobx.Job, delay time.Duration) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	data, err := json.Marshal(jobx.NewJobInfo(id, job, now))
	if err != nil {
		return "", redisErrors.NewWithCause(ErrMarshal, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, q.jobKey(id), data, 0)
	if delay > 0 {
		score := float64(now.Add(delay).Unix())
		pipe.ZAdd(ctx, q.scheduledKey(job.Queue), redis.Z{Score: score, Member: id})
	} else {
		pipe.LPush(ctx, q.queueKey(job.Queue), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).
			WithDetail("queue", job.Queue).
			WithDetail("delay", delay.String())
	}
	return id, nil
}

func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (*jobx.JobInfo, error) {
	data, err := q.rdb.Get(ctx, q.jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, jobx.NotFound(jobID)
		}
		return nil, redisErrors.NewWithCause(ErrGetJob, err).WithDetail("job_id", jobID)
	}

	var info jobx.JobInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("job_id", jobID)
	}
	return &info, nil
}

// update rewrites the job record after fn mutated it. Final jobs get the
// retention TTL.
func (q *RedisQueue) update(ctx context.Context, jobID string, fn func(*jobx.JobInfo)) (*jobx.JobInfo, error) {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	fn(info)
	info.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(info)
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job_id", jobID)
	}

	var ttl time.Duration
	if info.Status.IsFinal() {
		ttl = q.retention
	}
	if err := q.rdb.Set(ctx, q.jobKey(jobID), data, ttl).Err(); err != nil {
		return nil, redisErrors.NewWithCause(ErrUpdate, err).WithDetail("job_id", jobID)
	}
	return info, nil
}

// Dequeue blocks up to timeout for a job on any of queues and marks it
// active.
func (q *RedisQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobx.JobInfo, error) {
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = q.queueKey(name)
	}

	result, err := q.rdb.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, redisErrors.NewWithCause(ErrDequeue, err)
	}

	// result is [key, id]
	return q.update(ctx, result[1], func(info *jobx.JobInfo) {
		info.Status = jobx.JobStatusActive
		info.Attempts++
	})
}

func (q *RedisQueue) Complete(ctx context.Context, jobID string, result []byte) error {
	_, err := q.update(ctx, jobID, func(info *jobx.JobInfo) {
		info.Status = jobx.JobStatusCompleted
		info.Result = result
		info.Error = ""
	})
	return err
}

// Fail records errMsg and reports whether the job has attempts left.
func (q *RedisQueue) Fail(ctx context.Context, jobID string, errMsg string) (bool, error) {
	var retry bool
	_, err := q.update(ctx, jobID, func(info *jobx.JobInfo) {
		retry = info.Attempts < info.MaxRetries
		if retry {
			info.Status = jobx.JobStatusRetrying
		} else {
			info.Status = jobx.JobStatusFailed
		}
		info.Error = errMsg
	})
	if err != nil {
		return false, err
	}
	return retry, nil
}

func (q *RedisQueue) Retry(ctx context.Context, jobID string, delay time.Duration) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	score := float64(time.Now().UTC().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, q.scheduledKey(info.Queue), redis.Z{Score: score, Member: jobID}).Err(); err != nil {
		return redisErrors.NewWithCause(ErrUpdate, err).WithDetail("job_id", jobID)
	}
	return nil
}

// promoteScript moves due ids from the scheduled set to the ready list
// atomically.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
    redis.call('LPUSH', KEYS[2], id)
end
if #ids > 0 then
    redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
return #ids
`)

func (q *RedisQueue) PromoteScheduled(ctx context.Context, queues []string) error {
	now := strconv.FormatInt(time.Now().UTC().Unix(), 10)

	for _, name := range queues {
		err := promoteScript.Run(ctx, q.rdb, []string{q.scheduledKey(name), q.queueKey(name)}, now).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return redisErrors.NewWithCause(ErrPromote, err).WithDetail("queue", name)
		}
	}
	return nil
}

// Package jobxmem is an in-process jobx.Queue used when Redis is disabled
// and in tests. Jobs do not survive a restart.
package jobxmem

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/jobx"
	"github.com/google/uuid"
)

type scheduled struct {
	id    string
	queue string
	at    time.Time
}

type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]*jobx.JobInfo
	ready   map[string][]string
	delayed []scheduled
	notify  chan struct{}
	now     func() time.Time
}

var _ jobx.Queue = (*MemoryQueue)(nil)

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:   make(map[string]*jobx.JobInfo),
		ready:  make(map[string][]string),
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job jobx.Job) (string, error) {
	return q.EnqueueDelayed(ctx, job, 0)
}

func (q *MemoryQueue) EnqueueDelayed(_ context.Context, job jobx.Job, delay time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := uuid.NewString()
	now := q.now().UTC()
	info := jobx.NewJobInfo(id, job, now)
	q.jobs[id] = &info

	if delay > 0 {
		q.delayed = append(q.delayed, scheduled{id: id, queue: job.Queue, at: now.Add(delay)})
		return id, nil
	}
	q.ready[job.Queue] = append(q.ready[job.Queue], id)
	q.wake()
	return id, nil
}

func (q *MemoryQueue) GetJob(_ context.Context, jobID string) (*jobx.JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return nil, jobx.NotFound(jobID)
	}
	c := *info
	return &c, nil
}

func (q *MemoryQueue) pop(queues []string) *jobx.JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, name := range queues {
		ids := q.ready[name]
		if len(ids) == 0 {
			continue
		}
		q.ready[name] = ids[1:]

		info := q.jobs[ids[0]]
		info.Status = jobx.JobStatusActive
		info.Attempts++
		info.UpdatedAt = q.now().UTC()
		c := *info
		return &c
	}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobx.JobInfo, error) {
	if job := q.pop(queues); job != nil {
		return job, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
			return nil, nil
		case <-q.notify:
			if job := q.pop(queues); job != nil {
				return job, nil
			}
		}
	}
}

func (q *MemoryQueue) update(jobID string, fn func(*jobx.JobInfo)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return jobx.NotFound(jobID)
	}
	fn(info)
	info.UpdatedAt = q.now().UTC()
	return nil
}

func (q *MemoryQueue) Complete(_ context.Context, jobID string, result []byte) error {
	return q.update(jobID, func(info *jobx.JobInfo) {
		info.Status = jobx.JobStatusCompleted
		info.Result = slices.Clone(result)
		info.Error = ""
	})
}

func (q *MemoryQueue) Fail(_ context.Context, jobID string, errMsg string) (bool, error) {
	var retry bool
	err := q.update(jobID, func(info *jobx.JobInfo) {
		retry = info.Attempts < info.MaxRetries
		if retry {
			info.Status = jobx.JobStatusRetrying
		} else {
			info.Status = jobx.JobStatusFailed
		}
		info.Error = errMsg
	})
	return retry, err
}

func (q *MemoryQueue) Retry(_ context.Context, jobID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return jobx.NotFound(jobID)
	}
	q.delayed = append(q.delayed, scheduled{id: jobID, queue: info.Queue, at: q.now().Add(delay)})
	return nil
}

func (q *MemoryQueue) PromoteScheduled(_ context.Context, queues []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	want := make(map[string]bool, len(queues))
	for _, name := range queues {
		want[name] = true
	}

	kept := q.delayed[:0]
	promoted := false
	for _, s := range q.delayed {
		if want[s.queue] && !s.at.After(now) {
			q.ready[s.queue] = append(q.ready[s.queue], s.id)
			promoted = true
			continue
		}
		kept = append(kept, s)
	}
	q.delayed = kept
	if promoted {
		q.wake()
	}
	return nil
}

package mailqinfra

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/mailq"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/Abraxas-365/mailroom/pkg/ptrx"
)

// MemoryRepository is an in-process mailq.Repository for development and
// tests. It keeps the same state machine as the Postgres repository.
type MemoryRepository struct {
	mu       sync.Mutex
	messages map[kernel.MessageID]*mailq.Message
	now      func() time.Time
}

var _ mailq.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		messages: make(map[kernel.MessageID]*mailq.Message),
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func clone(m *mailq.Message) *mailq.Message {
	c := *m
	c.TemplateVariables = maps.Clone(m.TemplateVariables)
	c.Metadata.Extra = maps.Clone(m.Metadata.Extra)
	return &c
}

func (r *MemoryRepository) Enqueue(_ context.Context, n mailq.NewMessage) (kernel.MessageID, error) {
	if err := n.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msg := n.Build(r.now())
	r.messages[msg.ID] = msg
	return msg.ID, nil
}

// sorted returns the messages matching keep ordered by next attempt, then
// creation time.
func (r *MemoryRepository) sorted(keep func(*mailq.Message) bool) []*mailq.Message {
	var out []*mailq.Message
	for _, m := range r.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextAttemptAt.Equal(out[j].NextAttemptAt) {
			return out[i].NextAttemptAt.Before(out[j].NextAttemptAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryRepository) FetchDue(_ context.Context, limit int) ([]*mailq.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	due := r.sorted(func(m *mailq.Message) bool { return m.IsDue(now) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*mailq.Message, len(due))
	for i, m := range due {
		out[i] = clone(m)
	}
	return out, nil
}

func (r *MemoryRepository) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]*mailq.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	claimable := r.sorted(func(m *mailq.Message) bool {
		if m.IsDue(now) {
			return true
		}
		return m.Status == mailq.StatusInProgress && m.ClaimedUntil != nil && !m.ClaimedUntil.After(now)
	})
	if len(claimable) > limit {
		claimable = claimable[:limit]
	}

	out := make([]*mailq.Message, len(claimable))
	for i, m := range claimable {
		m.Status = mailq.StatusInProgress
		m.ClaimedUntil = ptrx.Time(now.Add(lease))
		m.UpdatedAt = now
		out[i] = clone(m)
	}
	return out, nil
}

func (r *MemoryRepository) Release(_ context.Context, claims []mailq.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, c := range claims {
		m, ok := r.messages[c.ID]
		if !ok || !c.Claimed() || !c.Holds(m) {
			continue
		}
		m.Status = mailq.StatusPending
		m.ClaimedUntil = nil
		m.UpdatedAt = now
	}
	return nil
}

func (r *MemoryRepository) update(c mailq.Claim, fn func(m *mailq.Message, now time.Time)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[c.ID]
	if !ok {
		return mailq.NotFound(c.ID.String())
	}
	if !c.Holds(m) {
		return mailq.ClaimLost(c)
	}
	now := r.now()
	fn(m, now)
	m.UpdatedAt = now
	return nil
}

func (r *MemoryRepository) MarkSent(_ context.Context, c mailq.Claim, res notifx.DeliveryResult) error {
	return r.update(c, func(m *mailq.Message, now time.Time) {
		m.Status = mailq.StatusSent
		m.Attempts++
		m.ErrorMessage = nil
		m.ClaimedUntil = nil
		m.SentAt = ptrx.Time(now)
		m.LastAttemptAt = ptrx.Time(now)
		m.Provider = res.Provider
		m.Sender = res.Sender
		m.ProviderMessageID = res.MessageID
	})
}

func (r *MemoryRepository) MarkFailed(_ context.Context, c mailq.Claim, errMsg string, next time.Time) error {
	return r.update(c, func(m *mailq.Message, now time.Time) {
		m.Status = mailq.StatusFailed
		m.Attempts++
		m.ErrorMessage = ptrx.String(errMsg)
		m.ClaimedUntil = nil
		m.LastAttemptAt = ptrx.Time(now)
		m.NextAttemptAt = next
	})
}

func (r *MemoryRepository) Requeue(_ context.Context, c mailq.Claim, errMsg string, next time.Time) error {
	return r.update(c, func(m *mailq.Message, now time.Time) {
		m.Status = mailq.StatusPending
		m.Attempts++
		m.ErrorMessage = ptrx.String(errMsg)
		m.ClaimedUntil = nil
		m.LastAttemptAt = ptrx.Time(now)
		m.NextAttemptAt = next
	})
}

func (r *MemoryRepository) ResetFailed(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for _, m := range r.messages {
		if m.Status != mailq.StatusFailed {
			continue
		}
		m.Status = mailq.StatusPending
		m.Attempts = 0
		m.ErrorMessage = nil
		m.NextAttemptAt = now
		m.UpdatedAt = now
		n++
	}
	return n, nil
}

func (r *MemoryRepository) Get(_ context.Context, id kernel.MessageID) (*mailq.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, mailq.NotFound(id.String())
	}
	return clone(m), nil
}

// List returns messages newest first.
func (r *MemoryRepository) List(_ context.Context, f mailq.ListFilter, opts kernel.PaginationOptions) (kernel.Paginated[*mailq.Message], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	opts = opts.Normalize()

	var matched []*mailq.Message
	for _, m := range r.messages {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.Recipient != "" && !strings.EqualFold(m.Recipient, f.Recipient) {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(opts.Offset(), total)
	end := min(start+opts.PageSize, total)

	items := make([]*mailq.Message, 0, end-start)
	for _, m := range matched[start:end] {
		items = append(items, clone(m))
	}
	return kernel.NewPaginated(items, opts.Page, opts.PageSize, total), nil
}

func (r *MemoryRepository) Stats(_ context.Context) (mailq.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s mailq.Stats
	for _, m := range r.messages {
		switch m.Status {
		case mailq.StatusPending:
			s.Pending++
			if s.OldestPendingAt == nil || m.NextAttemptAt.Before(*s.OldestPendingAt) {
				s.OldestPendingAt = ptrx.Time(m.NextAttemptAt)
			}
		case mailq.StatusInProgress:
			s.InProgress++
		case mailq.StatusSent:
			s.Sent++
		case mailq.StatusFailed:
			s.Failed++
		}
	}
	return s, nil
}

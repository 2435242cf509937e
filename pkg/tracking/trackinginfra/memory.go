package trackinginfra

import (
	"context"
	"maps"
	"sync"

	"github.com/Abraxas-365/mailroom/pkg/tracking"
)

// MemoryRepository keeps events in a slice.
type MemoryRepository struct {
	mu     sync.RWMutex
	events []tracking.Event
}

var _ tracking.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Append(_ context.Context, ev tracking.Event) error {
	ev.EventData = maps.Clone(ev.EventData)
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) ListByEmail(_ context.Context, emailID string) ([]tracking.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []tracking.Event{}
	for _, ev := range r.events {
		if ev.EmailID == emailID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Len returns how many events were appended.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

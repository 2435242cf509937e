package tracking

import "context"

// Repository appends tracking events. It never updates or deletes them.
type Repository interface {
	Append(ctx context.Context, ev Event) error
	ListByEmail(ctx context.Context, emailID string) ([]Event, error)
}

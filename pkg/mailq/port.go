package mailq

import (
	"context"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
)

// Repository persists queued messages. Every mutation touches a single row
// except ResetFailed. Mark* and Requeue write only while the claim still
// holds: they return ErrMessageNotFound for an unknown id and ErrClaimLost
// when the message moved on or was reclaimed by another processor.
type Repository interface {
	Enqueue(ctx context.Context, msg NewMessage) (kernel.MessageID, error)

	// FetchDue returns up to limit pending messages whose next attempt is
	// due, oldest first. It does not change state.
	FetchDue(ctx context.Context, limit int) ([]*Message, error)

	// ClaimDue atomically moves up to limit due messages to in_progress
	// until now+lease. Messages whose lease expired are claimable again.
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*Message, error)

	// Release returns unattempted claimed messages to pending. Claims that
	// no longer hold are left alone.
	Release(ctx context.Context, claims []Claim) error

	MarkSent(ctx context.Context, claim Claim, result notifx.DeliveryResult) error
	MarkFailed(ctx context.Context, claim Claim, errMsg string, nextAttemptAt time.Time) error
	Requeue(ctx context.Context, claim Claim, errMsg string, nextAttemptAt time.Time) error

	// ResetFailed moves every failed message back to pending with zero
	// attempts and returns how many were reset.
	ResetFailed(ctx context.Context) (int, error)

	Get(ctx context.Context, id kernel.MessageID) (*Message, error)
	List(ctx context.Context, filter ListFilter, opts kernel.PaginationOptions) (kernel.Paginated[*Message], error)
	Stats(ctx context.Context) (Stats, error)
}

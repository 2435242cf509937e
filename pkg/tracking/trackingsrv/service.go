package trackingsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/logx"
	"github.com/Abraxas-365/mailroom/pkg/tracking"
)

// Recorder observes recorded events. Metrics implement it.
type Recorder interface {
	TrackingHit(event tracking.EventType, ok bool)
}

// WriteResult is the outcome of a best-effort tracking write. Callers are
// expected to ignore it; it exists so the swallowed error is visible in
// the signature and in tests.
type WriteResult struct {
	Err error
}

func (r WriteResult) OK() bool { return r.Err == nil }

// Service records opens and clicks. Writes never fail the caller.
type Service struct {
	repo     tracking.Repository
	timeout  time.Duration
	recorder Recorder
	now      func() time.Time
}

func NewService(repo tracking.Repository, writeTimeout time.Duration, recorder Recorder) *Service {
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	return &Service{repo: repo, timeout: writeTimeout, recorder: recorder, now: time.Now}
}

func (s *Service) RecordOpen(ctx context.Context, hit tracking.Hit) WriteResult {
	return s.write(ctx, tracking.NewEvent(hit, tracking.EventOpen, "", s.now().UTC()))
}

func (s *Service) RecordClick(ctx context.Context, hit tracking.Hit, url string) WriteResult {
	return s.write(ctx, tracking.NewEvent(hit, tracking.EventClick, url, s.now().UTC()))
}

// Events lists the events recorded for an email.
func (s *Service) Events(ctx context.Context, emailID string) ([]tracking.Event, error) {
	return s.repo.ListByEmail(ctx, emailID)
}

func (s *Service) write(ctx context.Context, ev tracking.Event) WriteResult {
	// The write outlives a client that disconnects right after the pixel.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	err := s.repo.Append(ctx, ev)
	if s.recorder != nil {
		s.recorder.TrackingHit(ev.EventType, err == nil)
	}
	if err != nil {
		logx.WithFields(logx.Fields{
			"email_id": ev.EmailID,
			"event":    string(ev.EventType),
		}).WithError(err).Warn("tracking: failed to record event")
		return WriteResult{Err: tracking.WriteFailed(err)}
	}
	return WriteResult{}
}

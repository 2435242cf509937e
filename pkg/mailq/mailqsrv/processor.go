// Package mailqsrv runs queued messages through rendering, tracking and
// delivery, and exposes the operator operations of the queue.
package mailqsrv

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/asyncx"
	"github.com/Abraxas-365/mailroom/pkg/config"
	"github.com/Abraxas-365/mailroom/pkg/logx"
	"github.com/Abraxas-365/mailroom/pkg/mailq"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/Abraxas-365/mailroom/pkg/tmplx"
	"github.com/Abraxas-365/mailroom/pkg/tracking"
)

const (
	defaultBatchSize   = 20
	defaultMaxBatch    = 100
	defaultConcurrency = 5
)

// Metrics observes processing. metricx implements it.
type Metrics interface {
	BatchProcessed(result mailq.BatchResult, duration time.Duration)
	SendAttempt(provider string, success bool, duration time.Duration)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

func WithMetrics(m Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithLinker enables open and click tracking for messages that ask for it.
func WithLinker(l *tracking.Linker) ProcessorOption {
	return func(p *Processor) { p.linker = l }
}

func WithRetryPolicy(policy mailq.RetryPolicy) ProcessorOption {
	return func(p *Processor) {
		if policy != nil {
			p.policy = policy
		}
	}
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// WithSendTimeout bounds each send. A claimed message is only sent while
// its lease outlasts the bound.
func WithSendTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.sendTimeout = d }
}

// Processor sends one batch of due messages per call. It never schedules
// itself.
type Processor struct {
	repo    mailq.Repository
	sender  notifx.Sender
	linker  *tracking.Linker
	policy  mailq.RetryPolicy
	metrics Metrics
	now     func() time.Time

	defaultBatch int
	maxBatch     int
	concurrency  int
	lease        time.Duration
	sendTimeout  time.Duration
}

func NewProcessor(repo mailq.Repository, sender notifx.Sender, cfg config.MailQueueConfig, opts ...ProcessorOption) *Processor {
	p := &Processor{
		repo:         repo,
		sender:       sender,
		policy:       mailq.ManualPolicy{},
		now:          time.Now,
		defaultBatch: cfg.DefaultBatchSize,
		maxBatch:     cfg.MaxBatchSize,
		concurrency:  cfg.Concurrency,
		lease:        cfg.ClaimLease,
	}
	if p.defaultBatch <= 0 {
		p.defaultBatch = defaultBatchSize
	}
	if p.maxBatch <= 0 {
		p.maxBatch = defaultMaxBatch
	}
	if p.concurrency <= 0 {
		p.concurrency = defaultConcurrency
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BatchSize resolves the requested size against the default and the cap.
func (p *Processor) BatchSize(requested int) int {
	if requested <= 0 {
		requested = p.defaultBatch
	}
	return min(requested, p.maxBatch)
}

// ProcessBatch claims (or fetches) up to batchSize due messages and attempts
// each one. Only a failure to read the batch is returned as an error.
func (p *Processor) ProcessBatch(ctx context.Context, batchSize int) (mailq.BatchResult, error) {
	start := time.Now()
	limit := p.BatchSize(batchSize)

	var (
		batch []*mailq.Message
		err   error
	)
	if p.lease > 0 {
		batch, err = p.repo.ClaimDue(ctx, limit, p.lease)
	} else {
		batch, err = p.repo.FetchDue(ctx, limit)
	}
	if err != nil {
		logx.WithError(err).Error("mailq: failed to fetch due messages")
		return mailq.BatchResult{}, mailq.FetchFailed(err)
	}
	if len(batch) == 0 {
		return mailq.BatchResult{}, nil
	}

	var successful, failed, expired atomic.Int64
	results := asyncx.PoolSettled(ctx, p.concurrency, batch, func(ctx context.Context, msg *mailq.Message) (bool, error) {
		if !p.leaseCovers(msg) {
			// Left in_progress: once the lease runs out it is claimable again.
			expired.Add(1)
			logx.WithFields(logx.Fields{
				"message_id":    msg.ID.String(),
				"claimed_until": msg.ClaimedUntil,
			}).Warn("mailq: claim too close to expiry, message not sent")
			return false, nil
		}
		sent := p.processOne(ctx, msg)
		if sent {
			successful.Add(1)
		} else {
			failed.Add(1)
		}
		return sent, nil
	})

	var unattempted []mailq.Claim
	for i, r := range results {
		if r.Skipped {
			unattempted = append(unattempted, batch[i].Claim())
		}
	}
	if len(unattempted) > 0 && p.lease > 0 {
		if err := p.repo.Release(context.WithoutCancel(ctx), unattempted); err != nil {
			logx.WithError(err).Warnf("mailq: failed to release %d unattempted messages", len(unattempted))
		}
	}

	result := mailq.BatchResult{
		Successful: int(successful.Load()),
		Failed:     int(failed.Load()),
	}
	result.Processed = result.Successful + result.Failed

	if p.metrics != nil {
		p.metrics.BatchProcessed(result, time.Since(start))
	}
	logx.WithFields(logx.Fields{
		"batch_size": limit,
		"fetched":    len(batch),
		"processed":  result.Processed,
		"successful": result.Successful,
		"failed":     result.Failed,
		"skipped":    len(unattempted),
		"expired":    expired.Load(),
		"duration":   time.Since(start).Round(time.Millisecond).String(),
	}).Info("mailq: batch processed")

	return result, nil
}

// leaseCovers reports whether msg may still be sent under its claim: the
// lease must outlast a send that runs to its timeout.
func (p *Processor) leaseCovers(msg *mailq.Message) bool {
	if p.lease <= 0 {
		return true
	}
	if msg.ClaimedUntil == nil {
		return false
	}
	return p.now().Add(p.sendTimeout).Before(*msg.ClaimedUntil)
}

// processOne renders, sends and records one message. It reports whether the
// message was delivered.
func (p *Processor) processOne(ctx context.Context, msg *mailq.Message) bool {
	env := p.render(msg)
	sc := notifx.SendContext{
		Tag:       msg.Metadata.Tag,
		EmailType: msg.Metadata.EmailType,
		Metadata:  msg.Metadata.Extra,
	}

	sendCtx := ctx
	if p.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, p.sendTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.sender.Send(sendCtx, env, sc)
	if err != nil {
		res.Success = false
		res.Error = err.Error()
	}
	if p.metrics != nil {
		p.metrics.SendAttempt(res.Provider, res.Success, time.Since(start))
	}

	// State writes outlive a cancelled cycle so an attempt is never lost.
	writeCtx := context.WithoutCancel(ctx)
	claim := msg.Claim()
	log := logx.WithFields(logx.Fields{
		"message_id": msg.ID.String(),
		"recipient":  msg.Recipient,
		"attempt":    msg.Attempts + 1,
	})

	if res.Success {
		if err := p.repo.MarkSent(writeCtx, claim, res); err != nil {
			log.WithError(err).Error("mailq: sent but failed to mark message as sent")
		}
		return true
	}

	reason := res.Error
	if reason == "" {
		reason = "delivery failed"
	}
	decision := p.policy.Decide(msg.Attempts+1, p.now())
	if decision.Retry {
		err = p.repo.Requeue(writeCtx, claim, reason, decision.NextAttemptAt)
	} else {
		err = p.repo.MarkFailed(writeCtx, claim, reason, decision.NextAttemptAt)
	}
	if err != nil {
		log.WithError(err).Error("mailq: failed to record delivery failure")
	}
	log.WithFields(logx.Fields{
		"error": reason,
		"retry": decision.Retry,
	}).Warn("mailq: delivery failed")
	return false
}

func (p *Processor) render(msg *mailq.Message) notifx.Envelope {
	vars := msg.TemplateVariables

	var missing []string
	for _, t := range []string{msg.SubjectTemplate, msg.BodyTemplate, msg.TextTemplate} {
		missing = append(missing, tmplx.Missing(t, vars)...)
	}
	if len(missing) > 0 {
		logx.WithFields(logx.Fields{
			"message_id": msg.ID.String(),
			"missing":    missing,
		}).Debug("mailq: rendering with unresolved placeholders")
	}

	body := tmplx.Render(msg.BodyTemplate, vars)
	if p.linker != nil {
		if msg.Metadata.TrackClicks {
			body = p.linker.RewriteLinks(body, msg.ID.String())
		}
		if msg.Metadata.TrackOpens {
			body = p.linker.InjectPixel(body, msg.ID.String())
		}
	}

	env := notifx.Envelope{
		Recipient: msg.Recipient,
		Subject:   tmplx.Render(msg.SubjectTemplate, vars),
		HTMLBody:  body,
	}
	if msg.TextTemplate != "" {
		env.TextBody = tmplx.Render(msg.TextTemplate, vars)
	}
	return env
}

package notifx

import (
	"sync"
	"time"
)

// AccountHealth is a point-in-time view of one account.
type AccountHealth struct {
	Name                string     `json:"name"`
	Type                EmailType  `json:"type"`
	Email               string     `json:"email"`
	Healthy             bool       `json:"healthy"`
	AtLimit             bool       `json:"at_limit"`
	SentThisHour        int        `json:"sent_this_hour"`
	HourlyLimit         int        `json:"hourly_limit"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalSent           int64      `json:"total_sent"`
	TotalFailed         int64      `json:"total_failed"`
	SuccessRate         float64    `json:"success_rate"`
	LastUsedAt          *time.Time `json:"last_used_at,omitempty"`
	UnhealthySince      *time.Time `json:"unhealthy_since,omitempty"`
}

type accountState struct {
	Account

	windowStart         time.Time
	sentInWindow        int
	consecutiveFailures int
	unhealthySince      time.Time
	totalSent           int64
	totalFailed         int64
	lastUsed            time.Time
}

// AccountPool chooses sender accounts by email type and tracks their health.
// An account stops being selected after a run of consecutive failures or
// once it reaches its hourly limit; both conditions clear on their own.
type AccountPool struct {
	mu       sync.Mutex
	opts     poolOptions
	accounts []*accountState
	byName   map[string]*accountState
	byType   map[EmailType][]*accountState
	bulkNext int
}

// NewAccountPool creates a pool. Accounts without a type serve as system
// accounts.
func NewAccountPool(accounts []Account, opts ...PoolOption) *AccountPool {
	p := &AccountPool{
		opts:   applyPoolOptions(opts),
		byName: make(map[string]*accountState, len(accounts)),
		byType: make(map[EmailType][]*accountState),
	}
	for _, a := range accounts {
		if a.Type == "" {
			a.Type = EmailTypeSystem
		}
		st := &accountState{Account: a}
		p.accounts = append(p.accounts, st)
		p.byName[a.Name] = st
		p.byType[a.Type] = append(p.byType[a.Type], st)
	}
	return p
}

// Select returns the account that should send a message of type t. Bulk
// rotates across usable bulk accounts; other types take their typed account.
// Both fall back to the system account.
func (p *AccountPool) Select(t EmailType) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.opts.now()

	if t == EmailTypeBulk {
		if st := p.nextBulk(now); st != nil {
			st.lastUsed = now
			return st.Account, nil
		}
	} else if t != "" && t != EmailTypeSystem {
		if st := p.firstUsable(t, now); st != nil {
			st.lastUsed = now
			return st.Account, nil
		}
	}

	if st := p.firstUsable(EmailTypeSystem, now); st != nil {
		st.lastUsed = now
		return st.Account, nil
	}

	return Account{}, notifxErrors.New(ErrNoAccount).WithDetail("email_type", string(t))
}

func (p *AccountPool) nextBulk(now time.Time) *accountState {
	bulk := p.byType[EmailTypeBulk]
	for range bulk {
		st := bulk[p.bulkNext%len(bulk)]
		p.bulkNext = (p.bulkNext + 1) % len(bulk)
		if p.usable(st, now) {
			return st
		}
	}
	return nil
}

func (p *AccountPool) firstUsable(t EmailType, now time.Time) *accountState {
	for _, st := range p.byType[t] {
		if p.usable(st, now) {
			return st
		}
	}
	return nil
}

// usable reports whether st may send now. It also rolls the hourly window
// and lifts an expired unhealthy mark.
func (p *AccountPool) usable(st *accountState, now time.Time) bool {
	if now.Sub(st.windowStart) >= p.opts.window {
		st.windowStart = now
		st.sentInWindow = 0
	}
	if !st.unhealthySince.IsZero() {
		if now.Sub(st.unhealthySince) < p.opts.recoveryAfter {
			return false
		}
		st.unhealthySince = time.Time{}
		st.consecutiveFailures = 0
	}
	return st.HourlyLimit <= 0 || st.sentInWindow < st.HourlyLimit
}

// RecordSuccess counts a delivered message against the account.
func (p *AccountPool) RecordSuccess(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.byName[name]
	if !ok {
		return
	}
	st.sentInWindow++
	st.totalSent++
	st.consecutiveFailures = 0
}

// RecordFailure counts a failed attempt. Reaching the failure threshold
// marks the account unhealthy.
func (p *AccountPool) RecordFailure(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.byName[name]
	if !ok {
		return
	}
	st.sentInWindow++
	st.totalFailed++
	st.consecutiveFailures++
	if st.consecutiveFailures >= p.opts.failureThreshold && st.unhealthySince.IsZero() {
		st.unhealthySince = p.opts.now()
	}
}

// Snapshot returns the health of every account in configuration order.
func (p *AccountPool) Snapshot() []AccountHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.opts.now()
	out := make([]AccountHealth, 0, len(p.accounts))
	for _, st := range p.accounts {
		canSend := p.usable(st, now)

		h := AccountHealth{
			Name:                st.Name,
			Type:                st.Type,
			Email:               st.Email,
			Healthy:             st.unhealthySince.IsZero(),
			AtLimit:             st.unhealthySince.IsZero() && !canSend,
			SentThisHour:        st.sentInWindow,
			HourlyLimit:         st.HourlyLimit,
			ConsecutiveFailures: st.consecutiveFailures,
			TotalSent:           st.totalSent,
			TotalFailed:         st.totalFailed,
			SuccessRate:         1,
		}
		if total := st.totalSent + st.totalFailed; total > 0 {
			h.SuccessRate = float64(st.totalSent) / float64(total)
		}
		if !st.lastUsed.IsZero() {
			t := st.lastUsed
			h.LastUsedAt = &t
		}
		if !st.unhealthySince.IsZero() {
			t := st.unhealthySince
			h.UnhealthySince = &t
		}
		out = append(out, h)
	}
	return out
}

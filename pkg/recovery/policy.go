package recovery

import (
	"math/rand/v2"
	"time"

	"golang.org/x/text/language"
)

// Action is what the caller should do after a failure
type Action string

const (
	ActionRetrySimplified Action = "retry_simplified"
	ActionRetryRepaired   Action = "retry_repaired"
	ActionRetryBackoff    Action = "retry_backoff"
	ActionFallback        Action = "fallback"
	ActionFatal           Action = "fatal"
)

// Retryable reports whether the action asks for another upstream call
func (a Action) Retryable() bool {
	switch a {
	case ActionRetrySimplified, ActionRetryRepaired, ActionRetryBackoff:
		return true
	}
	return false
}

// Decision is the outcome of one Decide call
type Decision struct {
	Kind    Kind
	Action  Action
	Delay   time.Duration
	Message *Message
}

// Policy holds retry caps and backoff bounds
type Policy struct {
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxGeneric    int
	MaxJSONRepair int
	MaxUnknown    int
	Language      language.Tag

	// Jitter returns the random part of a backoff delay
	Jitter func() time.Duration
}

// DefaultPolicy is 1s base, 30s cap, 3 generic retries, 2 repairs and 1 unknown retry
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		MaxGeneric:    3,
		MaxJSONRepair: 2,
		MaxUnknown:    1,
		Language:      language.English,
		Jitter: func() time.Duration {
			return time.Duration(rand.Int64N(int64(time.Second)))
		},
	}
}

// WithLanguage returns a copy of p whose messages use lang
func (p Policy) WithLanguage(lang language.Tag) Policy {
	p.Language = lang
	return p
}

// Decide picks the action for a failure of kind after retries earlier retries of that kind
func (p Policy) Decide(kind Kind, retries int) Decision {
	d := Decision{Kind: kind}

	switch kind {
	case KindTruncated, KindMediaFailed:
		d.Action = p.capped(ActionRetrySimplified, retries, p.MaxGeneric)
	case KindInvalidJSON:
		d.Action = ActionRetryRepaired
		if retries >= p.MaxJSONRepair {
			d.Action = ActionFallback
		}
	case KindOverloaded, KindRateLimited, KindTimeout:
		d.Action = p.capped(ActionRetryBackoff, retries, p.MaxGeneric)
	case KindContentFiltered:
		d.Action = ActionFallback
	case KindQuotaExceeded, KindAuth, KindValidation:
		d.Action = ActionFatal
	default:
		d.Kind = KindUnknown
		d.Action = p.capped(ActionRetryBackoff, retries, p.MaxUnknown)
	}

	if d.Action == ActionRetryBackoff {
		d.Delay = p.Backoff(retries)
	}
	if d.Action == ActionFatal {
		msg := MessageFor(d.Kind, p.Language)
		d.Message = &msg
	}
	return d
}

// Backoff returns min(base*2^retries + jitter, max)
func (p Policy) Backoff(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	if retries > 30 {
		retries = 30
	}

	delay := p.BaseDelay << retries
	if p.Jitter != nil {
		delay += p.Jitter()
	}
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay < 0) {
		delay = p.MaxDelay
	}
	return delay
}

func (p Policy) capped(action Action, retries, limit int) Action {
	if retries >= limit {
		return ActionFatal
	}
	return action
}

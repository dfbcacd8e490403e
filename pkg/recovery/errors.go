// Package recovery classifies generation failures and decides what to do next.
//
// Errors are tagged with a Kind where the external call is made. Classify
// reads the tag and only falls back to inspecting untagged errors.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is one entry of the closed failure taxonomy
type Kind string

const (
	KindTruncated       Kind = "truncated"
	KindInvalidJSON     Kind = "invalid_json"
	KindOverloaded      Kind = "overloaded"
	KindRateLimited     Kind = "rate_limited"
	KindContentFiltered Kind = "content_filtered"
	KindTimeout         Kind = "timeout"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindMediaFailed     Kind = "media_failed"
	KindAuth            Kind = "auth"
	KindValidation      Kind = "validation"
	KindUnknown         Kind = "unknown"
)

// Kinds lists every Kind
var Kinds = []Kind{
	KindTruncated,
	KindInvalidJSON,
	KindOverloaded,
	KindRateLimited,
	KindContentFiltered,
	KindTimeout,
	KindQuotaExceeded,
	KindMediaFailed,
	KindAuth,
	KindValidation,
	KindUnknown,
}

// Error is a failure tagged with its Kind at the boundary that produced it
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// StatusCoder is implemented by errors that carry an HTTP status
type StatusCoder interface {
	StatusCode() int
}

// Classify returns the Kind of err
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		if k := KindForStatus(sc.StatusCode(), ""); k != KindUnknown {
			return k
		}
	}

	return classifyMessage(err.Error())
}

// KindForStatus maps an upstream HTTP status and error code to a Kind
func KindForStatus(status int, code string) Kind {
	switch code {
	case "insufficient_quota", "billing_hard_limit_reached":
		return KindQuotaExceeded
	case "content_filter", "content_policy_violation":
		return KindContentFiltered
	case "context_length_exceeded":
		return KindTruncated
	case "invalid_api_key":
		return KindAuth
	}

	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status == 408 || status == 504:
		return KindTimeout
	case status == 400 || status == 422:
		return KindValidation
	case status == 500 || status == 502 || status == 503 || status == 529:
		return KindOverloaded
	}
	return KindUnknown
}

// Order matters: quota messages also mention rate limits.
var messagePatterns = []struct {
	kind    Kind
	needles []string
}{
	{KindQuotaExceeded, []string{"quota", "billing", "insufficient_quota"}},
	{KindRateLimited, []string{"rate limit", "rate_limit", "too many requests", "429"}},
	{KindOverloaded, []string{"overloaded", "service unavailable", "503", "529", "capacity"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded", "etimedout", "econnreset"}},
	{KindContentFiltered, []string{"content filter", "content_filter", "safety", "content policy"}},
	{KindTruncated, []string{"truncated", "max_tokens", "maximum context length", "finish_reason: length"}},
	{KindInvalidJSON, []string{"invalid json", "unexpected end of json", "invalid character", "cannot unmarshal", "json"}},
	{KindMediaFailed, []string{"image", "media", "unsupported file", "could not process"}},
	{KindAuth, []string{"unauthorized", "invalid api key", "authentication", "permission denied", "401", "403"}},
	{KindValidation, []string{"invalid request", "validation", "bad request", "400"}},
}

func classifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)
	for _, p := range messagePatterns {
		for _, needle := range p.needles {
			if strings.Contains(msg, needle) {
				return p.kind
			}
		}
	}
	return KindUnknown
}

// Package generation produces social media captions and recovers from model failures.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/jordanlanch/contentforge/pkg/ai/llm"
	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/metrics"
	"github.com/jordanlanch/contentforge/pkg/recovery"
)

// maxCalls bounds the model calls of one request whatever the policy says
const maxCalls = 8

// CaptionRequest is a request for captions.
// UserID scopes RequestID, so two callers may use the same request id.
type CaptionRequest struct {
	UserID    string   `json:"-"`
	RequestID string   `json:"request_id" validate:"required,max=64"`
	Platform  Platform `json:"platform" validate:"required,oneof=instagram tiktok linkedin twitter facebook"`
	Topic     string   `json:"topic" validate:"required,min=3,max=500"`
	Tone      string   `json:"tone,omitempty" validate:"omitempty,max=40"`
	Language  string   `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	Count     int      `json:"count,omitempty" validate:"omitempty,min=1,max=10"`
	MediaURL  string   `json:"media_url,omitempty" validate:"omitempty,url"`
	Keywords  []string `json:"keywords,omitempty" validate:"omitempty,max=10,dive,max=40"`
}

// Source tells where captions came from
type Source string

const (
	SourceModel    Source = "model"
	SourceTemplate Source = "template"
)

// CaptionResult is a successful generation
type CaptionResult struct {
	RequestID string          `json:"request_id"`
	Captions  []string        `json:"captions"`
	Source    Source          `json:"source"`
	Attempts  int             `json:"attempts"`
	Recovered []recovery.Kind `json:"recovered,omitempty"`
}

// FailedError is returned when recovery gives up
type FailedError struct {
	Kind    recovery.Kind
	Message recovery.Message
	Err     error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("caption generation failed (%s): %v", e.Kind, e.Err)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

// Generator drives the model through the recovery state machine
type Generator struct {
	client   llm.Client
	dedup    Deduper
	policy   recovery.Policy
	metrics  *metrics.Metrics
	logger   logger.Logger
	validate *validator.Validate
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGenerator creates a generator using the default recovery policy
func NewGenerator(client llm.Client, dedup Deduper, log logger.Logger) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	if dedup == nil {
		dedup = NewLocalDeduper()
	}
	return &Generator{
		client:   client,
		dedup:    dedup,
		policy:   recovery.DefaultPolicy(),
		logger:   log.With("component", "generation"),
		validate: validator.New(),
		sleep:    sleepCtx,
	}
}

// WithPolicy replaces the recovery policy
func (g *Generator) WithPolicy(p recovery.Policy) *Generator {
	g.policy = p
	return g
}

// WithMetrics records outcomes and recovery decisions
func (g *Generator) WithMetrics(m *metrics.Metrics) *Generator {
	g.metrics = m
	return g
}

// WithSleep replaces the backoff sleep, mainly for tests
func (g *Generator) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Generator {
	g.sleep = fn
	return g
}

// attempt holds the prompt state carried between model calls
type attempt struct {
	simplified bool
	repair     bool
	lastOutput string
}

// GenerateCaptions asks the model for captions, retrying, repairing or falling back as the
// recovery policy decides. A request id already in flight is rejected with a conflict.
func (g *Generator) GenerateCaptions(ctx context.Context, req CaptionRequest) (*CaptionResult, error) {
	if err := g.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid caption request: %v", err))
	}
	if req.Count == 0 {
		req.Count = 3
	}
	lang := recovery.MatchLanguage(language.Make(req.Language))
	if req.Language == "" {
		lang = language.English
	}

	key := inflightKey(req)
	acquired, err := g.dedup.Acquire(ctx, key)
	switch {
	case err != nil:
		// dedup is best effort; a broken store must not block generation
		g.logger.Warn("dedup unavailable", "request_id", req.RequestID, "error", err)
	case !acquired:
		g.metrics.RecordGeneration("duplicate")
		return nil, domain.NewConflictError("a request with this id is already in progress")
	default:
		defer func() {
			if err := g.dedup.Release(context.WithoutCancel(ctx), key); err != nil {
				g.logger.Warn("failed to release request id", "request_id", req.RequestID, "error", err)
			}
		}()
	}

	policy := g.policy.WithLanguage(lang)
	retries := make(map[recovery.Kind]int)
	result := &CaptionResult{RequestID: req.RequestID}
	var state attempt

	for result.Attempts < maxCalls {
		result.Attempts++

		captions, output, err := g.call(ctx, req, lang, state)
		if err == nil {
			result.Captions = captions
			result.Source = SourceModel
			g.metrics.RecordGeneration(string(SourceModel))
			return result, nil
		}
		if output != "" {
			state.lastOutput = output
		}
		if ctx.Err() != nil {
			return nil, g.fail(recovery.KindTimeout, lang, err)
		}

		kind := recovery.Classify(err)
		decision := policy.Decide(kind, retries[kind])
		retries[kind]++
		g.metrics.RecordRecoveryDecision(string(decision.Kind), string(decision.Action))
		g.logger.Warn("caption generation attempt failed",
			"request_id", req.RequestID,
			"attempt", result.Attempts,
			"kind", decision.Kind,
			"action", decision.Action,
			"error", err,
		)
		result.Recovered = append(result.Recovered, decision.Kind)

		switch decision.Action {
		case recovery.ActionRetrySimplified:
			state.simplified = true
			state.repair = false
		case recovery.ActionRetryRepaired:
			state.repair = state.lastOutput != ""
		case recovery.ActionRetryBackoff:
			state.repair = false
			if err := g.sleep(ctx, decision.Delay); err != nil {
				return nil, g.fail(recovery.KindTimeout, lang, err)
			}
		case recovery.ActionFallback:
			result.Captions = FallbackCaptions(req.Platform, req.Topic, lang, req.Count)
			result.Source = SourceTemplate
			g.metrics.RecordGeneration("fallback")
			return result, nil
		default:
			g.metrics.RecordGeneration("failed")
			failed := &FailedError{Kind: decision.Kind, Err: err}
			if decision.Message != nil {
				failed.Message = *decision.Message
			} else {
				failed.Message = recovery.MessageFor(decision.Kind, lang)
			}
			return nil, failed
		}
	}

	return nil, g.fail(recovery.KindUnknown, lang, errors.New("too many model calls"))
}

func (g *Generator) call(ctx context.Context, req CaptionRequest, lang language.Tag, state attempt) ([]string, string, error) {
	prompt := llm.BuildCaptionPrompt(llm.CaptionPrompt{
		Platform: string(req.Platform),
		Topic:    req.Topic,
		Tone:     req.Tone,
		Language: lang.String(),
		Count:    req.Count,
		MediaURL: req.MediaURL,
		Keywords: req.Keywords,
	}, state.simplified)

	messages := []llm.ChatMessage{
		{Role: "system", Content: llm.CaptionSystemPrompt},
		{Role: "user", Content: prompt},
	}
	if state.repair {
		messages = append(messages,
			llm.ChatMessage{Role: "assistant", Content: state.lastOutput},
			llm.ChatMessage{Role: "user", Content: llm.StrictJSONReminder},
		)
	}

	resp, err := g.client.Chat(ctx, llm.ChatRequest{Messages: messages, JSONMode: true})
	if err != nil {
		return nil, "", err
	}

	captions, err := ParseCaptions(resp.Message)
	if err != nil {
		if resp.Truncated() {
			err = recovery.Wrap(recovery.KindTruncated, "generate captions", err)
		}
		return nil, resp.Message, err
	}
	if len(captions) > req.Count {
		captions = captions[:req.Count]
	}
	return captions, resp.Message, nil
}

// inflightKey identifies a request in the dedup set
func inflightKey(req CaptionRequest) string {
	if req.UserID == "" {
		return req.RequestID
	}
	return req.UserID + ":" + req.RequestID
}

func (g *Generator) fail(kind recovery.Kind, lang language.Tag, err error) error {
	g.metrics.RecordGeneration("failed")
	return &FailedError{Kind: kind, Message: recovery.MessageFor(kind, lang), Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return nil
}

package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/jordanlanch/contentforge/pkg/ai/llm"
	"github.com/jordanlanch/contentforge/pkg/cache"
	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/recovery"
)

// reply is one scripted model answer
type reply struct {
	resp *llm.ChatResponse
	err  error
}

// scriptedClient returns replies in order and records every request
type scriptedClient struct {
	mu       sync.Mutex
	replies  []reply
	requests []llm.ChatRequest
}

func (c *scriptedClient) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r.resp, r.err
}

func answer(message string) reply {
	return reply{resp: &llm.ChatResponse{Message: message, FinishReason: "stop"}}
}

func failWith(kind recovery.Kind) reply {
	return reply{err: recovery.Wrap(kind, "chat completion", errors.New("upstream said no"))}
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newTestGenerator(client llm.Client) (*Generator, *sleepRecorder) {
	policy := recovery.DefaultPolicy()
	policy.Jitter = func() time.Duration { return 0 }

	rec := &sleepRecorder{}
	g := NewGenerator(client, NewLocalDeduper(), logger.Nop()).
		WithPolicy(policy).
		WithSleep(rec.sleep)
	return g, rec
}

func baseRequest() CaptionRequest {
	return CaptionRequest{
		RequestID: "req-1",
		Platform:  PlatformInstagram,
		Topic:     "summer coffee menu",
		Count:     2,
	}
}

const validCaptions = `{"captions": ["Iced latte season is here", "Cold brew, warm vibes", "A third one"]}`

func TestParseCaptions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"object", `{"captions": ["a", "b"]}`, []string{"a", "b"}},
		{"bare array", `["a", "b"]`, []string{"a", "b"}},
		{"objects with text", `[{"text": "a"}, {"caption": "b"}]`, []string{"a", "b"}},
		{"fenced with trailing comma", "```json\n{\"captions\": [\"a\", \"b\",]}\n```", []string{"a", "b"}},
		{"bareword key", `{captions: ["a"]}`, []string{"a"}},
		{"numbered list", "1. First caption\n2) Second caption", []string{"First caption", "Second caption"}},
		{"bulleted list", "- one\n* two", []string{"one", "two"}},
		{"duplicates and blanks dropped", `{"captions": ["a", " ", "a", "\"b\""]}`, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCaptions(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCaptions_Unusable(t *testing.T) {
	for _, in := range []string{"", "I am unable to help with that", `{"foo": 1}`} {
		_, err := ParseCaptions(in)
		require.Error(t, err, in)
		assert.Equal(t, recovery.KindInvalidJSON, recovery.Classify(err), in)
	}
}

func TestGenerateCaptions_Success(t *testing.T) {
	client := &scriptedClient{replies: []reply{answer(validCaptions)}}
	g, _ := newTestGenerator(client)

	result, err := g.GenerateCaptions(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, SourceModel, result.Source)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, []string{"Iced latte season is here", "Cold brew, warm vibes"}, result.Captions)
	assert.Empty(t, result.Recovered)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.True(t, req.JSONMode)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.CaptionSystemPrompt, req.Messages[0].Content)
	assert.Contains(t, req.Messages[1].Content, "summer coffee menu")
}

func TestGenerateCaptions_RepairsInvalidJSON(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		answer("I am unable to help with that"),
		answer(validCaptions),
	}}
	g, _ := newTestGenerator(client)

	result, err := g.GenerateCaptions(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, SourceModel, result.Source)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, []recovery.Kind{recovery.KindInvalidJSON}, result.Recovered)

	require.Len(t, client.requests, 2)
	retry := client.requests[1].Messages
	require.Len(t, retry, 4)
	assert.Equal(t, "assistant", retry[2].Role)
	assert.Equal(t, "I am unable to help with that", retry[2].Content)
	assert.Equal(t, llm.StrictJSONReminder, retry[3].Content)
}

func TestGenerateCaptions_InvalidJSONFallsBackToTemplates(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		answer("nope"),
		answer("still nope"),
		answer("really nope"),
	}}
	g, _ := newTestGenerator(client)

	result, err := g.GenerateCaptions(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, SourceTemplate, result.Source)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, result.Captions, 2)
	assert.Contains(t, result.Captions[0], "#SummerCoffeeMenu")
}

func TestGenerateCaptions_TruncatedRetriesSimplified(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{resp: &llm.ChatResponse{Message: "Here are some ideas for your", FinishReason: "length"}},
		answer(validCaptions),
	}}
	g, _ := newTestGenerator(client)

	req := baseRequest()
	req.MediaURL = "https://cdn.example.com/latte.jpg"

	result, err := g.GenerateCaptions(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []recovery.Kind{recovery.KindTruncated}, result.Recovered)

	require.Len(t, client.requests, 2)
	first := client.requests[0].Messages[1].Content
	second := client.requests[1].Messages[1].Content
	assert.Contains(t, first, "latte.jpg")
	assert.NotContains(t, second, "latte.jpg")
	assert.Contains(t, second, "under 150 characters")
}

func TestGenerateCaptions_BacksOffOnRateLimit(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		failWith(recovery.KindRateLimited),
		failWith(recovery.KindRateLimited),
		answer(validCaptions),
	}}
	g, rec := newTestGenerator(client)

	result, err := g.GenerateCaptions(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestGenerateCaptions_GivesUpAfterRetryCap(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		failWith(recovery.KindOverloaded),
		failWith(recovery.KindOverloaded),
		failWith(recovery.KindOverloaded),
		failWith(recovery.KindOverloaded),
		answer(validCaptions),
	}}
	g, rec := newTestGenerator(client)

	_, err := g.GenerateCaptions(context.Background(), baseRequest())
	require.Error(t, err)

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, recovery.KindOverloaded, failed.Kind)
	assert.Equal(t, recovery.MessageFor(recovery.KindOverloaded, language.English), failed.Message)
	assert.Len(t, client.requests, 4)
	assert.Len(t, rec.delays, 3)
}

func TestGenerateCaptions_UnknownRetriedOnce(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{err: errors.New("something odd happened")},
		{err: errors.New("something odd happened")},
	}}
	g, _ := newTestGenerator(client)

	_, err := g.GenerateCaptions(context.Background(), baseRequest())

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, recovery.KindUnknown, failed.Kind)
	assert.Len(t, client.requests, 2)
}

func TestGenerateCaptions_FatalIsLocalized(t *testing.T) {
	client := &scriptedClient{replies: []reply{failWith(recovery.KindQuotaExceeded)}}
	g, rec := newTestGenerator(client)

	req := baseRequest()
	req.Language = "es-MX"

	_, err := g.GenerateCaptions(context.Background(), req)

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, recovery.KindQuotaExceeded, failed.Kind)
	assert.Equal(t, recovery.MessageFor(recovery.KindQuotaExceeded, language.Spanish), failed.Message)
	assert.Len(t, client.requests, 1)
	assert.Empty(t, rec.delays)
}

func TestGenerateCaptions_ContentFilteredFallsBack(t *testing.T) {
	client := &scriptedClient{replies: []reply{failWith(recovery.KindContentFiltered)}}
	g, _ := newTestGenerator(client)

	result, err := g.GenerateCaptions(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, SourceTemplate, result.Source)
	assert.Equal(t, 1, result.Attempts)
}

func TestGenerateCaptions_InvalidRequest(t *testing.T) {
	g, _ := newTestGenerator(&scriptedClient{})

	tests := []struct {
		name   string
		mutate func(*CaptionRequest)
	}{
		{"missing request id", func(r *CaptionRequest) { r.RequestID = "" }},
		{"unknown platform", func(r *CaptionRequest) { r.Platform = "myspace" }},
		{"short topic", func(r *CaptionRequest) { r.Topic = "hi" }},
		{"too many captions", func(r *CaptionRequest) { r.Count = 11 }},
		{"bad media url", func(r *CaptionRequest) { r.MediaURL = "not a url" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			_, err := g.GenerateCaptions(context.Background(), req)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
}

// blockingClient parks inside Chat until released
type blockingClient struct {
	started chan struct{}
	release chan struct{}
}

func (c *blockingClient) Chat(ctx context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	close(c.started)
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &llm.ChatResponse{Message: validCaptions, FinishReason: "stop"}, nil
}

func TestGenerateCaptions_RejectsDuplicateInFlight(t *testing.T) {
	client := &blockingClient{started: make(chan struct{}), release: make(chan struct{})}
	g, _ := newTestGenerator(client)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := g.GenerateCaptions(ctx, baseRequest())
		done <- err
	}()
	<-client.started

	_, err := g.GenerateCaptions(ctx, baseRequest())
	assert.True(t, domain.IsConflict(err), "got %v", err)

	close(client.release)
	require.NoError(t, <-done)

	// released once finished
	acquired, err := g.dedup.Acquire(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, acquired)
}

// gatedClient parks every call until release is closed
type gatedClient struct {
	arrived chan struct{}
	release chan struct{}
}

func (c *gatedClient) Chat(ctx context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	c.arrived <- struct{}{}
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &llm.ChatResponse{Message: validCaptions, FinishReason: "stop"}, nil
}

func TestGenerateCaptions_SameRequestIDDifferentUsers(t *testing.T) {
	client := &gatedClient{arrived: make(chan struct{}, 2), release: make(chan struct{})}
	g, _ := newTestGenerator(client)
	ctx := context.Background()

	done := make(chan error, 2)
	for _, user := range []string{"alice", "bob"} {
		req := baseRequest()
		req.UserID = user
		go func() {
			_, err := g.GenerateCaptions(ctx, req)
			done <- err
		}()
	}

	for i := 0; i < 2; i++ {
		select {
		case <-client.arrived:
		case err := <-done:
			t.Fatalf("request finished before reaching the model: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("both requests should be in flight together")
		}
	}

	close(client.release)
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	assert.Equal(t, "alice:req-1", inflightKey(CaptionRequest{UserID: "alice", RequestID: "req-1"}))
	assert.Equal(t, "req-1", inflightKey(CaptionRequest{RequestID: "req-1"}))
}

func TestLocalDeduper(t *testing.T) {
	d := NewLocalDeduper()
	ctx := context.Background()

	ok, err := d.Acquire(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = d.Acquire(ctx, "a")
	assert.False(t, ok)

	ok, _ = d.Acquire(ctx, "b")
	assert.True(t, ok)

	require.NoError(t, d.Release(ctx, "a"))
	ok, _ = d.Acquire(ctx, "a")
	assert.True(t, ok)
}

func TestRedisDeduper(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	d := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	ok, err := d.Acquire(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("generation:inflight:shared"))

	// a second instance sharing the same redis sees the id as taken
	other := NewRedisDeduper(client, time.Minute)
	ok, err = other.Acquire(ctx, "shared")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Release(ctx, "shared"))
	ok, err = other.Acquire(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, ok)

	// crashed holders expire
	mr.FastForward(2 * time.Minute)
	ok, err = d.Acquire(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFallbackCaptions(t *testing.T) {
	captions := FallbackCaptions(PlatformLinkedIn, "remote work tips", language.English, 5)
	require.Len(t, captions, 3)
	assert.Contains(t, captions[0], "Remote Work Tips")
	assert.Contains(t, captions[0], "#RemoteWorkTips")

	spanish := FallbackCaptions(PlatformTikTok, "café de verano", language.Spanish, 1)
	require.Len(t, spanish, 1)
	assert.Contains(t, spanish[0], "café de verano")
	assert.Contains(t, spanish[0], "#CaféDeVerano")

	unknown := FallbackCaptions("myspace", "anything goes", language.English, 0)
	assert.Len(t, unknown, 1)
}

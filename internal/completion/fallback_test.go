package completion_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"claimsqa/internal/completion"
	"claimsqa/internal/domain"
	"claimsqa/internal/observability"
	"claimsqa/internal/port"
	"claimsqa/mocks"
)

func fallbackOutput(provider string) *port.CompletionResponse {
	return &port.CompletionResponse{Text: `{"ok":true}`, Model: provider + "-model", Provider: provider}
}

var fallbackReq = port.CompletionRequest{SystemPrompt: "sys", UserPrompt: "user"}

func TestFallbackCompleter_FirstSucceeds(t *testing.T) {
	c1 := new(mocks.MockCompleter)
	c2 := new(mocks.MockCompleter)

	c1.On("Complete", mock.Anything, fallbackReq).Return(fallbackOutput("azure_openai"), nil)

	fc := completion.NewFallbackCompleter([]port.Completer{c1, c2}, []string{"azure_openai", "claude"})

	out, err := fc.Complete(context.Background(), fallbackReq)

	require.NoError(t, err)
	assert.Equal(t, "azure_openai", out.Provider)
	c2.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestFallbackCompleter_FirstFails_SecondSucceeds(t *testing.T) {
	c1 := new(mocks.MockCompleter)
	c2 := new(mocks.MockCompleter)

	c1.On("Complete", mock.Anything, fallbackReq).Return(nil, errors.New("generic error"))
	c2.On("Complete", mock.Anything, fallbackReq).Return(fallbackOutput("claude"), nil)

	fc := completion.NewFallbackCompleter([]port.Completer{c1, c2}, []string{"azure_openai", "claude"})

	out, err := fc.Complete(context.Background(), fallbackReq)

	require.NoError(t, err)
	assert.Equal(t, "claude", out.Provider)
}

func TestFallbackCompleter_RateLimitedProviderIsSkippedNextTime(t *testing.T) {
	c1 := new(mocks.MockCompleter)
	c2 := new(mocks.MockCompleter)

	rlErr := completion.NewRateLimitError("azure_openai", errors.New("429"), 60)
	c1.On("Complete", mock.Anything, fallbackReq).Return(nil, rlErr).Once()
	c2.On("Complete", mock.Anything, fallbackReq).Return(fallbackOutput("gemini"), nil).Twice()

	fc := completion.NewFallbackCompleter([]port.Completer{c1, c2}, []string{"azure_openai", "gemini"})

	_, err := fc.Complete(context.Background(), fallbackReq)
	require.NoError(t, err)

	// Circuit for the first provider is open now.
	out, err := fc.Complete(context.Background(), fallbackReq)
	require.NoError(t, err)
	assert.Equal(t, "gemini", out.Provider)
	c1.AssertNumberOfCalls(t, "Complete", 1)
	c2.AssertNumberOfCalls(t, "Complete", 2)
}

func TestFallbackCompleter_AllRateLimited(t *testing.T) {
	c1 := new(mocks.MockCompleter)
	c2 := new(mocks.MockCompleter)

	c1.On("Complete", mock.Anything, fallbackReq).Return(nil, completion.NewRateLimitError("a", errors.New("429"), 30))
	c2.On("Complete", mock.Anything, fallbackReq).Return(nil, completion.NewRateLimitError("b", errors.New("429"), 10))

	fc := completion.NewFallbackCompleter([]port.Completer{c1, c2}, []string{"a", "b"})

	_, err := fc.Complete(context.Background(), fallbackReq)

	var rl *completion.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, "all", rl.Provider)
	assert.True(t, errors.Is(err, domain.ErrUpstreamRateLimited))

	// Both circuits open: no provider is called again.
	_, err = fc.Complete(context.Background(), fallbackReq)
	require.True(t, errors.As(err, &rl))
	c1.AssertNumberOfCalls(t, "Complete", 1)
	c2.AssertNumberOfCalls(t, "Complete", 1)
}

func TestFallbackCompleter_AllFail(t *testing.T) {
	c1 := new(mocks.MockCompleter)
	c2 := new(mocks.MockCompleter)

	c1.On("Complete", mock.Anything, fallbackReq).Return(nil, completion.NewRateLimitError("a", errors.New("429"), 30))
	c2.On("Complete", mock.Anything, fallbackReq).Return(nil, errors.New("boom"))

	fc := completion.NewFallbackCompleter([]port.Completer{c1, c2}, []string{"a", "b"})

	_, err := fc.Complete(context.Background(), fallbackReq)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all completion providers failed")
	assert.Contains(t, err.Error(), "boom")
}

func TestFallbackCompleter_StopsOnCancelledContext(t *testing.T) {
	c1 := new(mocks.MockCompleter)
	c2 := new(mocks.MockCompleter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c1.On("Complete", mock.Anything, fallbackReq).Return(nil, context.Canceled)

	fc := completion.NewFallbackCompleter([]port.Completer{c1, c2}, []string{"a", "b"})

	_, err := fc.Complete(ctx, fallbackReq)

	assert.ErrorIs(t, err, context.Canceled)
	c2.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestFallbackCompleter_Concurrent(t *testing.T) {
	c1 := new(mocks.MockCompleter)
	c1.On("Complete", mock.Anything, fallbackReq).Return(fallbackOutput("a"), nil)

	fc := completion.NewFallbackCompleter([]port.Completer{c1}, []string{"a"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fc.Complete(context.Background(), fallbackReq)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	c1.AssertNumberOfCalls(t, "Complete", 20)
}

func TestFallbackCompleter_LogsWithRequestContext(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	c1 := new(mocks.MockCompleter)
	c2 := new(mocks.MockCompleter)
	c1.On("Complete", mock.Anything, fallbackReq).Return(nil, completion.NewRateLimitError("a", errors.New("429"), 30))
	c2.On("Complete", mock.Anything, fallbackReq).Return(fallbackOutput("b"), nil)

	fc := completion.NewFallbackCompleter([]port.Completer{c1, c2}, []string{"a", "b"})
	ctx := observability.WithRequestID(context.Background(), "req-42")

	out, err := fc.Complete(ctx, fallbackReq)
	require.NoError(t, err)
	assert.Equal(t, "b", out.Provider)

	logged := buf.String()
	assert.Contains(t, logged, `"request_id":"req-42"`)
	assert.Contains(t, logged, `"provider":"a"`)
	assert.Contains(t, logged, "completion.Fallback: provider rate limited")
}

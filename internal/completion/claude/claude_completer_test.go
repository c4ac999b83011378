package claude_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimsqa/internal/completion"
	"claimsqa/internal/completion/claude"
	"claimsqa/internal/config"
	"claimsqa/internal/port"
)

func newTestCompleter(url string) *claude.Completer {
	return claude.NewWithEndpoint(&config.ProviderConfig{Provider: "claude", APIKey: "test-claude-key"}, url)
}

func TestCompleter_ForcedToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-claude-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "extract things", body["system"])

		tools := body["tools"].([]interface{})
		require.Len(t, tools, 1)
		tool := tools[0].(map[string]interface{})
		assert.Equal(t, "claims_summary_create", tool["name"])
		assert.NotNil(t, tool["input_schema"])

		choice := body["tool_choice"].(map[string]interface{})
		assert.Equal(t, "tool", choice["type"])

		msg := body["messages"].([]interface{})[0].(map[string]interface{})
		blocks := msg["content"].([]interface{})
		assert.Equal(t, "document", blocks[0].(map[string]interface{})["type"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "claude-sonnet-4-20250514",
			"content": []map[string]interface{}{
				{"type": "tool_use", "name": "claims_summary_create", "input": map[string]interface{}{"claims_id": "C9"}},
			},
			"stop_reason": "tool_use",
		})
	}))
	defer server.Close()

	out, err := newTestCompleter(server.URL).Complete(context.Background(), port.CompletionRequest{
		SystemPrompt:   "extract things",
		UserPrompt:     "go",
		Attachment:     &port.Attachment{ContentType: "application/pdf", Data: []byte("%PDF")},
		ResponseSchema: &port.ResponseSchema{Name: "claims_summary_create", Schema: map[string]any{"type": "object"}, Strict: true},
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"claims_id":"C9"}`, out.Text)
	assert.Equal(t, "claude", out.Provider)
}

func TestCompleter_TextAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(4096), body["max_tokens"])
		assert.NotContains(t, body, "tools")

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": "Two "},
				{"type": "text", "text": "medications."},
			},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	out, err := newTestCompleter(server.URL).Complete(context.Background(), port.CompletionRequest{UserPrompt: "how many?"})

	require.NoError(t, err)
	assert.Equal(t, "Two medications.", out.Text)
	assert.Equal(t, "claude-sonnet-4-20250514", out.Model)
}

func TestCompleter_MissingToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]interface{}{{"type": "text", "text": "sorry"}},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	_, err := newTestCompleter(server.URL).Complete(context.Background(), port.CompletionRequest{
		UserPrompt:     "go",
		ResponseSchema: &port.ResponseSchema{Name: "claims_summary_create"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no claims_summary_create tool call")
}

func TestCompleter_MaxTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]interface{}{{"type": "text", "text": "partial"}},
			"stop_reason": "max_tokens",
		})
	}))
	defer server.Close()

	_, err := newTestCompleter(server.URL).Complete(context.Background(), port.CompletionRequest{UserPrompt: "go"})

	assert.ErrorIs(t, err, completion.ErrTruncated)
}

func TestCompleter_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestCompleter(server.URL).Complete(context.Background(), port.CompletionRequest{UserPrompt: "go"})

	var rl *completion.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, "claude", rl.Provider)
}

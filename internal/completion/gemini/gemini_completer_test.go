package gemini_test

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
	"claimsqa/internal/completion/gemini"
	"claimsqa/internal/config"
	"claimsqa/internal/domain"
	"claimsqa/internal/port"
)

func geminiResponse(text, finish string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]interface{}{{"text": text}},
				},
				"finishReason": finish,
			},
		},
	}
}

func TestCompleter_JSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-gemini-key", r.Header.Get("x-goog-api-key"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		gen := body["generationConfig"].(map[string]interface{})
		assert.Equal(t, "application/json", gen["responseMimeType"])
		assert.Equal(t, float64(1000), gen["maxOutputTokens"])

		sys := body["systemInstruction"].(map[string]interface{})
		assert.NotEmpty(t, sys["parts"])

		parts := body["contents"].([]interface{})[0].(map[string]interface{})["parts"].([]interface{})
		require.Len(t, parts, 2)
		inline := parts[0].(map[string]interface{})["inline_data"].(map[string]interface{})
		assert.Equal(t, "image/png", inline["mime_type"])
		text := parts[1].(map[string]interface{})["text"].(string)
		assert.Contains(t, text, "JSON Schema")
		assert.Contains(t, text, `"type":"object"`)

		_ = json.NewEncoder(w).Encode(geminiResponse(`{"claims_id":"G1"}`, "STOP"))
	}))
	defer server.Close()

	c := gemini.NewWithEndpoint(&config.ProviderConfig{APIKey: "test-gemini-key"}, server.URL)

	out, err := c.Complete(context.Background(), port.CompletionRequest{
		SystemPrompt:   "extract",
		UserPrompt:     "go",
		Attachment:     &port.Attachment{ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		ResponseSchema: &port.ResponseSchema{Name: "claims_summary_create", Schema: map[string]any{"type": "object"}},
		MaxTokens:      1000,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"claims_id":"G1"}`, out.Text)
	assert.Equal(t, "gemini-2.0-flash", out.Model)
}

func TestCompleter_Errors(t *testing.T) {
	t.Run("max tokens", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(geminiResponse("{", "MAX_TOKENS"))
		}))
		defer server.Close()

		_, err := gemini.NewWithEndpoint(&config.ProviderConfig{}, server.URL).
			Complete(context.Background(), port.CompletionRequest{UserPrompt: "x"})
		assert.ErrorIs(t, err, completion.ErrTruncated)
	})

	t.Run("no candidates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
		}))
		defer server.Close()

		_, err := gemini.NewWithEndpoint(&config.ProviderConfig{}, server.URL).
			Complete(context.Background(), port.CompletionRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no candidates")
	})

	t.Run("service unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := gemini.NewWithEndpoint(&config.ProviderConfig{}, server.URL).
			Complete(context.Background(), port.CompletionRequest{UserPrompt: "x"})
		var up *domain.UpstreamError
		require.True(t, errors.As(err, &up))
		assert.True(t, up.Retryable())
	})
}

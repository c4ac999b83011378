// Package openai implements port.Completer over the OpenAI Chat Completions
// API, both on api.openai.com and on Azure OpenAI deployments.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"claimsqa/internal/completion"
	"claimsqa/internal/config"
	"claimsqa/internal/port"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"

	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure_openai"
)

func init() {
	completion.RegisterProvider(ProviderOpenAI, func(cfg *config.ProviderConfig) (port.Completer, error) {
		return New(cfg), nil
	})
	completion.RegisterProvider(ProviderAzureOpenAI, func(cfg *config.ProviderConfig) (port.Completer, error) {
		if cfg.BaseURL == "" || cfg.Model == "" {
			return nil, fmt.Errorf("azure_openai requires base_url and a deployment name as model")
		}
		return New(cfg), nil
	})
}

// Completer implements port.Completer using the Chat Completions API.
type Completer struct {
	provider string
	apiKey   string
	model    string
	endpoint string
	azure    bool
	client   *http.Client
}

// New creates a completer from a provider config. The azure_openai provider
// addresses a deployment and authenticates with the api-key header.
func New(cfg *config.ProviderConfig) *Completer {
	return newCompleter(cfg, buildEndpoint(cfg))
}

// NewWithEndpoint creates a completer pointing at a custom API endpoint (for testing).
func NewWithEndpoint(cfg *config.ProviderConfig, endpoint string) *Completer {
	return newCompleter(cfg, endpoint)
}

func newCompleter(cfg *config.ProviderConfig, endpoint string) *Completer {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	return &Completer{
		provider: provider,
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		azure:    provider == ProviderAzureOpenAI,
		client:   &http.Client{Timeout: timeout},
	}
}

func buildEndpoint(cfg *config.ProviderConfig) string {
	if cfg.Provider == ProviderAzureOpenAI {
		base := strings.TrimRight(cfg.BaseURL, "/")
		q := url.Values{}
		if cfg.APIVersion != "" {
			q.Set("api-version", cfg.APIVersion)
		}
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s", base, url.PathEscape(cfg.Model), q.Encode())
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/chat/completions"
}

func (c *Completer) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	userContent, err := buildUserContent(req)
	if err != nil {
		return nil, fmt.Errorf("building content blocks: %w", err)
	}

	var messages []map[string]interface{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]interface{}{
			"role":    "system",
			"content": req.SystemPrompt,
		})
	}
	messages = append(messages, map[string]interface{}{
		"role":    "user",
		"content": userContent,
	})

	reqBody := map[string]interface{}{
		"messages": messages,
	}
	if !c.azure {
		reqBody["model"] = c.model
	}
	if req.MaxTokens > 0 {
		reqBody["max_completion_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		reqBody["temperature"] = *req.Temperature
	}
	if rs := req.ResponseSchema; rs != nil {
		jsonSchema := map[string]interface{}{
			"name":   rs.Name,
			"strict": rs.Strict,
			"schema": rs.Schema,
		}
		if rs.Description != "" {
			jsonSchema["description"] = rs.Description
		}
		reqBody["response_format"] = map[string]interface{}{
			"type":        "json_schema",
			"json_schema": jsonSchema,
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.azure {
		httpReq.Header.Set("api-key", c.apiKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling %s API: %w", c.provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, completion.StatusError(c.provider, resp, respBody)
	}

	return c.parseResponse(respBody)
}

// buildUserContent returns a plain string when there is no attachment, and
// a list of content blocks otherwise.
func buildUserContent(req port.CompletionRequest) (interface{}, error) {
	if req.Attachment == nil {
		return req.UserPrompt, nil
	}

	att := req.Attachment
	encoded := base64.StdEncoding.EncodeToString(att.Data)
	dataURI := fmt.Sprintf("data:%s;base64,%s", att.ContentType, encoded)

	var blocks []map[string]interface{}
	switch att.ContentType {
	case "application/pdf":
		filename := att.Filename
		if filename == "" {
			filename = "document.pdf"
		}
		blocks = append(blocks, map[string]interface{}{
			"type": "file",
			"file": map[string]interface{}{
				"filename":  filename,
				"file_data": dataURI,
			},
		})
	case "image/jpeg", "image/png":
		blocks = append(blocks, map[string]interface{}{
			"type": "image_url",
			"image_url": map[string]interface{}{
				"url": dataURI,
			},
		})
	default:
		return nil, fmt.Errorf("unsupported attachment content type: %s", att.ContentType)
	}

	blocks = append(blocks, map[string]interface{}{
		"type": "text",
		"text": req.UserPrompt,
	})
	return blocks, nil
}

// apiResponse models the Chat Completions API response.
type apiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Completer) parseResponse(body []byte) (*port.CompletionResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API: no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return nil, fmt.Errorf("%s: %w", c.provider, completion.ErrTruncated)
	}
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("%s refused the request: %s", c.provider, completion.Truncate(choice.Message.Refusal, 200))
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &port.CompletionResponse{
		Text:     choice.Message.Content,
		Model:    model,
		Provider: c.provider,
	}, nil
}

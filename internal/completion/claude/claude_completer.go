package claude

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"claimsqa/internal/completion"
	"claimsqa/internal/config"
	"claimsqa/internal/port"
)

const (
	apiURL           = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096

	Provider = "claude"
)

func init() {
	completion.RegisterProvider(Provider, func(cfg *config.ProviderConfig) (port.Completer, error) {
		return New(cfg), nil
	})
}

// Completer implements port.Completer using the Anthropic Messages API.
// Structured output is obtained by forcing a single tool call whose input
// schema is the requested response schema.
type Completer struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// New creates a Claude completer from a provider config.
func New(cfg *config.ProviderConfig) *Completer {
	endpoint := apiURL
	if cfg.BaseURL != "" {
		endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages"
	}
	return newCompleter(cfg, endpoint)
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
	return &Completer{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *Completer) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	contentBlocks, err := buildContentBlocks(req)
	if err != nil {
		return nil, fmt.Errorf("building content blocks: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	reqBody := map[string]interface{}{
		"model":      c.model,
		"max_tokens": maxTokens,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": contentBlocks,
			},
		},
	}
	if req.SystemPrompt != "" {
		reqBody["system"] = req.SystemPrompt
	}
	if req.Temperature != nil {
		reqBody["temperature"] = *req.Temperature
	}
	if rs := req.ResponseSchema; rs != nil {
		reqBody["tools"] = []map[string]interface{}{
			{
				"name":         rs.Name,
				"description":  rs.Description,
				"input_schema": rs.Schema,
			},
		}
		reqBody["tool_choice"] = map[string]interface{}{
			"type": "tool",
			"name": rs.Name,
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
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling anthropic API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, completion.StatusError(Provider, resp, respBody)
	}

	return c.parseResponse(respBody, req.ResponseSchema)
}

func buildContentBlocks(req port.CompletionRequest) ([]map[string]interface{}, error) {
	var blocks []map[string]interface{}

	if att := req.Attachment; att != nil {
		encoded := base64.StdEncoding.EncodeToString(att.Data)
		switch att.ContentType {
		case "application/pdf":
			blocks = append(blocks, map[string]interface{}{
				"type": "document",
				"source": map[string]interface{}{
					"type":       "base64",
					"media_type": "application/pdf",
					"data":       encoded,
				},
			})
		case "image/jpeg", "image/png":
			blocks = append(blocks, map[string]interface{}{
				"type": "image",
				"source": map[string]interface{}{
					"type":       "base64",
					"media_type": att.ContentType,
					"data":       encoded,
				},
			})
		default:
			return nil, fmt.Errorf("unsupported attachment content type: %s", att.ContentType)
		}
	}

	blocks = append(blocks, map[string]interface{}{
		"type": "text",
		"text": req.UserPrompt,
	})

	return blocks, nil
}

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *Completer) parseResponse(body []byte, rs *port.ResponseSchema) (*port.CompletionResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	if resp.StopReason == "max_tokens" {
		return nil, fmt.Errorf("%s: %w", Provider, completion.ErrTruncated)
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	out := &port.CompletionResponse{Model: model, Provider: Provider}

	if rs != nil {
		for _, block := range resp.Content {
			if block.Type == "tool_use" && block.Name == rs.Name {
				out.Text = string(block.Input)
				return out, nil
			}
		}
		return nil, fmt.Errorf("anthropic response has no %s tool call", rs.Name)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out.Text = sb.String()
	return out, nil
}

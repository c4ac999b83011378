package gemini

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
	apiBaseURL   = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultModel = "gemini-2.0-flash"

	Provider = "gemini"
)

func init() {
	completion.RegisterProvider(Provider, func(cfg *config.ProviderConfig) (port.Completer, error) {
		return New(cfg), nil
	})
}

// Completer implements port.Completer using Google's Gemini API.
type Completer struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// New creates a Gemini completer.
func New(cfg *config.ProviderConfig) *Completer {
	return newCompleter(cfg, "")
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
	if endpoint == "" {
		base := apiBaseURL
		if cfg.BaseURL != "" {
			base = strings.TrimRight(cfg.BaseURL, "/")
		}
		endpoint = fmt.Sprintf("%s/%s:generateContent", base, model)
	}
	return &Completer{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *Completer) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	prompt := req.UserPrompt
	if rs := req.ResponseSchema; rs != nil {
		schemaJSON, err := json.Marshal(rs.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshaling response schema: %w", err)
		}
		prompt += "\n\nReturn ONLY a JSON object that conforms to this JSON Schema. Include every required field and no other fields.\n" + string(schemaJSON)
	}

	var parts []map[string]interface{}
	if att := req.Attachment; att != nil {
		mimeType, err := toGeminiMimeType(att.ContentType)
		if err != nil {
			return nil, err
		}
		parts = append(parts, map[string]interface{}{
			"inline_data": map[string]interface{}{
				"mime_type": mimeType,
				"data":      base64.StdEncoding.EncodeToString(att.Data),
			},
		})
	}
	parts = append(parts, map[string]interface{}{"text": prompt})

	genConfig := map[string]interface{}{}
	if req.ResponseSchema != nil {
		genConfig["responseMimeType"] = "application/json"
	}
	if req.MaxTokens > 0 {
		genConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		genConfig["temperature"] = *req.Temperature
	}

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": parts,
			},
		},
		"generationConfig": genConfig,
	}
	if req.SystemPrompt != "" {
		reqBody["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{{"text": req.SystemPrompt}},
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
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling gemini API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, completion.StatusError(Provider, resp, respBody)
	}

	return c.parseResponse(respBody)
}

func toGeminiMimeType(contentType string) (string, error) {
	switch contentType {
	case "application/pdf", "image/jpeg", "image/png":
		return contentType, nil
	default:
		return "", fmt.Errorf("unsupported attachment content type: %s", contentType)
	}
}

// geminiResponse models the Gemini API response.
type geminiResponse struct {
	ModelVersion string `json:"modelVersion"`
	Candidates   []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (c *Completer) parseResponse(body []byte) (*port.CompletionResponse, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from API: no candidates")
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == "MAX_TOKENS" {
		return nil, fmt.Errorf("%s: %w", Provider, completion.ErrTruncated)
	}
	if len(cand.Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from API: no parts")
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}

	model := resp.ModelVersion
	if model == "" {
		model = c.model
	}
	return &port.CompletionResponse{
		Text:     sb.String(),
		Model:    model,
		Provider: Provider,
	}, nil
}

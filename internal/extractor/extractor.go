// Package extractor turns a searchable PDF into schema-valid claims JSON.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"claimsqa/internal/config"
	"claimsqa/internal/domain"
	"claimsqa/internal/normalizer"
	"claimsqa/internal/observability"
	"claimsqa/internal/port"
	"claimsqa/internal/prompt"
	"claimsqa/internal/retry"
	"claimsqa/internal/schema"
)

const systemPrompt = "You are an expert at structured data extraction. You will be given unstructured text " +
	"from a Claims document and should convert it into the given structure."

// Result is a validated extraction.
type Result struct {
	Content  json.RawMessage
	Model    string
	Attempts int
}

// Extractor is stateless and safe for concurrent use.
type Extractor struct {
	completer   port.Completer
	registry    *schema.Registry
	prompts     *prompt.Loader
	policy      retry.Policy
	maxAttempts int
	maxTokens   int
}

func New(completer port.Completer, registry *schema.Registry, prompts *prompt.Loader, policy retry.Policy, cfg config.ExtractorConfig) *Extractor {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Extractor{
		completer:   completer,
		registry:    registry,
		prompts:     prompts,
		policy:      policy,
		maxAttempts: maxAttempts,
		maxTokens:   cfg.MaxTokens,
	}
}

// Extract asks the completion service for the claims summary of doc and
// validates it. Output that violates the schema is re-requested up to the
// configured number of attempts and never returned.
func (e *Extractor) Extract(ctx context.Context, doc *normalizer.NormalizedDocument) (*Result, error) {
	userPrompt, err := e.prompts.Render(prompt.ClaimsSummary, nil)
	if err != nil {
		return nil, fmt.Errorf("loading extraction prompt: %w", err)
	}

	logger := observability.LoggerFromContext(ctx)
	req := port.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Attachment: &port.Attachment{
			Filename:    doc.DocumentID + ".pdf",
			ContentType: doc.ContentType,
			Data:        doc.PDF,
		},
		ResponseSchema: &port.ResponseSchema{
			Name:        e.registry.Name(),
			Description: e.registry.Description(),
			Schema:      e.registry.Schema(),
			Strict:      true,
		},
		MaxTokens: e.maxTokens,
	}

	var lastViolation error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		resp, err := e.complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err)
		}

		content, err := e.validate(resp.Text)
		if err == nil {
			logger.Info().
				Str("document_id", doc.DocumentID).
				Str("model", resp.Model).
				Int("attempt", attempt).
				Msg("extractor.Extract: extraction validated")
			return &Result{Content: content, Model: resp.Model, Attempts: attempt}, nil
		}

		var ve *schema.ViolationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		lastViolation = ve
		logger.Warn().
			Str("document_id", doc.DocumentID).
			Int("attempt", attempt).
			Int("problems", len(ve.Problems)).
			Msg("extractor.Extract: output violates schema")

		req.UserPrompt = userPrompt + "\n\n" + correctionNote(ve)
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", domain.ErrExtractionSchemaViolation, e.maxAttempts, lastViolation)
}

func (e *Extractor) complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	var resp *port.CompletionResponse
	err := retry.Do(ctx, e.policy, "extract", func(ctx context.Context) error {
		out, err := e.completer.Complete(ctx, req)
		if err != nil {
			return err
		}
		resp = out
		return nil
	})
	return resp, err
}

// validate checks text against the schema and returns it compacted.
func (e *Extractor) validate(text string) (json.RawMessage, error) {
	raw := []byte(StripCodeFences(text))
	if err := e.registry.Validate(raw); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("compacting extraction: %w", err)
	}
	return buf.Bytes(), nil
}

// StripCodeFences removes a Markdown code fence wrapped around a JSON payload.
func StripCodeFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = strings.TrimPrefix(t, "json")
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func correctionNote(ve *schema.ViolationError) string {
	var sb strings.Builder
	sb.WriteString("Your previous answer did not match the required JSON schema:\n")
	for i, p := range ve.Problems {
		if i == 10 {
			fmt.Fprintf(&sb, "- and %d more\n", len(ve.Problems)-i)
			break
		}
		loc := p.Location
		if loc == "" {
			loc = "/"
		}
		fmt.Fprintf(&sb, "- %s: %s\n", loc, p.Message)
	}
	sb.WriteString("Return the complete corrected JSON object only.")
	return sb.String()
}

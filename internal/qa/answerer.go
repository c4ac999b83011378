// Package qa answers free-text questions from a stored extraction.
package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"claimsqa/internal/config"
	"claimsqa/internal/domain"
	"claimsqa/internal/observability"
	"claimsqa/internal/port"
	"claimsqa/internal/prompt"
	"claimsqa/internal/retry"
)

const systemPrompt = "You are an expert at structured data question answering. You will be given a structured " +
	"extract from a Claims document and should answer the question based on that extract."

// Answerer is stateless; it never persists the exchange.
type Answerer struct {
	store       port.DocumentStore
	completer   port.Completer
	prompts     *prompt.Loader
	policy      retry.Policy
	temperature float64
	maxTokens   int
}

func New(store port.DocumentStore, completer port.Completer, prompts *prompt.Loader, policy retry.Policy, cfg config.QAConfig) *Answerer {
	return &Answerer{
		store:       store,
		completer:   completer,
		prompts:     prompts,
		policy:      policy,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Ask answers question using only the extraction stored for documentID.
func (a *Answerer) Ask(ctx context.Context, documentID, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrInvalidQuestion
	}

	rec, err := a.store.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	userPrompt, err := a.buildPrompt(rec.Content, question)
	if err != nil {
		return nil, err
	}

	temp := a.temperature
	req := port.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  &temp,
		MaxTokens:    a.maxTokens,
	}

	var resp *port.CompletionResponse
	err = retry.Do(ctx, a.policy, "ask", func(ctx context.Context) error {
		out, err := a.completer.Complete(ctx, req)
		if err != nil {
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err)
	}

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return nil, fmt.Errorf("%w: empty answer", domain.ErrCompletionFailed)
	}

	observability.LoggerFromContext(ctx).Info().
		Str("document_id", documentID).
		Str("model", resp.Model).
		Msg("qa.Ask: question answered")

	return &domain.Answer{DocumentID: documentID, Answer: answer, Model: resp.Model}, nil
}

// buildPrompt renders the qna template followed by the indented extraction
// and the question.
func (a *Answerer) buildPrompt(content json.RawMessage, question string) (string, error) {
	tmpl, err := a.prompts.Render(prompt.QnA, nil)
	if err != nil {
		return "", fmt.Errorf("loading qa prompt: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("decoding stored extraction: %w", err)
	}
	indented, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding stored extraction: %w", err)
	}

	return tmpl + "\n\nDocument Content:\n" + string(indented) + "\n\nQuestion:\n" + question, nil
}

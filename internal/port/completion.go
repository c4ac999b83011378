package port

import "context"

// Attachment is a binary document sent alongside a prompt.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ResponseSchema constrains the completion to JSON matching Schema.
type ResponseSchema struct {
	Name        string
	Description string
	Schema      map[string]any
	Strict      bool
}

// CompletionRequest carries the data needed for one completion call.
type CompletionRequest struct {
	SystemPrompt   string
	UserPrompt     string
	Attachment     *Attachment
	ResponseSchema *ResponseSchema
	Temperature    *float64
	MaxTokens      int
}

// CompletionResponse is the generated text and the model that produced it.
type CompletionResponse struct {
	Text     string
	Model    string
	Provider string
}

// Completer abstracts a large-language-model completion service.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

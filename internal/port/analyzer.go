package port

import "context"

// AnalyzeInput carries a raw uploaded document to the analysis service.
type AnalyzeInput struct {
	DocumentID  string
	FileBytes   []byte
	ContentType string
}

// AnalyzeOutput is the searchable rendition of a document plus recognized text.
type AnalyzeOutput struct {
	SearchablePDF []byte
	Content       string
	PageCount     int
	ModelID       string
	OperationID   string
}

// DocumentAnalyzer abstracts the external OCR / document-analysis service.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, input AnalyzeInput) (*AnalyzeOutput, error)
}

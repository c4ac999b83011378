// Package normalizer turns an uploaded scan into a searchable PDF artifact.
package normalizer

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"claimsqa/internal/domain"
	"claimsqa/internal/observability"
	"claimsqa/internal/port"
	"claimsqa/internal/retry"
)

// NormalizeInput is one uploaded document.
type NormalizeInput struct {
	DocumentID  string
	Bytes       []byte
	ContentType string
}

// NormalizedDocument is the searchable PDF produced for a document.
type NormalizedDocument struct {
	DocumentID  string
	ArtifactKey string
	Location    string
	ContentType string
	PDF         []byte
	Text        string
	PageCount   int
}

// Normalizer is stateless apart from its collaborators and safe for concurrent use.
type Normalizer struct {
	analyzer  port.DocumentAnalyzer
	storage   port.ObjectStorage
	policy    retry.Policy
	keyPrefix string
}

func New(analyzer port.DocumentAnalyzer, storage port.ObjectStorage, policy retry.Policy, keyPrefix string) *Normalizer {
	return &Normalizer{
		analyzer:  analyzer,
		storage:   storage,
		policy:    policy,
		keyPrefix: keyPrefix,
	}
}

// ArtifactKey returns the storage key of the searchable PDF for documentID.
func (n *Normalizer) ArtifactKey(documentID string) string {
	key := documentID + ".pdf"
	if n.keyPrefix != "" {
		key = path.Join(n.keyPrefix, key)
	}
	return key
}

// Normalize validates the media type, runs document analysis and persists
// the searchable PDF. The media type is checked before any external call.
func (n *Normalizer) Normalize(ctx context.Context, in NormalizeInput) (*NormalizedDocument, error) {
	mt, err := domain.ParseMediaType(in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("content type %q: %w", in.ContentType, err)
	}
	if len(in.Bytes) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	logger := observability.LoggerFromContext(ctx)

	var analyzed *port.AnalyzeOutput
	err = retry.Do(ctx, n.policy, "analyze", func(ctx context.Context) error {
		out, err := n.analyzer.Analyze(ctx, port.AnalyzeInput{
			DocumentID:  in.DocumentID,
			FileBytes:   in.Bytes,
			ContentType: string(mt.Canonical()),
		})
		if err != nil {
			return err
		}
		analyzed = out
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Str("document_id", in.DocumentID).Msg("normalizer.Normalize: analysis failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrNormalizationFailed, err)
	}
	if len(analyzed.SearchablePDF) == 0 {
		return nil, fmt.Errorf("%w: analyzer returned no pdf", domain.ErrNormalizationFailed)
	}

	key := n.ArtifactKey(in.DocumentID)
	uploaded, err := n.storage.Upload(ctx, port.UploadInput{
		Key:         key,
		Body:        bytes.NewReader(analyzed.SearchablePDF),
		ContentType: string(domain.MediaTypePDF),
		Size:        int64(len(analyzed.SearchablePDF)),
	})
	if err != nil {
		logger.Error().Err(err).Str("document_id", in.DocumentID).Str("key", key).Msg("normalizer.Normalize: storing artifact failed")
		return nil, fmt.Errorf("%w: storing artifact: %w", domain.ErrNormalizationFailed, err)
	}

	logger.Info().
		Str("document_id", in.DocumentID).
		Str("key", key).
		Int("pages", analyzed.PageCount).
		Msg("normalizer.Normalize: searchable pdf stored")

	return &NormalizedDocument{
		DocumentID:  in.DocumentID,
		ArtifactKey: key,
		Location:    uploaded.Location,
		ContentType: string(domain.MediaTypePDF),
		PDF:         analyzed.SearchablePDF,
		Text:        analyzed.Content,
		PageCount:   analyzed.PageCount,
	}, nil
}

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"claimsqa/internal/config"
	"claimsqa/internal/csvexport"
	"claimsqa/internal/domain"
	"claimsqa/internal/export"
	"claimsqa/internal/extractor"
	"claimsqa/internal/normalizer"
	"claimsqa/internal/observability"
	"claimsqa/internal/port"
)

const defaultMaxFileSize = 50 << 20

// Extraction outcomes reported to the extraction counter.
const (
	OutcomeSuccess         = "success"
	OutcomeRejected        = "rejected"
	OutcomeNormalizeFailed = "normalize_failed"
	OutcomeSchemaViolation = "schema_violation"
	OutcomeExtractFailed   = "extract_failed"
	OutcomeStoreFailed     = "store_failed"
)

// ExtractInput is the DTO for one uploaded document.
type ExtractInput struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AskInput is the DTO for a question about a stored document.
type AskInput struct {
	DocumentID string
	Question   string
}

// Normalizer produces the searchable PDF for an upload.
type Normalizer interface {
	Normalize(ctx context.Context, in normalizer.NormalizeInput) (*normalizer.NormalizedDocument, error)
}

// Extractor produces schema-valid content for a normalized document.
type Extractor interface {
	Extract(ctx context.Context, doc *normalizer.NormalizedDocument) (*extractor.Result, error)
}

// Answerer answers questions from a stored extraction.
type Answerer interface {
	Ask(ctx context.Context, documentID, question string) (*domain.Answer, error)
}

// ClaimsService defines the claims intake and question answering contract.
type ClaimsService interface {
	Extract(ctx context.Context, input *ExtractInput) (*domain.ExtractionRecord, error)
	History(ctx context.Context) ([]domain.ExtractionRecord, error)
	Get(ctx context.Context, documentID string) (*domain.ExtractionRecord, error)
	Ask(ctx context.Context, input *AskInput) (*domain.Answer, error)
	ExportWorkbook(ctx context.Context, documentID string, w io.Writer) error
	ExportHistoryCSV(ctx context.Context, w io.Writer) error
	DownloadArtifact(ctx context.Context, documentID string) (*Artifact, error)
}

// Artifact is the searchable PDF stored for a document.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

type claimsService struct {
	normalizer    Normalizer
	extractor     Extractor
	answerer      Answerer
	store         port.DocumentStore
	artifacts     port.ObjectStorage
	metrics       *observability.Metrics
	sem           *semaphore.Weighted
	timeout       time.Duration
	maxFileSize   int64
	schemaVersion string
	newID         func() string
}

// NewClaimsService creates a new ClaimsService implementation. metrics may be nil.
func NewClaimsService(
	norm Normalizer,
	ext Extractor,
	answerer Answerer,
	store port.DocumentStore,
	artifacts port.ObjectStorage,
	metrics *observability.Metrics,
	cfg config.PipelineConfig,
	schemaVersion string,
) ClaimsService {
	maxConcurrent := int64(cfg.MaxConcurrent)
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	maxFileSize := cfg.MaxFileSizeMB << 20
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &claimsService{
		normalizer:    norm,
		extractor:     ext,
		answerer:      answerer,
		store:         store,
		artifacts:     artifacts,
		metrics:       metrics,
		sem:           semaphore.NewWeighted(maxConcurrent),
		timeout:       cfg.Timeout,
		maxFileSize:   maxFileSize,
		schemaVersion: schemaVersion,
		newID:         func() string { return uuid.New().String() },
	}
}

// Extract runs upload -> normalize -> extract -> store for one document.
// Nothing is stored unless every stage succeeds.
func (s *claimsService) Extract(ctx context.Context, input *ExtractInput) (*domain.ExtractionRecord, error) {
	mt, err := domain.ParseMediaType(input.ContentType)
	if err != nil {
		s.metrics.RecordExtraction(ctx, OutcomeRejected)
		return nil, fmt.Errorf("content type %q: %w", input.ContentType, err)
	}
	if input.Size > s.maxFileSize {
		s.metrics.RecordExtraction(ctx, OutcomeRejected)
		return nil, domain.ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(input.Body, s.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > s.maxFileSize {
		s.metrics.RecordExtraction(ctx, OutcomeRejected)
		return nil, domain.ErrFileTooLarge
	}
	if len(data) == 0 {
		s.metrics.RecordExtraction(ctx, OutcomeRejected)
		return nil, domain.ErrEmptyDocument
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for pipeline slot: %w", err)
	}
	defer s.sem.Release(1)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	documentID := s.newID()
	ctx, span := observability.StartSpan(ctx, "ClaimsService.Extract",
		attribute.String("document.id", documentID),
		attribute.String("document.content_type", string(mt.Canonical())),
		attribute.Int("document.size", len(data)),
	)
	defer span.End()

	logger := observability.LoggerFromContext(ctx)
	logger.Info().
		Str("document_id", documentID).
		Str("file_name", input.FileName).
		Str("content_type", string(mt)).
		Int("size", len(data)).
		Msg("claimsService.Extract: pipeline started")

	var normalized *normalizer.NormalizedDocument
	err = s.stage(ctx, "normalize", func(ctx context.Context) error {
		var err error
		normalized, err = s.normalizer.Normalize(ctx, normalizer.NormalizeInput{
			DocumentID:  documentID,
			Bytes:       data,
			ContentType: string(mt),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, span, OutcomeNormalizeFailed, documentID, err)
	}

	var result *extractor.Result
	err = s.stage(ctx, "extract", func(ctx context.Context) error {
		var err error
		result, err = s.extractor.Extract(ctx, normalized)
		return err
	})
	if err != nil {
		outcome := OutcomeExtractFailed
		if errors.Is(err, domain.ErrExtractionSchemaViolation) {
			outcome = OutcomeSchemaViolation
		}
		s.discardArtifact(ctx, normalized.ArtifactKey)
		return nil, s.fail(ctx, span, outcome, documentID, err)
	}

	rec := &domain.ExtractionRecord{
		DocumentID:    documentID,
		Content:       result.Content,
		SchemaVersion: s.schemaVersion,
		Model:         result.Model,
		ContentType:   string(mt.Canonical()),
		OriginalName:  input.FileName,
		ArtifactKey:   normalized.ArtifactKey,
		CreatedAt:     time.Now().UTC(),
	}
	err = s.stage(ctx, "store", func(ctx context.Context) error {
		return s.store.Put(ctx, rec)
	})
	if err != nil {
		s.discardArtifact(ctx, normalized.ArtifactKey)
		return nil, s.fail(ctx, span, OutcomeStoreFailed, documentID, err)
	}

	s.metrics.RecordExtraction(ctx, OutcomeSuccess)
	logger.Info().
		Str("document_id", documentID).
		Str("model", rec.Model).
		Int("attempts", result.Attempts).
		Msg("claimsService.Extract: extraction stored")
	return rec, nil
}

// stage runs fn in a child span and records its duration.
func (s *claimsService) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "ClaimsService."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	s.metrics.RecordStage(ctx, name, time.Since(start), err)
	observability.RecordError(span, err)
	return err
}

func (s *claimsService) fail(ctx context.Context, span trace.Span, outcome, documentID string, err error) error {
	s.metrics.RecordExtraction(ctx, outcome)
	observability.RecordError(span, err)
	observability.LoggerFromContext(ctx).Error().
		Err(err).
		Str("document_id", documentID).
		Str("outcome", outcome).
		Msg("claimsService.Extract: pipeline failed")
	return err
}

// discardArtifact removes the artifact of a run that did not produce a
// stored record. It must outlive a pipeline deadline that has already fired.
func (s *claimsService) discardArtifact(ctx context.Context, key string) {
	if s.artifacts == nil || key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.artifacts.Delete(ctx, key); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("claimsService.Extract: discarding artifact failed")
	}
}

// History returns every stored extraction ordered by creation time.
func (s *claimsService) History(ctx context.Context) ([]domain.ExtractionRecord, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("claimsService.History: %w", err)
	}
	return records, nil
}

func (s *claimsService) Get(ctx context.Context, documentID string) (*domain.ExtractionRecord, error) {
	return s.store.Get(ctx, documentID)
}

func (s *claimsService) Ask(ctx context.Context, input *AskInput) (*domain.Answer, error) {
	ctx, span := observability.StartSpan(ctx, "ClaimsService.Ask", attribute.String("document.id", input.DocumentID))
	defer span.End()

	start := time.Now()
	answer, err := s.answerer.Ask(ctx, input.DocumentID, input.Question)
	s.metrics.RecordStage(ctx, "ask", time.Since(start), err)
	observability.RecordError(span, err)
	return answer, err
}

// ExportWorkbook writes the XLSX rendition of one stored extraction to w.
func (s *claimsService) ExportWorkbook(ctx context.Context, documentID string, w io.Writer) error {
	rec, err := s.store.Get(ctx, documentID)
	if err != nil {
		return err
	}
	// Render fully before writing so a failure never leaves a partial body.
	var buf bytes.Buffer
	if err := export.WriteWorkbook(&buf, rec); err != nil {
		return fmt.Errorf("claimsService.ExportWorkbook: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// ExportHistoryCSV writes a BOM-prefixed CSV summary of every stored extraction to w.
func (s *claimsService) ExportHistoryCSV(ctx context.Context, w io.Writer) error {
	records, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("claimsService.ExportHistoryCSV: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(csvexport.BOM)
	cw := csvexport.NewWriter(&buf)
	if err := cw.WriteHeader(); err != nil {
		return err
	}
	if err := cw.WriteRecords(records); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

// DownloadArtifact returns the searchable PDF produced for a stored document.
func (s *claimsService) DownloadArtifact(ctx context.Context, documentID string) (*Artifact, error) {
	rec, err := s.store.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if rec.ArtifactKey == "" || s.artifacts == nil {
		return nil, domain.ErrArtifactNotFound
	}
	data, err := s.artifacts.Download(ctx, rec.ArtifactKey)
	if err != nil {
		return nil, fmt.Errorf("claimsService.DownloadArtifact: %w", err)
	}
	base := csvexport.SanitizeFilename(strings.TrimSuffix(rec.OriginalName, path.Ext(rec.OriginalName)))
	if base == "" {
		base = rec.DocumentID
	}
	return &Artifact{
		FileName:    base + "_searchable.pdf",
		ContentType: string(domain.MediaTypePDF),
		Data:        data,
	}, nil
}

package normalizer_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"claimsqa/internal/domain"
	"claimsqa/internal/normalizer"
	"claimsqa/internal/port"
	"claimsqa/internal/retry"
	"claimsqa/mocks"
)

var fastRetry = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxElapsed: time.Second}

func analyzed() *port.AnalyzeOutput {
	return &port.AnalyzeOutput{SearchablePDF: []byte("%PDF-1.7"), Content: "text", PageCount: 1, ModelID: "prebuilt-read", OperationID: "op"}
}

func TestNormalize_Success(t *testing.T) {
	analyzer := new(mocks.MockDocumentAnalyzer)
	storage := new(mocks.MockObjectStorage)

	analyzer.On("Analyze", mock.Anything, port.AnalyzeInput{
		DocumentID: "doc-1", FileBytes: []byte("jpeg"), ContentType: "image/jpeg",
	}).Return(analyzed(), nil)
	storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Key == "searchable/doc-1.pdf" && in.ContentType == "application/pdf" && in.Size == 8
	})).Return(&port.UploadOutput{Location: "file:///tmp/searchable/doc-1.pdf"}, nil)

	n := normalizer.New(analyzer, storage, fastRetry, "searchable")

	doc, err := n.Normalize(context.Background(), normalizer.NormalizeInput{
		DocumentID: "doc-1", Bytes: []byte("jpeg"), ContentType: "image/jpg",
	})

	require.NoError(t, err)
	assert.Equal(t, "searchable/doc-1.pdf", doc.ArtifactKey)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, []byte("%PDF-1.7"), doc.PDF)
	assert.Equal(t, "file:///tmp/searchable/doc-1.pdf", doc.Location)
	analyzer.AssertExpectations(t)
	storage.AssertExpectations(t)
}

func TestNormalize_RejectsBeforeExternalCalls(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		wantErr     error
	}{
		{"gif", "image/gif", []byte("GIF89a"), domain.ErrInvalidMediaType},
		{"text", "text/plain", []byte("hello"), domain.ErrInvalidMediaType},
		{"empty pdf", "application/pdf", nil, domain.ErrEmptyDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := new(mocks.MockDocumentAnalyzer)
			storage := new(mocks.MockObjectStorage)
			n := normalizer.New(analyzer, storage, fastRetry, "")

			_, err := n.Normalize(context.Background(), normalizer.NormalizeInput{
				DocumentID: "d", Bytes: tt.body, ContentType: tt.contentType,
			})

			assert.ErrorIs(t, err, tt.wantErr)
			analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
			storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
		})
	}
}

func TestNormalize_RetriesTransientAnalyzerErrors(t *testing.T) {
	analyzer := new(mocks.MockDocumentAnalyzer)
	storage := new(mocks.MockObjectStorage)

	analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, &domain.UpstreamError{Service: "ocr", StatusCode: http.StatusServiceUnavailable}).Once()
	analyzer.On("Analyze", mock.Anything, mock.Anything).Return(analyzed(), nil).Once()
	storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{Location: "loc"}, nil)

	n := normalizer.New(analyzer, storage, fastRetry, "")

	doc, err := n.Normalize(context.Background(), normalizer.NormalizeInput{DocumentID: "d", Bytes: []byte("%PDF"), ContentType: "application/pdf"})

	require.NoError(t, err)
	assert.Equal(t, "d.pdf", doc.ArtifactKey)
	analyzer.AssertNumberOfCalls(t, "Analyze", 2)
}

func TestNormalize_AnalyzerFailure(t *testing.T) {
	analyzer := new(mocks.MockDocumentAnalyzer)
	storage := new(mocks.MockObjectStorage)

	analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, &domain.UpstreamError{Service: "ocr", StatusCode: http.StatusUnauthorized})

	n := normalizer.New(analyzer, storage, fastRetry, "")

	_, err := n.Normalize(context.Background(), normalizer.NormalizeInput{DocumentID: "d", Bytes: []byte("x"), ContentType: "image/png"})

	assert.ErrorIs(t, err, domain.ErrNormalizationFailed)
	var up *domain.UpstreamError
	assert.True(t, errors.As(err, &up))
	analyzer.AssertNumberOfCalls(t, "Analyze", 1)
	storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestNormalize_ThrottledAnalyzerSurfacesRateLimit(t *testing.T) {
	analyzer := new(mocks.MockDocumentAnalyzer)
	storage := new(mocks.MockObjectStorage)

	analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, &domain.UpstreamError{Service: "ocr", StatusCode: http.StatusTooManyRequests})

	n := normalizer.New(analyzer, storage, fastRetry, "")

	_, err := n.Normalize(context.Background(), normalizer.NormalizeInput{DocumentID: "d", Bytes: []byte("x"), ContentType: "image/png"})

	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimited)
	analyzer.AssertNumberOfCalls(t, "Analyze", 3)
}

func TestNormalize_StorageFailure(t *testing.T) {
	analyzer := new(mocks.MockDocumentAnalyzer)
	storage := new(mocks.MockObjectStorage)

	analyzer.On("Analyze", mock.Anything, mock.Anything).Return(analyzed(), nil)
	storage.On("Upload", mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

	n := normalizer.New(analyzer, storage, fastRetry, "")

	_, err := n.Normalize(context.Background(), normalizer.NormalizeInput{DocumentID: "d", Bytes: []byte("x"), ContentType: "application/pdf"})

	assert.ErrorIs(t, err, domain.ErrNormalizationFailed)
	assert.Contains(t, err.Error(), "disk full")
}

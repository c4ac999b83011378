package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"claimsqa/internal/domain"
	"claimsqa/internal/service"
)

// MockClaimsService is a mock implementation of service.ClaimsService.
type MockClaimsService struct {
	mock.Mock
}

func (m *MockClaimsService) Extract(ctx context.Context, input *service.ExtractInput) (*domain.ExtractionRecord, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionRecord), args.Error(1)
}

func (m *MockClaimsService) History(ctx context.Context) ([]domain.ExtractionRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExtractionRecord), args.Error(1)
}

func (m *MockClaimsService) Get(ctx context.Context, documentID string) (*domain.ExtractionRecord, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionRecord), args.Error(1)
}

func (m *MockClaimsService) Ask(ctx context.Context, input *service.AskInput) (*domain.Answer, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Answer), args.Error(1)
}

func (m *MockClaimsService) ExportWorkbook(ctx context.Context, documentID string, w io.Writer) error {
	args := m.Called(ctx, documentID, w)
	return args.Error(0)
}

func (m *MockClaimsService) ExportHistoryCSV(ctx context.Context, w io.Writer) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockClaimsService) DownloadArtifact(ctx context.Context, documentID string) (*service.Artifact, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Artifact), args.Error(1)
}

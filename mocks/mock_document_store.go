package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"claimsqa/internal/domain"
)

// MockDocumentStore is a mock implementation of port.DocumentStore.
type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) Put(ctx context.Context, rec *domain.ExtractionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDocumentStore) Get(ctx context.Context, documentID string) (*domain.ExtractionRecord, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionRecord), args.Error(1)
}

func (m *MockDocumentStore) List(ctx context.Context) ([]domain.ExtractionRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExtractionRecord), args.Error(1)
}

func (m *MockDocumentStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

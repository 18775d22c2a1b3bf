package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zjrosen/mdata/internal/store"
)

// MockStore is a testify mock of store.Store.
type MockStore struct {
	mock.Mock
}

// Ensure MockStore implements store.Store.
var _ store.Store = (*MockStore)(nil)

// NewMockStore creates a MockStore whose expectations are asserted at test cleanup.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	m := &MockStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockStore) Get(ctx context.Context, url string, params any, opts *store.Options) (any, error) {
	args := m.Called(ctx, url, params, opts)
	return args.Get(0), args.Error(1)
}

func (m *MockStore) Post(ctx context.Context, url string, body map[string]any, opts *store.Options) (any, error) {
	args := m.Called(ctx, url, body, opts)
	return args.Get(0), args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, url string, body map[string]any, opts *store.Options) (any, error) {
	args := m.Called(ctx, url, body, opts)
	return args.Get(0), args.Error(1)
}

func (m *MockStore) Destroy(ctx context.Context, url string, params any, opts *store.Options) error {
	args := m.Called(ctx, url, params, opts)
	return args.Error(0)
}

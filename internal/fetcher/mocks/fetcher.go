// Package mocks holds testify mocks of the fetcher interfaces.
package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockFetcher is a testify mock of fetcher.Fetcher.
type MockFetcher struct {
	mock.Mock
}

// NewMockFetcher creates a MockFetcher that asserts its expectations when t
// finishes.
func NewMockFetcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockFetcher {
	m := &MockFetcher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockFetcher) Download(ctx context.Context, src string) (io.ReadCloser, error) {
	args := m.Called(ctx, src)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *MockFetcher) DownloadToFile(ctx context.Context, src string, path string) (int64, error) {
	args := m.Called(ctx, src, path)
	return args.Get(0).(int64), args.Error(1)
}

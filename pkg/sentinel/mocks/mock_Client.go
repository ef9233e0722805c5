// Package mocks provides test doubles for the sentinel client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// FetchImage provides a mock function with given fields: ctx, bbox, dateRange
func (_m *MockClient) FetchImage(ctx context.Context, bbox [4]float64, dateRange string) (string, error) {
	ret := _m.Called(ctx, bbox, dateRange)

	if len(ret) == 0 {
		panic("no return value specified for FetchImage")
	}

	if rf, ok := ret.Get(0).(func(context.Context, [4]float64, string) (string, error)); ok {
		return rf(ctx, bbox, dateRange)
	}
	return ret.String(0), ret.Error(1)
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}

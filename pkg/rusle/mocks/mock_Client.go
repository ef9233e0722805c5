// Package mocks provides test doubles for the rusle client.
package mocks

import (
	"context"
	"encoding/json"

	mock "github.com/stretchr/testify/mock"

	"github.com/sells-group/erosion-api/internal/model"
	rusle "github.com/sells-group/erosion-api/pkg/rusle"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Compute provides a mock function with given fields: ctx, geojson, opts
func (_m *MockClient) Compute(ctx context.Context, geojson json.RawMessage, opts rusle.ComputeOptions) (*model.ComputeResult, error) {
	ret := _m.Called(ctx, geojson, opts)

	if len(ret) == 0 {
		panic("no return value specified for Compute")
	}

	if rf, ok := ret.Get(0).(func(context.Context, json.RawMessage, rusle.ComputeOptions) (*model.ComputeResult, error)); ok {
		return rf(ctx, geojson, opts)
	}

	var r0 *model.ComputeResult
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.ComputeResult)
	}
	return r0, ret.Error(1)
}

// Hotspots provides a mock function with given fields: ctx, geojson, thresholdTHaYr
func (_m *MockClient) Hotspots(ctx context.Context, geojson json.RawMessage, thresholdTHaYr float64) model.HotspotResult {
	ret := _m.Called(ctx, geojson, thresholdTHaYr)

	if len(ret) == 0 {
		panic("no return value specified for Hotspots")
	}

	if rf, ok := ret.Get(0).(func(context.Context, json.RawMessage, float64) model.HotspotResult); ok {
		return rf(ctx, geojson, thresholdTHaYr)
	}
	return ret.Get(0).(model.HotspotResult)
}

// Health provides a mock function with given fields: ctx
func (_m *MockClient) Health(ctx context.Context) (*rusle.HealthStatus, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Health")
	}

	var r0 *rusle.HealthStatus
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*rusle.HealthStatus)
	}
	return r0, ret.Error(1)
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

//go:build !integration

package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunValidate_Square(t *testing.T) {
	cmd, out := testCommand()
	data := []byte(`{"coordinates": [
		{"longitude": 0, "latitude": 0},
		{"longitude": 0.1, "latitude": 0},
		{"longitude": 0.1, "latitude": 0.1},
		{"longitude": 0, "latitude": 0.1}
	]}`)

	require.NoError(t, runValidate(cmd, testConfig().Validation, data))

	var got validateOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.True(t, got.Validation.Valid)
	assert.Equal(t, 5, got.Validation.NumVertices)
	assert.InDelta(t, 123.09, got.Validation.AreaKm2, 0.05)
	assert.Greater(t, got.Region.AreaKm2, got.Validation.AreaKm2)
	assert.InDelta(t, 0.01, got.Region.BufferAppliedDeg, 1e-12)
	assert.Equal(t, "EPSG:4326", got.Region.CRS)
}

func TestRunValidate_Rejected(t *testing.T) {
	cmd, out := testCommand()
	data := []byte(`{"coordinates": [
		{"longitude": 0, "latitude": 0},
		{"longitude": 0.1, "latitude": 0},
		{"longitude": 0.2, "latitude": 0}
	]}`)

	err := runValidate(cmd, testConfig().Validation, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Polygon has no area")
	assert.Empty(t, out.String())
}

func TestRunValidate_BadJSON(t *testing.T) {
	cmd, _ := testCommand()
	err := runValidate(cmd, testConfig().Validation, []byte(`[1, 2`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse polygon file")
}

func TestRunValidateBBox(t *testing.T) {
	cmd, out := testCommand()
	require.NoError(t, runValidateBBox(cmd, []float64{-1, -1, 1, 1}))
	assert.Equal(t, "bbox [-1 -1 1 1] is valid\n", out.String())

	cmd, _ = testCommand()
	err := runValidateBBox(cmd, []float64{1, 0, 1, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bbox minx (1) must be less than maxx (1)")
}

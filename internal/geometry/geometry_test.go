package geometry

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func unitSquare() []geom.Coord {
	return Coords([][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}})
}

func TestGeodesicArea(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ring  [][2]float64
		want  float64 // km²
		delta float64
	}{
		{"one degree at equator", [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}, 12308.78, 0.5},
		{"open ring", [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}, 12308.78, 0.5},
		{"clockwise", [][2]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}}, 12308.78, 0.5},
		{"tenth of a degree", [][2]float64{{0, 0}, {0.1, 0}, {0.1, 0.1}, {0, 0.1}}, 123.0907, 0.01},
		{"tiny", [][2]float64{{0, 0}, {0.0005, 0}, {0.0005, 0.0005}, {0, 0.0005}}, 0.0030773, 1e-6},
		{"mid latitude", [][2]float64{{10, 45}, {11, 45}, {11, 46}, {10, 46}}, 8686.38, 0.5},
		{"across antimeridian", [][2]float64{{179.5, 0}, {-179.5, 0}, {-179.5, 1}, {179.5, 1}}, 12308.78, 0.5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := GeodesicArea(Coords(tc.ring)) / 1e6
			assert.InDelta(t, tc.want, got, tc.delta)
		})
	}
}

func TestGeodesicAreaNearPlanarApproximation(t *testing.T) {
	t.Parallel()
	planar := 111.32 * 111.32
	got := GeodesicArea(unitSquare()) / 1e6
	assert.InEpsilon(t, planar, got, 0.10)
}

func TestGeodesicAreaDegenerate(t *testing.T) {
	t.Parallel()
	assert.Zero(t, GeodesicArea(Coords([][2]float64{{0, 0}, {1, 1}})))
	assert.Zero(t, GeodesicArea(nil))
}

func TestGeodesicDistance(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 111319.49, GeodesicDistance(0, 0, 1, 0), 0.1)
	assert.InDelta(t, 110574.39, GeodesicDistance(0, 0, 0, 1), 0.1)
	assert.Zero(t, GeodesicDistance(5, 5, 5, 5))
	assert.InDelta(t, GeodesicDistance(179.5, 0, -179.5, 0), GeodesicDistance(0, 0, 1, 0), 0.01)

	// Nearly antipodal points fall back to the spherical formula.
	d := GeodesicDistance(0, 0, 179.7, 0.5)
	assert.Greater(t, d, 19_000_000.0)
	assert.False(t, math.IsNaN(d))
}

func TestGeodesicPerimeter(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 443.771, GeodesicPerimeter(unitSquare())/1000, 0.01)
}

func TestSignedAreaOrientation(t *testing.T) {
	t.Parallel()
	ccw := unitSquare()
	assert.InDelta(t, 1.0, SignedArea(ccw), 1e-12)
	assert.InDelta(t, -1.0, SignedArea(reversed(ccw)), 1e-12)
}

func TestDedupeAndDuplicates(t *testing.T) {
	t.Parallel()
	ring := Coords([][2]float64{{0, 0}, {1, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 1}, {0, 0}})
	assert.Equal(t, []int{1, 4}, DuplicateIndexes(ring))
	assert.Len(t, Dedupe(ring), 4)
	assert.Empty(t, DuplicateIndexes(unitSquare()))
}

func TestIsCollinear(t *testing.T) {
	t.Parallel()
	assert.True(t, IsCollinear(Coords([][2]float64{{0, 0}, {1, 1}, {2, 2}, {0, 0}})))
	assert.True(t, IsCollinear(Coords([][2]float64{{3, 3}, {3, 3}, {3, 3}})))
	assert.False(t, IsCollinear(unitSquare()))
}

func TestCentroidAndBounds(t *testing.T) {
	t.Parallel()
	// L-shape: the area centroid differs from the vertex average.
	ring := Coords([][2]float64{{0, 0}, {2, 0}, {2, 1}, {1, 1}, {1, 2}, {0, 2}, {0, 0}})
	c, err := Centroid(ring)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/6.0, c[0], 1e-9)
	assert.InDelta(t, 5.0/6.0, c[1], 1e-9)

	assert.Equal(t, [4]float64{0, 0, 2, 2}, Bounds(ring))
}

func TestUnwrap(t *testing.T) {
	t.Parallel()

	ring := Coords([][2]float64{{179.5, 0}, {-179.5, 0}, {-179.5, 1}, {179.5, 1}, {179.5, 0}})
	assert.True(t, CrossesAntimeridian(ring))
	out, shifted := Unwrap(ring)
	require.True(t, shifted)
	assert.InDelta(t, 180.5, out[1][0], 1e-12)
	assert.InDelta(t, 179.5, out[0][0], 1e-12)
	assert.InDelta(t, -179.5, ring[1][0], 1e-12, "input must not be modified")

	b := Bounds(out)
	assert.Equal(t, [4]float64{179.5, 0, -179.5, 1}, WrappedBounds(b))

	same, shifted := Unwrap(unitSquare())
	assert.False(t, shifted)
	assert.Equal(t, unitSquare(), same)
}

func TestNormalizeLongitude(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.0, NormalizeLongitude(0), 1e-12)
	assert.InDelta(t, 180.0, NormalizeLongitude(180), 1e-12)
	assert.InDelta(t, -179.5, NormalizeLongitude(180.5), 1e-12)
	assert.InDelta(t, 170.0, NormalizeLongitude(-190), 1e-12)
}

func TestRound(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.2346, Round(1.23456, 4), 1e-12)
	assert.InDelta(t, 12308.78, Round(12308.776, 2), 1e-9)
}

func TestCheckSimple(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ring   [][2]float64
		simple bool
		reason string
	}{
		{"square", [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}, true, ""},
		{"collinear extra vertex", [][2]float64{{0, 0}, {1, 0}, {2, 0}, {2, 2}, {0, 2}}, true, ""},
		{"duplicate vertex", [][2]float64{{0, 0}, {1, 0}, {1, 0}, {1, 1}, {0, 1}}, true, ""},
		{"bow tie", [][2]float64{{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0}}, false, "Self-intersection"},
		{"spike", [][2]float64{{0, 0}, {2, 0}, {3, 0}, {2, 0}, {2, 2}, {0, 2}}, false, "Self-intersection"},
		{"collinear", [][2]float64{{0, 0}, {1, 0}, {2, 0}, {0, 0}}, false, "Self-intersection"},
		{"single point", [][2]float64{{3, 3}, {3, 3}, {3, 3}}, false, "Too few points"},
		{"touching vertex", [][2]float64{{0, 0}, {2, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 1}}, false, "Self-intersection[1 1]"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reason, ok := CheckSimple(Coords(tc.ring))
			assert.Equal(t, tc.simple, ok)
			if tc.reason != "" {
				assert.Contains(t, reason, tc.reason)
			}
		})
	}
}

func TestRepair(t *testing.T) {
	t.Parallel()

	t.Run("unequal bow tie keeps dominant lobe", func(t *testing.T) {
		t.Parallel()
		ring := Coords([][2]float64{{0, 0}, {2, 2}, {2, 0}, {0, 1}, {0, 0}})
		fixed, err := Repair(ring)
		require.NoError(t, err)
		_, simple := CheckSimple(fixed)
		assert.True(t, simple)
		assert.InDelta(t, 4.0/3.0, math.Abs(SignedArea(fixed)), 1e-9)
		assert.Len(t, fixed, 3)
	})

	t.Run("symmetric bow tie has no area", func(t *testing.T) {
		t.Parallel()
		_, err := Repair(Coords([][2]float64{{0, 0}, {1, 1}, {1, 0}, {0, 1}}))
		assert.True(t, eris.Is(err, ErrRepairEmpty))
	})

	t.Run("spike is trimmed", func(t *testing.T) {
		t.Parallel()
		fixed, err := Repair(Coords([][2]float64{{0, 0}, {2, 0}, {3, 0}, {2, 0}, {2, 2}, {0, 2}}))
		require.NoError(t, err)
		assert.InDelta(t, 4.0, SignedArea(fixed), 1e-9)
	})

	t.Run("two lobes touching at a vertex", func(t *testing.T) {
		t.Parallel()
		// Both loops wind counter-clockwise, so the repair yields two parts.
		ring := Coords([][2]float64{{0, 0}, {1, 0}, {1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}, {0, 1}})
		_, err := Repair(ring)
		assert.True(t, eris.Is(err, ErrRepairMultiPart))
	})
}

func TestBufferSquare(t *testing.T) {
	t.Parallel()

	out, err := Buffer(unitSquare(), 0.1, DefaultQuadrantSegments)
	require.NoError(t, err)

	// Square + four edge strips + a full circle approximated by 64 chords.
	want := 1 + 4*0.1 + 0.5*64*0.01*math.Sin(2*math.Pi/64)
	assert.InDelta(t, want, SignedArea(out), 1e-5)
	assert.Equal(t, [4]float64{-0.1, -0.1, 1.1, 1.1}, roundBounds(Bounds(out)))
	_, simple := CheckSimple(out)
	assert.True(t, simple)
}

func TestBufferConcave(t *testing.T) {
	t.Parallel()

	// A U shape whose notch is narrower than twice the buffer distance.
	ring := Coords([][2]float64{{0, 0}, {3, 0}, {3, 3}, {2, 3}, {2, 1}, {1, 1}, {1, 3}, {0, 3}})
	out, err := Buffer(ring, 0.6, 8)
	require.NoError(t, err)

	_, simple := CheckSimple(out)
	assert.True(t, simple)
	assert.Greater(t, SignedArea(out), SignedArea(ring))
	assert.True(t, containsAll(out, ring))
	// The notch fills completely; the outline only dips between the arms.
	b := Bounds(out)
	assert.InDelta(t, 3.6, b[3], 1e-9)
	assert.InDelta(t, -0.6, b[0], 1e-9)
}

func TestBufferClockwiseInput(t *testing.T) {
	t.Parallel()
	out, err := Buffer(reversed(Dedupe(unitSquare())), 0.1, 4)
	require.NoError(t, err)
	assert.Greater(t, SignedArea(out), 1.4)
}

func TestBufferSmallPolygonLargeDistance(t *testing.T) {
	t.Parallel()
	ring := Coords([][2]float64{{0, 0}, {0.001, 0}, {0.0005, 0.0004}, {0.001, 0.001}, {0, 0.001}})
	out, err := Buffer(ring, 0.01, DefaultQuadrantSegments)
	require.NoError(t, err)
	assert.Greater(t, SignedArea(out), math.Pi*0.01*0.01*0.99)
	assert.True(t, containsAll(out, ring))
}

func TestBufferZeroDistanceAndDegenerate(t *testing.T) {
	t.Parallel()
	out, err := Buffer(unitSquare(), 0, 8)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, SignedArea(out), 1e-12)

	_, err = Buffer(Coords([][2]float64{{0, 0}, {1, 1}, {0, 0}}), 0.1, 8)
	assert.True(t, eris.Is(err, ErrDegenerateRing))
}

func roundBounds(b [4]float64) [4]float64 {
	for i := range b {
		b[i] = Round(b[i], 9)
	}
	return b
}

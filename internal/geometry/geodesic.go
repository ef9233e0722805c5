package geometry

import (
	"math"

	"github.com/twpayne/go-geom"
)

// WGS84 ellipsoid parameters.
const (
	SemiMajorAxis = 6378137.0
	Flattening    = 1 / 298.257223563

	semiMinorAxis = SemiMajorAxis * (1 - Flattening)
	eccSquared    = Flattening * (2 - Flattening)
	meanRadius    = (2*SemiMajorAxis + semiMinorAxis) / 3

	vincentyMaxIter = 200
	vincentyEpsilon = 1e-12
)

var (
	ecc = math.Sqrt(eccSquared)
	// qPolar is the authalic q function evaluated at the pole.
	qPolar = authalicQ(1)
	// AuthalicRadius is the radius of the sphere with the ellipsoid's surface area.
	AuthalicRadius = SemiMajorAxis * math.Sqrt(qPolar/2)
)

func authalicQ(sinPhi float64) float64 {
	es := ecc * sinPhi
	return (1 - eccSquared) * (sinPhi/(1-eccSquared*sinPhi*sinPhi) - math.Log((1-es)/(1+es))/(2*ecc))
}

// authalicLatitude maps a geodetic latitude (radians) onto the equal-area sphere.
func authalicLatitude(phi float64) float64 {
	ratio := authalicQ(math.Sin(phi)) / qPolar
	if ratio > 1 {
		ratio = 1
	} else if ratio < -1 {
		ratio = -1
	}
	return math.Asin(ratio)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// wrapDelta folds a longitude difference in degrees into [-180, 180].
func wrapDelta(d float64) float64 {
	d = math.Mod(d, 360)
	switch {
	case d > 180:
		d -= 360
	case d < -180:
		d += 360
	}
	return d
}

// GeodesicArea returns the unsigned area in m² of a ring of [lon, lat]
// coordinates on the WGS84 ellipsoid. The ring may be open or closed. Latitudes
// are mapped to authalic latitudes so that the spherical excess of each
// edge/equator trapezoid on the authalic sphere equals its ellipsoidal area.
func GeodesicArea(ring []geom.Coord) float64 {
	ring = openRing(ring)
	n := len(ring)
	if n < 3 {
		return 0
	}

	var excess float64
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[(i+1)%n]
		dLambda := radians(wrapDelta(b[0] - a[0]))
		t1 := math.Tan(authalicLatitude(radians(a[1])) / 2)
		t2 := math.Tan(authalicLatitude(radians(b[1])) / 2)
		excess += 2 * math.Atan2(math.Tan(dLambda/2)*(t1+t2), 1+t1*t2)
	}

	excess = math.Abs(excess)
	// A ring traversed around more than a hemisphere describes the complement.
	if excess > 2*math.Pi {
		excess = 4*math.Pi - excess
	}
	return excess * AuthalicRadius * AuthalicRadius
}

// GeodesicPerimeter returns the length in metres of the closed ring's boundary.
func GeodesicPerimeter(ring []geom.Coord) float64 {
	ring = openRing(ring)
	n := len(ring)
	if n < 2 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[(i+1)%n]
		total += GeodesicDistance(a[0], a[1], b[0], b[1])
	}
	return total
}

// GeodesicDistance returns the ellipsoidal distance in metres between two
// points using Vincenty's inverse formula. Nearly antipodal pairs where the
// iteration does not converge fall back to the great-circle distance on the
// mean-radius sphere.
func GeodesicDistance(lon1, lat1, lon2, lat2 float64) float64 {
	if lon1 == lon2 && lat1 == lat2 {
		return 0
	}

	L := radians(wrapDelta(lon2 - lon1))
	u1 := math.Atan((1 - Flattening) * math.Tan(radians(lat1)))
	u2 := math.Atan((1 - Flattening) * math.Tan(radians(lat2)))
	sinU1, cosU1 := math.Sincos(u1)
	sinU2, cosU2 := math.Sincos(u2)

	lambda := L
	var sinSigma, cosSigma, sigma, cos2Alpha, cos2SigmaM float64
	converged := false
	for i := 0; i < vincentyMaxIter; i++ {
		sinLambda, cosLambda := math.Sincos(lambda)
		x := cosU2 * sinLambda
		y := cosU1*sinU2 - sinU1*cosU2*cosLambda
		sinSigma = math.Sqrt(x*x + y*y)
		if sinSigma == 0 {
			return 0
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cos2Alpha = 1 - sinAlpha*sinAlpha
		cos2SigmaM = 0
		if cos2Alpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cos2Alpha
		}
		c := Flattening / 16 * cos2Alpha * (4 + Flattening*(4-3*cos2Alpha))
		prev := lambda
		lambda = L + (1-c)*Flattening*sinAlpha*
			(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-prev) < vincentyEpsilon {
			converged = true
			break
		}
	}
	if !converged {
		return haversine(lon1, lat1, lon2, lat2)
	}

	uSq := cos2Alpha * (SemiMajorAxis*SemiMajorAxis - semiMinorAxis*semiMinorAxis) / (semiMinorAxis * semiMinorAxis)
	A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := B * sinSigma * (cos2SigmaM + B/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		B/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
	return semiMinorAxis * A * (sigma - deltaSigma)
}

func haversine(lon1, lat1, lon2, lat2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	dPhi := phi2 - phi1
	dLambda := radians(wrapDelta(lon2 - lon1))
	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * meanRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

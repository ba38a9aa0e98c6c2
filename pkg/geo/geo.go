// Package geo provides great-circle primitives used by ETA estimation and by
// seed tooling that generates synthetic courier routes.
package geo

import "math"

const earthRadiusM = 6371000.0

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dPhi := toRad(lat2 - lat1)
	dLambda := toRad(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Bearing returns the initial bearing in degrees [0, 360) to travel from the
// first point to the second along the great circle.
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dLambda := toRad(lng2 - lng1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return math.Mod(toDeg(math.Atan2(y, x))+360, 360)
}

// Interpolate returns the point at fraction frac (0 = start, 1 = end) along
// the great-circle path between the two points.
func Interpolate(lat1, lng1, lat2, lng2, frac float64) (lat, lng float64) {
	if frac <= 0 {
		return lat1, lng1
	}
	if frac >= 1 {
		return lat2, lng2
	}

	phi1, lam1 := toRad(lat1), toRad(lng1)
	phi2, lam2 := toRad(lat2), toRad(lng2)

	delta := Haversine(lat1, lng1, lat2, lng2) / earthRadiusM
	if delta == 0 {
		return lat1, lng1
	}

	a := math.Sin((1-frac)*delta) / math.Sin(delta)
	b := math.Sin(frac*delta) / math.Sin(delta)

	x := a*math.Cos(phi1)*math.Cos(lam1) + b*math.Cos(phi2)*math.Cos(lam2)
	y := a*math.Cos(phi1)*math.Sin(lam1) + b*math.Cos(phi2)*math.Sin(lam2)
	z := a*math.Sin(phi1) + b*math.Sin(phi2)

	return toDeg(math.Atan2(z, math.Sqrt(x*x+y*y))), toDeg(math.Atan2(y, x))
}

// Midpoint returns the point halfway along the great-circle path.
func Midpoint(lat1, lng1, lat2, lng2 float64) (lat, lng float64) {
	return Interpolate(lat1, lng1, lat2, lng2, 0.5)
}

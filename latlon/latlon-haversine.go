package latlon

import "math"

// Haversine computes great-circle distances and initial bearings on a sphere of radius R.
type Haversine struct{}

func (Haversine) initialBearingTo(from, to LatLon) float64 {
	φ1 := toRadians(from.Lat)
	φ2 := toRadians(to.Lat)

	Δλ := toRadians(to.Lon - from.Lon)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	y := math.Sin(Δλ) * math.Cos(φ2)
	θ := math.Atan2(y, x)

	return Wrap360(toDegrees(θ))
}

func (Haversine) DistanceTo(from, to LatLon) float64 {
	φ1 := toRadians(from.Lat)
	φ2 := toRadians(to.Lat)
	Δφ := φ2 - φ1

	Δλ := toRadians(to.Lon - from.Lon)

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	δ := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * δ
}

func (hav Haversine) BearingTo(from, to LatLon) float64 {
	return hav.initialBearingTo(from, to)
}

// DistanceAndBearingTo returns the distance in meters and the initial bearing in degrees.
// The bearing between identical points is 0.
func (hav Haversine) DistanceAndBearingTo(from, to LatLon) (float64, float64) {
	d := hav.DistanceTo(from, to)
	if d == 0 {
		return 0, 0
	}
	return d, hav.initialBearingTo(from, to)
}

// Destination returns the point reached travelling distance meters along the
// great circle starting at from with the given initial bearing.
func (Haversine) Destination(from LatLon, bearing float64, distance float64) LatLon {
	φ1 := toRadians(from.Lat)
	λ1 := toRadians(from.Lon)
	θ := toRadians(bearing)
	δ := distance / R

	sinφ2 := math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ)
	φ2 := math.Asin(sinφ2)
	y := math.Sin(θ) * math.Sin(δ) * math.Cos(φ1)
	x := math.Cos(δ) - math.Sin(φ1)*sinφ2
	λ2 := λ1 + math.Atan2(y, x)

	return LatLon{Lat: toDegrees(φ2), Lon: wrap180(toDegrees(λ2))}
}

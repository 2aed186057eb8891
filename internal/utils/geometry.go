package utils

import "math"

// RadiusOfEarthInMeters is the mean Earth radius used for all distance math.
const RadiusOfEarthInMeters = 6371010.0

// CoordinateBounds is a latitude/longitude rectangle in degrees.
type CoordinateBounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Distance returns the great-circle distance in meters between two points
// using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := toRadians(lat1), toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	if h > 1 {
		h = 1
	}
	return 2 * RadiusOfEarthInMeters * math.Asin(math.Sqrt(h))
}

// CalculateBounds returns the rectangle that encloses a circle of radius
// meters around lat/lon.
func CalculateBounds(lat, lon, radius float64) CoordinateBounds {
	latOffset := toDegrees(radius / RadiusOfEarthInMeters)
	lonOffset := toDegrees(radius / (RadiusOfEarthInMeters * math.Cos(toRadians(lat))))

	return CoordinateBounds{
		MinLat: lat - latOffset,
		MaxLat: lat + latOffset,
		MinLon: lon - lonOffset,
		MaxLon: lon + lonOffset,
	}
}

// PathLength returns the length in meters of a polyline given as
// alternating lat/lon pairs.
func PathLength(points [][2]float64) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1][0], points[i-1][1], points[i][0], points[i][1])
	}
	return total
}

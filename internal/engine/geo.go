package engine

import (
	"math"

	"github.com/nwdaf-lab/hermes/internal/models"
)

const earthRadiusKm = 6371.0088

// distanceKm returns the great-circle distance between two located areas.
func distanceKm(a, b models.LocationArea) float64 {
	lat1 := radians(*a.Latitude)
	lat2 := radians(*b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(*b.Longitude - *a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

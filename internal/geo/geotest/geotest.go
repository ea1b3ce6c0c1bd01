// Package geotest - вспомогательные функции для тестов с координатами
package geotest

import (
	"math"

	"fieldTracker/internal/geo"
)

// Offset сдвигает точку на northMeters к северу и eastMeters к востоку
func Offset(p geo.Point, northMeters, eastMeters float64) geo.Point {
	dLat := northMeters / geo.EarthRadiusMeters * 180 / math.Pi
	dLng := eastMeters / (geo.EarthRadiusMeters * math.Cos(p.Lat*math.Pi/180)) * 180 / math.Pi
	return geo.Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

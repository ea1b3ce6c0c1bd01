package geo

import (
	"errors"
	"fmt"
	"math"
)

// средний радиус Земли
const EarthRadiusMeters = 6371000.0

var ErrInvalidGeometry = errors.New("invalid geometry")

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: координаты не конечны", ErrInvalidGeometry)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: широта %v вне диапазона", ErrInvalidGeometry, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: долгота %v вне диапазона", ErrInvalidGeometry, p.Lng)
	}
	return nil
}

// DistanceMeters - расстояние по большому кругу (haversine) в метрах
func DistanceMeters(a, b Point) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

func DistanceKm(a, b Point) float64 {
	return DistanceMeters(a, b) / 1000
}

type Circle struct {
	Center       Point `json:"center"`
	RadiusMeters int   `json:"radius_meters"`
}

func (c Circle) Validate() error {
	if c.RadiusMeters <= 0 {
		return fmt.Errorf("%w: радиус должен быть положительным, получено %d", ErrInvalidGeometry, c.RadiusMeters)
	}
	return c.Center.Validate()
}

// Contains возвращает признак попадания и расстояние до центра
func (c Circle) Contains(p Point) (bool, float64) {
	d := DistanceMeters(c.Center, p)
	return WithinRadius(d, c.RadiusMeters), d
}

// граница окружности считается внутренней
func WithinRadius(distanceMeters float64, radiusMeters int) bool {
	return distanceMeters <= float64(radiusMeters)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Package geo converts between the service's coordinates and orb geometry.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"fitspot/placesearch/internal/domain"
)

const (
	// MaxSearchRadiusMeters is the largest radius the Places nearby search accepts.
	MaxSearchRadiusMeters = 50000
	minSearchRadiusMeters = 100
)

func Point(c domain.Coordinate) orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

func FromPoint(p orb.Point) domain.Coordinate {
	return domain.Coordinate{Lat: p.Lat(), Lng: p.Lon()}
}

func Bound(b domain.Bounds) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Min(b.SouthWest.Lng, b.NorthEast.Lng), math.Min(b.SouthWest.Lat, b.NorthEast.Lat)},
		Max: orb.Point{math.Max(b.SouthWest.Lng, b.NorthEast.Lng), math.Max(b.SouthWest.Lat, b.NorthEast.Lat)},
	}
}

// DistanceMeters is the great-circle distance between two coordinates.
func DistanceMeters(from, to domain.Coordinate) float64 {
	return orbgeo.DistanceHaversine(Point(from), Point(to))
}

// CenterRadius reduces a bias to the circle a nearby search takes.
// A viewport becomes its center and the distance to its farthest corner.
func CenterRadius(bias domain.GeoBias, defaultRadius int) (domain.Coordinate, int, error) {
	switch {
	case bias.Bounds != nil:
		if err := bias.Bounds.SouthWest.Validate(); err != nil {
			return domain.Coordinate{}, 0, err
		}
		if err := bias.Bounds.NorthEast.Validate(); err != nil {
			return domain.Coordinate{}, 0, err
		}
		bound := Bound(*bias.Bounds)
		center := bound.Center()
		radius := orbgeo.DistanceHaversine(center, bound.Max)
		return FromPoint(center), clampRadius(int(math.Ceil(radius))), nil
	case bias.Center != nil:
		if err := bias.Center.Validate(); err != nil {
			return domain.Coordinate{}, 0, err
		}
		radius := bias.RadiusMeters
		if radius <= 0 {
			radius = defaultRadius
		}
		return *bias.Center, clampRadius(radius), nil
	default:
		return domain.Coordinate{}, 0, fmt.Errorf("%w: bias has neither bounds nor center", domain.ErrInvalidCoordinate)
	}
}

// Contains reports whether c falls inside the viewport.
func Contains(b domain.Bounds, c domain.Coordinate) bool {
	return Bound(b).Contains(Point(c))
}

// FormatDistance renders meters the way the distance matrix does for metric units.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

func clampRadius(radius int) int {
	if radius < minSearchRadiusMeters {
		return minSearchRadiusMeters
	}
	if radius > MaxSearchRadiusMeters {
		return MaxSearchRadiusMeters
	}
	return radius
}

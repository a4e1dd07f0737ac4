package monitor

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// GeometryType tags the shape variant of a region's area of interest.
type GeometryType string

const (
	GeometryCircle    GeometryType = "Circle"
	GeometryPolygon   GeometryType = "Polygon"
	GeometryRectangle GeometryType = "Rectangle"
)

// kmPerDegree is the planar approximation used by the legacy area math.
// Kept as-is so stored areas stay comparable across the migration.
const kmPerDegree = 111.0

// Geometry is the wire representation of an area of interest, matching the
// frontend contract. Circles carry Center ([lng, lat]) and Radius in meters;
// polygons and rectangles carry Coordinates as rings of [lng, lat] positions.
type Geometry struct {
	Type        GeometryType  `json:"type"`
	Center      []float64     `json:"center,omitempty"`
	Radius      float64       `json:"radius,omitempty"`
	Coordinates [][][]float64 `json:"coordinates,omitempty"`
}

// Validate checks the variant fields and returns a ValidationError naming
// each offending field.
func (g Geometry) Validate() error {
	var fields []string
	switch g.Type {
	case GeometryCircle:
		if len(g.Center) != 2 {
			fields = append(fields, "geometry.center")
		} else if !validLng(g.Center[0]) || !validLat(g.Center[1]) {
			fields = append(fields, "geometry.center")
		}
		if g.Radius <= 0 {
			fields = append(fields, "geometry.radius")
		}
	case GeometryPolygon, GeometryRectangle:
		if len(g.Coordinates) == 0 || len(g.Coordinates[0]) < 3 {
			fields = append(fields, "geometry.coordinates")
		} else {
			for _, ring := range g.Coordinates {
				if !validRing(ring) {
					fields = append(fields, "geometry.coordinates")
					break
				}
			}
		}
	default:
		fields = append(fields, "geometry.type")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validLng(v float64) bool { return v >= -180 && v <= 180 }
func validLat(v float64) bool { return v >= -90 && v <= 90 }

func validRing(ring [][]float64) bool {
	for _, pt := range ring {
		if len(pt) < 2 || !validLng(pt[0]) || !validLat(pt[1]) {
			return false
		}
	}
	return true
}

// AreaKm2 computes the approximate area in square kilometers. Circles use
// π·(radius/1000)²; polygons and rectangles use the bounding box of the
// outer ring scaled by 111 km per degree, exactly as the legacy system did.
func (g Geometry) AreaKm2() (float64, error) {
	switch g.Type {
	case GeometryCircle:
		r := g.Radius / 1000
		return math.Pi * r * r, nil
	case GeometryPolygon, GeometryRectangle:
		poly, err := g.polygon()
		if err != nil {
			return 0, err
		}
		b := poly.Bounds()
		w := (b.Max(0) - b.Min(0)) * kmPerDegree
		h := (b.Max(1) - b.Min(1)) * kmPerDegree
		return w * h, nil
	}
	return 0, fmt.Errorf("unsupported geometry type %q", g.Type)
}

func (g Geometry) polygon() (*geom.Polygon, error) {
	rings := make([][]geom.Coord, 0, len(g.Coordinates))
	for _, ring := range g.Coordinates {
		coords := make([]geom.Coord, 0, len(ring))
		for _, pt := range ring {
			if len(pt) < 2 {
				return nil, fmt.Errorf("ring position needs lng and lat, got %d values", len(pt))
			}
			coords = append(coords, geom.Coord{pt[0], pt[1]})
		}
		rings = append(rings, coords)
	}
	return geom.NewPolygon(geom.XY).SetCoords(rings)
}

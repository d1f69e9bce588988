// Package mask rasterizes polygons into alpha channels for assembled
// slide regions.
package mask

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/vector"

	"github.com/slidetools/slidestitch/pkg/raster"
)

// Point is a vertex in region pixel coordinates.
type Point struct {
	X, Y float64
}

// Polygon is a closed ring of vertices. The closing edge back to the first
// vertex is implicit.
type Polygon []Point

// GeometryError marks a polygon that cannot be rasterized. Apply degrades
// to the unmasked raster on this error class only.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string {
	return "invalid mask geometry: " + e.Reason
}

func (p Polygon) validate() error {
	if len(p) < 3 {
		return &GeometryError{Reason: fmt.Sprintf("polygon has %d vertices, need at least 3", len(p))}
	}
	for _, pt := range p {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
			return &GeometryError{Reason: "polygon has a non-finite coordinate"}
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the polygon.
func (p Polygon) Bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, pt := range p {
		minX = math.Min(minX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxX = math.Max(maxX, pt.X)
		maxY = math.Max(maxY, pt.Y)
	}
	return minX, minY, maxX, maxY
}

// Translate shifts every vertex by (dx, dy).
func (p Polygon) Translate(dx, dy float64) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = Point{X: pt.X + dx, Y: pt.Y + dy}
	}
	return out
}

// Scale multiplies every coordinate by s.
func (p Polygon) Scale(s float64) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = Point{X: pt.X * s, Y: pt.Y * s}
	}
	return out
}

// FlipY mirrors the polygon from a bottom-left origin into the top-left
// origin used for slide coordinates.
func (p Polygon) FlipY(height float64) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = Point{X: pt.X, Y: height - pt.Y}
	}
	return out
}

// Rasterize renders the polygon into a width x height alpha plane.
// Pixels inside the polygon are 255, pixels outside 0, edge pixels the
// anti-aliased coverage in between.
func Rasterize(p Polygon, width, height int) ([]uint8, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	z := vector.NewRasterizer(width, height)
	z.MoveTo(float32(p[0].X), float32(p[0].Y))
	for _, pt := range p[1:] {
		z.LineTo(float32(pt.X), float32(pt.Y))
	}
	z.ClosePath()

	dst := image.NewAlpha(image.Rect(0, 0, width, height))
	z.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})
	return dst.Pix, nil
}

// Apply bakes the polygon into r as a fourth channel. A nil or degenerate
// polygon leaves the raster untouched; any other failure is returned.
func Apply(r *raster.Raster, p Polygon) (*raster.Raster, error) {
	if len(p) == 0 {
		return r, nil
	}
	alpha, err := Rasterize(p, r.Width, r.Height)
	if err != nil {
		if _, ok := err.(*GeometryError); ok {
			return r, nil
		}
		return nil, err
	}
	return r.WithAlpha(alpha)
}

package mask

import (
	"math"
	"testing"

	"github.com/slidetools/slidestitch/pkg/raster"
)

func TestRasterizeSquare(t *testing.T) {
	p := Polygon{{10, 10}, {30, 10}, {30, 30}, {10, 30}}
	alpha, err := Rasterize(p, 40, 40)
	if err != nil {
		t.Fatalf("Rasterize failed: %v", err)
	}
	if len(alpha) != 40*40 {
		t.Fatalf("alpha plane has %d samples, want %d", len(alpha), 40*40)
	}
	if got := alpha[20*40+20]; got != 255 {
		t.Errorf("alpha inside polygon = %d, want 255", got)
	}
	if got := alpha[5*40+5]; got != 0 {
		t.Errorf("alpha outside polygon = %d, want 0", got)
	}
	if got := alpha[35*40+35]; got != 0 {
		t.Errorf("alpha outside polygon = %d, want 0", got)
	}
}

func TestApplyAddsAlphaChannel(t *testing.T) {
	r := raster.New(40, 40, 3)
	out, err := Apply(r, Polygon{{0, 0}, {40, 0}, {40, 40}, {0, 40}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Channels != 4 {
		t.Fatalf("channels = %d, want 4", out.Channels)
	}
	if got := out.Pix[(20*40+20)*4+3]; got != 255 {
		t.Errorf("alpha inside polygon = %d, want 255", got)
	}
}

func TestApplyNilPolygonIsIdentity(t *testing.T) {
	r := raster.New(8, 8, 3)
	out, err := Apply(r, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out != r {
		t.Error("nil polygon should return the raster unchanged")
	}
}

func TestApplyDegeneratePolygonDegrades(t *testing.T) {
	r := raster.New(8, 8, 3)

	tests := []struct {
		name string
		p    Polygon
	}{
		{"two vertices", Polygon{{0, 0}, {5, 5}}},
		{"non-finite coordinate", Polygon{{0, 0}, {math.NaN(), 1}, {2, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Apply(r, tt.p)
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if out.Channels != 3 {
				t.Errorf("channels = %d, want 3 (unmasked fallback)", out.Channels)
			}
		})
	}
}

func TestApplyPropagatesNonGeometryErrors(t *testing.T) {
	// Alpha can only be added to 3-channel rasters; failures here are real
	// bugs and must not be swallowed.
	r := raster.New(8, 8, 4)
	if _, err := Apply(r, Polygon{{0, 0}, {8, 0}, {8, 8}}); err == nil {
		t.Error("expected error applying a mask to a 4-channel raster")
	}
}

func TestPolygonTransforms(t *testing.T) {
	p := Polygon{{0, 0}, {10, 0}, {10, 20}}

	flipped := p.FlipY(100)
	if flipped[0].Y != 100 || flipped[2].Y != 80 {
		t.Errorf("FlipY gave %v", flipped)
	}

	scaled := p.Scale(0.5)
	if scaled[2].X != 5 || scaled[2].Y != 10 {
		t.Errorf("Scale gave %v", scaled)
	}

	minX, minY, maxX, maxY := p.Translate(5, 5).Bounds()
	if minX != 5 || minY != 5 || maxX != 15 || maxY != 25 {
		t.Errorf("Bounds = (%v,%v,%v,%v)", minX, minY, maxX, maxY)
	}
}

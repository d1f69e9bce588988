// Package dump materializes whole slide regions to files: either a full
// image or the crop around an annotation polygon, downloaded tile by tile.
package dump

import (
	"context"
	"fmt"
	"math"
	"regexp"

	"github.com/slidetools/slidestitch/internal/assemble"
	"github.com/slidetools/slidestitch/pkg/mask"
	"github.com/slidetools/slidestitch/pkg/raster"
	"github.com/slidetools/slidestitch/pkg/slide"
)

// Zone describes what to dump. The zero value means the whole image.
type Zone struct {
	// Annotation marks the zone as a crop around Polygon instead of the
	// whole image.
	Annotation bool

	// Polygon is the annotation geometry in full-resolution image
	// coordinates with a bottom-left origin, the convention annotations
	// are stored in server-side.
	Polygon mask.Polygon

	// Props feed the {placeholder} substitutions of destination patterns.
	Props map[string][]string
}

// Dumper assembles regions of one slide and writes them to disk.
type Dumper struct {
	Assembler *assemble.Assembler
	Slide     *slide.Slide
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// ResolvePattern substitutes {key} placeholders from props. A pattern
// referencing a missing key or a key with several values does not resolve
// into a unique path and is rejected.
func ResolvePattern(pattern string, props map[string][]string) (string, error) {
	var resolveErr error
	out := placeholderRe.ReplaceAllStringFunc(pattern, func(m string) string {
		key := m[1 : len(m)-1]
		vals := props[key]
		if len(vals) != 1 && resolveErr == nil {
			resolveErr = fmt.Errorf("pattern %q does not resolve into a unique path: key %q has %d values",
				pattern, key, len(vals))
		}
		if len(vals) == 0 {
			return m
		}
		return vals[0]
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

// zoneRegion maps the zone onto a region at the slide's zoom level and
// returns the polygon translated into region coordinates.
func (d *Dumper) zoneRegion(zone Zone) (slide.Region, mask.Polygon, error) {
	s := d.Slide
	if !zone.Annotation {
		return s.Bounds(), nil, nil
	}
	if len(zone.Polygon) == 0 {
		return slide.Region{}, nil, fmt.Errorf("annotation zone is missing its geometry")
	}

	// Annotations use a bottom-left origin at full resolution; flip into
	// slide coordinates and scale down to the selected zoom level.
	p := zone.Polygon.FlipY(float64(s.Height)).Scale(1 / math.Pow(2, float64(s.Zoom)))

	minX, minY, maxX, maxY := p.Bounds()
	x := int(math.Floor(minX))
	y := int(math.Floor(minY))
	w := int(math.Ceil(maxX)) - x
	h := int(math.Ceil(maxY)) - y

	region := s.Bounds().Window(x, y, w, h)
	if region.Empty() {
		return slide.Region{}, nil, fmt.Errorf("annotation zone lies outside the slide bounds")
	}
	return region, p.Translate(-float64(region.X), -float64(region.Y)), nil
}

// Dump assembles the zone and writes it as PNG to the path resolved from
// destPattern, returning that path. With alpha set, the annotation polygon
// is baked in as a fourth channel. Input validation happens before any
// tile is requested.
func (d *Dumper) Dump(ctx context.Context, zone Zone, destPattern string, alpha bool) (string, error) {
	dest, err := ResolvePattern(destPattern, zone.Props)
	if err != nil {
		return "", err
	}
	region, polygon, err := d.zoneRegion(zone)
	if err != nil {
		return "", err
	}
	if !alpha {
		polygon = nil
	}

	out, err := d.Assembler.Assemble(ctx, d.Slide, region, polygon)
	if err != nil {
		return "", err
	}
	if err := raster.WritePNG(dest, out); err != nil {
		return "", err
	}
	return dest, nil
}

// Stream fetches and caches every tile covering the zone without ever
// holding the assembled raster in memory.
func (d *Dumper) Stream(ctx context.Context, zone Zone) error {
	region, _, err := d.zoneRegion(zone)
	if err != nil {
		return err
	}
	return d.Assembler.Prefetch(ctx, d.Slide, region)
}

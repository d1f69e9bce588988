// Package assemble reconstructs arbitrary slide regions from fixed-size
// protocol tiles.
//
// A request is mapped onto the grid-aligned super-window covering it, the
// covering tiles are fetched through the disk cache by a bounded worker
// pool, stitched into a mosaic and cropped back to the exact request.
package assemble

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slidetools/slidestitch/internal/cache"
	"github.com/slidetools/slidestitch/internal/fetch"
	"github.com/slidetools/slidestitch/pkg/mask"
	"github.com/slidetools/slidestitch/pkg/raster"
	"github.com/slidetools/slidestitch/pkg/slide"
)

// ExtractionError reports a tile that could not be downloaded or decoded.
// One bad tile fails the whole assembly; there is no partial output.
type ExtractionError struct {
	Col, Row int
	Key      string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("cannot extract tile (col %d, row %d) for %q: %v", e.Col, e.Row, e.Key, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Assembler fetches and stitches tiles for one slide through one protocol.
type Assembler struct {
	Cache   *cache.Cache
	Fetcher fetch.Fetcher

	// Workers bounds the fetch pool. 0 means all available parallelism,
	// 1 degenerates to sequential fetching.
	Workers int

	// TileTimeout bounds a single tile download so one hung connection
	// cannot stall the whole assembly. 0 disables the bound.
	TileTimeout time.Duration
}

func (a *Assembler) workers() int {
	if a.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return a.Workers
}

// Assemble reconstructs the requested region of the slide and returns a
// raster of exactly (region.H, region.W, 3), or 4 channels when a polygon
// mask is baked in. The first failing tile cancels the in-flight siblings
// and aborts the assembly.
func (a *Assembler) Assemble(ctx context.Context, s *slide.Slide, region slide.Region, polygon mask.Polygon) (*raster.Raster, error) {
	if region.Empty() {
		return nil, fmt.Errorf("cannot assemble empty region %s", region)
	}

	sw := slide.Plan(region, s.ZoomedWidth(), s.ZoomedHeight())
	mosaic := raster.New(sw.W, sw.H, slide.Channels)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for _, cell := range sw.Cells {
		cell := cell
		g.Go(func() error {
			tile, err := a.fetchTile(ctx, s, cell)
			if err != nil {
				return err
			}
			// Cells write disjoint mosaic rows, so no locking is needed.
			// Short edge tiles land in a zeroed slot and come out padded.
			return mosaic.DrawAt(tile, cell.OffsetX, cell.OffsetY)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out, err := mosaic.Crop(sw.Left, sw.Top, region.W, region.H)
	if err != nil {
		return nil, err
	}
	return mask.Apply(out, polygon)
}

// Prefetch downloads and caches every tile covering the region without
// materializing the mosaic. Used to warm the cache for later assemblies
// or to stream a huge region to disk tile by tile.
func (a *Assembler) Prefetch(ctx context.Context, s *slide.Slide, region slide.Region) error {
	if region.Empty() {
		return fmt.Errorf("cannot prefetch empty region %s", region)
	}

	sw := slide.Plan(region, s.ZoomedWidth(), s.ZoomedHeight())
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for _, cell := range sw.Cells {
		cell := cell
		g.Go(func() error {
			return a.download(ctx, s, cell)
		})
	}
	return g.Wait()
}

// AssembleCached memoizes whole assembled requests in the same working
// directory the tiles live in. A repeated request for identical
// coordinates is served straight from disk.
func (a *Assembler) AssembleCached(ctx context.Context, s *slide.Slide, region slide.Region, polygon mask.Polygon) (*raster.Raster, error) {
	key := requestKey(s, region, len(polygon) > 0)
	if a.Cache.Has(key) {
		return a.Cache.Get(key)
	}

	out, err := a.Assemble(ctx, s, region, polygon)
	if err != nil {
		return nil, err
	}
	// A degenerate polygon degrades to a 3-channel raster; store it under
	// the key matching what was actually produced.
	key.Alpha = out.Channels == 4
	if err := a.Cache.Put(key, out); err != nil {
		return nil, err
	}
	return out, nil
}

func requestKey(s *slide.Slide, r slide.Region, alpha bool) cache.Key {
	return cache.Key{
		SlideID: s.ID,
		Zoom:    s.Zoom,
		X:       r.X,
		Y:       r.Y,
		W:       r.W,
		H:       r.H,
		Alpha:   alpha,
	}
}

func (a *Assembler) download(ctx context.Context, s *slide.Slide, cell slide.SubTile) error {
	key := requestKey(s, cell.Region, false)
	if a.Cache.Has(key) {
		return nil
	}
	if a.TileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.TileTimeout)
		defer cancel()
	}
	if err := a.Fetcher.Download(ctx, s, cell.Region, a.Cache.Path(key)); err != nil {
		return &ExtractionError{Col: cell.Col, Row: cell.Row, Key: key.String(), Err: err}
	}
	return nil
}

func (a *Assembler) fetchTile(ctx context.Context, s *slide.Slide, cell slide.SubTile) (*raster.Raster, error) {
	if err := a.download(ctx, s, cell); err != nil {
		return nil, err
	}

	key := requestKey(s, cell.Region, false)
	tile, err := raster.DecodeFile(a.Cache.Path(key), slide.Channels)
	if err != nil {
		return nil, &ExtractionError{Col: cell.Col, Row: cell.Row, Key: key.String(), Err: err}
	}
	if tile.Width != cell.Region.W || tile.Height != cell.Region.H {
		return nil, &ExtractionError{
			Col: cell.Col,
			Row: cell.Row,
			Key: key.String(),
			Err: fmt.Errorf("fetched image has invalid size: %dx%d instead of %dx%d",
				tile.Width, tile.Height, cell.Region.W, cell.Region.H),
		}
	}
	return tile, nil
}

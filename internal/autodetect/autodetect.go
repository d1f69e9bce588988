// Package autodetect probes which tile protocol a deployment supports.
package autodetect

import (
	"context"
	"errors"
	"os"

	"github.com/slidetools/slidestitch/internal/assemble"
	"github.com/slidetools/slidestitch/internal/cache"
	"github.com/slidetools/slidestitch/internal/client"
	"github.com/slidetools/slidestitch/internal/fetch"
	"github.com/slidetools/slidestitch/pkg/slide"
)

// Detect picks the tile protocol for a slide. A slide without a reference
// slice belongs to a legacy deployment and always uses zoomify. Modern
// slides get a single sequential 256x256 probe at the origin through the
// fixed-grid endpoint; if that tile cannot be extracted the deployment
// falls back to zoomify too.
func Detect(ctx context.Context, c *client.Client, s *slide.Slide) (fetch.Fetcher, string, error) {
	if s.Slice == nil {
		return &fetch.ZoomifyFetcher{Client: c}, "zoomify", nil
	}

	tmp, err := os.MkdirTemp("", "slidestitch-probe-*")
	if err != nil {
		return nil, "", err
	}
	defer os.RemoveAll(tmp)

	probeCache, err := cache.New(tmp)
	if err != nil {
		return nil, "", err
	}

	iip := &fetch.IIPFetcher{Client: c}
	probe := &assemble.Assembler{Cache: probeCache, Fetcher: iip, Workers: 1}
	region := s.Bounds().Window(0, 0, slide.TileSize, slide.TileSize)

	if _, err := probe.Assemble(ctx, s, region, nil); err != nil {
		var ee *assemble.ExtractionError
		if errors.As(err, &ee) {
			return &fetch.ZoomifyFetcher{Client: c}, "zoomify", nil
		}
		return nil, "", err
	}
	return iip, "iip", nil
}

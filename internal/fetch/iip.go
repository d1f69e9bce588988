package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/slidetools/slidestitch/internal/client"
	"github.com/slidetools/slidestitch/pkg/slide"
)

// IIPFetcher requests fixed-grid tiles by linear index from the slice
// tiling endpoint. The region's offset must be grid aligned; the index is
// col + row * tilesPerRow over the slide width at the current zoom.
type IIPFetcher struct {
	Client *client.Client
}

func (f *IIPFetcher) Download(ctx context.Context, s *slide.Slide, r slide.Region, dest string) error {
	if s.Slice == nil {
		return fmt.Errorf("iip fetch for %s: %w", s, ErrSliceRequired)
	}
	col := r.X / slide.TileSize
	row := r.Y / slide.TileSize
	index := slide.TileIndex(col, row, s.ZoomedWidth())

	q := url.Values{
		"fif":       {s.Slice.Path},
		"mimeType":  {s.Slice.Mime},
		"tileIndex": {strconv.Itoa(index)},
		"z":         {strconv.Itoa(s.ServerZoom())},
	}
	return f.Client.DownloadFile(ctx, s.Slice.ServerURL+"/slice/tile", q, dest)
}

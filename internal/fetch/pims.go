package fetch

import (
	"context"
	"fmt"
	"net/url"

	"github.com/slidetools/slidestitch/internal/client"
	"github.com/slidetools/slidestitch/pkg/slide"
)

// PIMSFetcher requests normalized tiles. Only the first three channels are
// ever asked for, mapped onto an RGB colormap.
type PIMSFetcher struct {
	Client *client.Client
}

func (f *PIMSFetcher) Download(ctx context.Context, s *slide.Slide, r slide.Region, dest string) error {
	if s.Slice == nil {
		return fmt.Errorf("pims fetch for %s: %w", s, ErrSliceRequired)
	}
	col := r.X / slide.TileSize
	row := r.Y / slide.TileSize
	index := slide.TileIndex(col, row, s.ZoomedWidth())

	tileURL := fmt.Sprintf("%s/image/%s/normalized-tile/zoom/%d/ti/%d.jpg",
		s.Slice.ServerURL, url.PathEscape(s.Slice.Path), s.ServerZoom(), index)
	q := url.Values{
		"z_slices":   {"0"},
		"timepoints": {"0"},
		"channels":   {"0,1,2"},
		"colormaps":  {"#f00,#0f0,#00f"},
	}
	return f.Client.DownloadFile(ctx, tileURL, q, dest)
}

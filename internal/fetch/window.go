package fetch

import (
	"context"
	"fmt"

	"github.com/slidetools/slidestitch/internal/client"
	"github.com/slidetools/slidestitch/pkg/slide"
)

// WindowFetcher asks the server for an arbitrary rectangular crop. It is
// the simplest protocol and needs no grid alignment at all.
type WindowFetcher struct {
	Client *client.Client
}

func (f *WindowFetcher) Download(ctx context.Context, s *slide.Slide, r slide.Region, dest string) error {
	url := fmt.Sprintf("%s/imageinstance/%d/window-%d-%d-%d-%d.png",
		f.Client.BaseURL(), s.ID, r.X, r.Y, r.W, r.H)
	return f.Client.DownloadFile(ctx, url, nil, dest)
}

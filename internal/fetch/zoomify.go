package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/slidetools/slidestitch/internal/client"
	"github.com/slidetools/slidestitch/pkg/slide"
)

// ZoomifyFetcher serves older deployments that predate the slice
// representation. The imaging server base URL is resolved once via a
// discovery call and reused for every tile.
type ZoomifyFetcher struct {
	Client *client.Client

	mu        sync.Mutex
	serverURL string
}

func (f *ZoomifyFetcher) imagingServer(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.serverURL != "" {
		return f.serverURL, nil
	}

	var resp struct {
		Collection []struct {
			URL string `json:"url"`
		} `json:"collection"`
	}
	if err := f.Client.GetJSON(ctx, "imaging_server.json", &resp); err != nil {
		return "", fmt.Errorf("imaging server discovery: %w", err)
	}
	if len(resp.Collection) == 0 {
		return "", fmt.Errorf("imaging server discovery returned no servers")
	}
	f.serverURL = resp.Collection[0].URL
	return f.serverURL, nil
}

func (f *ZoomifyFetcher) Download(ctx context.Context, s *slide.Slide, r slide.Region, dest string) error {
	server, err := f.imagingServer(ctx)
	if err != nil {
		return err
	}
	col := r.X / slide.TileSize
	row := r.Y / slide.TileSize

	q := url.Values{
		"zoomify":  {s.Path},
		"mimeType": {s.Mime},
		"x":        {strconv.Itoa(col)},
		"y":        {strconv.Itoa(row)},
		"z":        {strconv.Itoa(s.ServerZoom())},
	}
	return f.Client.DownloadFile(ctx, server+"/image/tile", q, dest)
}

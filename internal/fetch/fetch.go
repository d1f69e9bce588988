// Package fetch implements the per-protocol tile download strategies.
//
// Every supported server protocol turns "(slide, pixel region) -> file on
// disk" behind the same Fetcher interface, so the assembly layer never
// inspects which protocol is in play.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/slidetools/slidestitch/internal/client"
	"github.com/slidetools/slidestitch/pkg/slide"
)

// Fetcher downloads the pixels of one region into dest. It is only called
// when dest does not exist yet; the cache layer above decides that.
type Fetcher interface {
	Download(ctx context.Context, s *slide.Slide, r slide.Region, dest string) error
}

// ErrSliceRequired is returned when a protocol needing a modern slide (one
// carrying a reference slice) is handed a legacy slide.
var ErrSliceRequired = errors.New("protocol requires a slide with a reference slice")

// ByName selects a fetcher implementation. Valid names are "window",
// "iip", "zoomify" and "pims".
func ByName(name string, c *client.Client) (Fetcher, error) {
	switch name {
	case "window":
		return &WindowFetcher{Client: c}, nil
	case "iip":
		return &IIPFetcher{Client: c}, nil
	case "zoomify":
		return &ZoomifyFetcher{Client: c}, nil
	case "pims":
		return &PIMSFetcher{Client: c}, nil
	default:
		return nil, fmt.Errorf("unknown tile protocol %q", name)
	}
}

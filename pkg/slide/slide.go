package slide

import "fmt"

// Channels is the number of color channels exposed by a slide. Remote slides
// are always served as RGB; an alpha channel is only ever added locally.
const Channels = 3

// SliceRef points at the reference slice of a modern slide. Older server
// versions have no slice representation and leave Slide.Slice nil.
type SliceRef struct {
	Path      string
	Mime      string
	ServerURL string
}

// Slide identifies a remote pyramidal image.
//
// Width and Height are the full-resolution dimensions. Zoom selects the
// pyramid level to read: 0 is the most detailed level and each increment
// halves the resolution. MaxZoom is the deepest level the server exposes,
// following the server convention where 0 is the most zoomed-out level.
type Slide struct {
	ID     int64
	Width  int
	Height int

	MaxZoom int
	Zoom    int

	Path      string
	Mime      string
	ServerURL string

	Slice *SliceRef
}

// NewSlide validates the zoom selection and returns the slide.
func NewSlide(s Slide) (*Slide, error) {
	if s.Zoom < 0 || s.Zoom > s.MaxZoom {
		return nil, fmt.Errorf("invalid zoom level selected (%d, max=%d)", s.Zoom, s.MaxZoom)
	}
	return &s, nil
}

// ServerZoom converts the local zoom level to the server's convention.
func (s *Slide) ServerZoom() int {
	return s.MaxZoom - s.Zoom
}

// ZoomedWidth is the slide width at the selected zoom level.
func (s *Slide) ZoomedWidth() int {
	return s.Width >> uint(s.Zoom)
}

// ZoomedHeight is the slide height at the selected zoom level.
func (s *Slide) ZoomedHeight() int {
	return s.Height >> uint(s.Zoom)
}

// Bounds is the whole slide as a region at the selected zoom level.
func (s *Slide) Bounds() Region {
	return Region{W: s.ZoomedWidth(), H: s.ZoomedHeight()}
}

func (s *Slide) String() string {
	return fmt.Sprintf("slide #%d (%d x %d) (zoom: %d)", s.ID, s.ZoomedWidth(), s.ZoomedHeight(), s.Zoom)
}

// Region is a pixel rectangle in absolute slide coordinates at the current
// zoom level. The origin is the top-left pixel of the slide.
type Region struct {
	X, Y int
	W, H int
}

// Window returns the sub-region at offset (dx, dy) of size at most w x h,
// clipped to the receiver's extent. Offsets compose additively, so the
// result is again expressed in absolute slide coordinates.
func (r Region) Window(dx, dy, w, h int) Region {
	if w > r.W-dx {
		w = r.W - dx
	}
	if h > r.H-dy {
		h = r.H - dy
	}
	return Region{X: r.X + dx, Y: r.Y + dy, W: w, H: h}
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d) %dx%d", r.X, r.Y, r.W, r.H)
}

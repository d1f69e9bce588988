package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/slidetools/slidestitch/internal/cache"
	"github.com/slidetools/slidestitch/pkg/mask"
	"github.com/slidetools/slidestitch/pkg/raster"
	"github.com/slidetools/slidestitch/pkg/slide"
)

// gridFetcher synthesizes tiles whose pixels are a pure function of their
// absolute slide coordinates, so any assembled window can be verified
// pixel by pixel. It counts downloads to observe cache behavior.
type gridFetcher struct {
	mu    sync.Mutex
	calls int
}

func pixelAt(x, y int) [3]uint8 {
	return [3]uint8{uint8((x*3 + y*7) % 251), uint8(x % 256), uint8(y % 256)}
}

func (f *gridFetcher) Download(ctx context.Context, s *slide.Slide, r slide.Region, dest string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	tile := raster.New(r.W, r.H, 3)
	for y := 0; y < r.H; y++ {
		for x := 0; x < r.W; x++ {
			px := pixelAt(r.X+x, r.Y+y)
			copy(tile.Pix[(y*r.W+x)*3:], px[:])
		}
	}
	return raster.WritePNG(dest, tile)
}

func (f *gridFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingFetcher struct {
	inner   *gridFetcher
	failCol int
	failRow int
}

func (f *failingFetcher) Download(ctx context.Context, s *slide.Slide, r slide.Region, dest string) error {
	if r.X/slide.TileSize == f.failCol && r.Y/slide.TileSize == f.failRow {
		return fmt.Errorf("simulated transport failure")
	}
	return f.inner.Download(ctx, s, r, dest)
}

func testSlide(t *testing.T) *slide.Slide {
	t.Helper()
	s, err := slide.NewSlide(slide.Slide{ID: 55, Width: 1000, Height: 1000, MaxZoom: 0})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newAssembler(t *testing.T, f *gridFetcher) *Assembler {
	t.Helper()
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return &Assembler{Cache: c, Fetcher: f, Workers: 4}
}

func verifyWindow(t *testing.T, r *raster.Raster, region slide.Region) {
	t.Helper()
	if r.Width != region.W || r.Height != region.H || r.Channels != 3 {
		t.Fatalf("raster shape = (%d,%d,%d), want (%d,%d,3)", r.Height, r.Width, r.Channels, region.H, region.W)
	}
	for y := 0; y < region.H; y++ {
		for x := 0; x < region.W; x++ {
			want := pixelAt(region.X+x, region.Y+y)
			got := r.Pix[(y*region.W+x)*3 : (y*region.W+x)*3+3]
			if got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestAssembleScenario1000x1000(t *testing.T) {
	f := &gridFetcher{}
	a := newAssembler(t, f)
	region := slide.Region{X: 300, Y: 300, W: 500, H: 500}

	out, err := a.Assemble(context.Background(), testSlide(t), region, nil)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	verifyWindow(t, out, region)

	// Super-window (256,256) 768x768 covers a 3x3 grid of tiles.
	if f.count() != 9 {
		t.Errorf("downloads = %d, want 9", f.count())
	}
}

func TestAssembleIsIdempotent(t *testing.T) {
	f := &gridFetcher{}
	a := newAssembler(t, f)
	s := testSlide(t)
	region := slide.Region{X: 300, Y: 300, W: 500, H: 500}

	first, err := a.Assemble(context.Background(), s, region, nil)
	if err != nil {
		t.Fatalf("first Assemble failed: %v", err)
	}
	downloads := f.count()

	second, err := a.Assemble(context.Background(), s, region, nil)
	if err != nil {
		t.Fatalf("second Assemble failed: %v", err)
	}
	if f.count() != downloads {
		t.Errorf("second call issued %d extra downloads, want 0", f.count()-downloads)
	}
	if !bytes.Equal(first.Pix, second.Pix) {
		t.Error("repeated assembly is not byte-identical")
	}
}

func TestAssembleOverlappingRequestsShareTiles(t *testing.T) {
	f := &gridFetcher{}
	a := newAssembler(t, f)
	s := testSlide(t)

	if _, err := a.Assemble(context.Background(), s, slide.Region{X: 300, Y: 300, W: 500, H: 500}, nil); err != nil {
		t.Fatal(err)
	}
	downloads := f.count()

	// Shifted window: its super-window overlaps the previous one except
	// for one new row and column of tiles.
	region := slide.Region{X: 100, Y: 100, W: 500, H: 500}
	out, err := a.Assemble(context.Background(), s, region, nil)
	if err != nil {
		t.Fatal(err)
	}
	verifyWindow(t, out, region)

	// New super-window is (0,0)-(768,768): 9 cells, 4 of them cached.
	if got := f.count() - downloads; got != 5 {
		t.Errorf("second request downloaded %d tiles, want 5", got)
	}
}

func TestAssembleEdgeWindowUsesClippedTiles(t *testing.T) {
	f := &gridFetcher{}
	a := newAssembler(t, f)
	// Window touching the 1000px slide edge: rightmost/bottom tiles decode
	// to 232px and are padded, but the crop must expose only real pixels.
	region := slide.Region{X: 900, Y: 900, W: 100, H: 100}

	out, err := a.Assemble(context.Background(), testSlide(t), region, nil)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	verifyWindow(t, out, region)
}

func TestAssembleSequentialWorker(t *testing.T) {
	f := &gridFetcher{}
	a := newAssembler(t, f)
	a.Workers = 1
	region := slide.Region{X: 10, Y: 20, W: 300, H: 300}

	out, err := a.Assemble(context.Background(), testSlide(t), region, nil)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	verifyWindow(t, out, region)
}

func TestAssembleAllParallelismSentinel(t *testing.T) {
	f := &gridFetcher{}
	a := newAssembler(t, f)
	a.Workers = 0
	region := slide.Region{X: 0, Y: 0, W: 512, H: 512}

	out, err := a.Assemble(context.Background(), testSlide(t), region, nil)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	verifyWindow(t, out, region)
}

func TestAssembleFailingTileAbortsWholeRegion(t *testing.T) {
	f := &failingFetcher{inner: &gridFetcher{}, failCol: 2, failRow: 2}
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a := &Assembler{Cache: c, Fetcher: f, Workers: 2}

	_, err = a.Assemble(context.Background(), testSlide(t), slide.Region{X: 300, Y: 300, W: 500, H: 500}, nil)
	if err == nil {
		t.Fatal("expected extraction failure")
	}
	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("error type = %T, want *ExtractionError", err)
	}
	if ee.Col != 2 || ee.Row != 2 {
		t.Errorf("failure names tile (%d,%d), want (2,2)", ee.Col, ee.Row)
	}
}

func TestAssembleRejectsWrongSizeTile(t *testing.T) {
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a := &Assembler{Cache: c, Fetcher: shrunkFetcher{}, Workers: 1}

	_, err = a.Assemble(context.Background(), testSlide(t), slide.Region{X: 0, Y: 0, W: 256, H: 256}, nil)
	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *ExtractionError", err)
	}
}

// shrunkFetcher always returns a 10x10 tile regardless of what was asked.
type shrunkFetcher struct{}

func (shrunkFetcher) Download(ctx context.Context, s *slide.Slide, r slide.Region, dest string) error {
	return raster.WritePNG(dest, raster.New(10, 10, 3))
}

func TestPrefetchWarmsCache(t *testing.T) {
	f := &gridFetcher{}
	a := newAssembler(t, f)
	s := testSlide(t)
	region := slide.Region{X: 300, Y: 300, W: 500, H: 500}

	if err := a.Prefetch(context.Background(), s, region); err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}
	if f.count() != 9 {
		t.Errorf("prefetch downloads = %d, want 9", f.count())
	}

	out, err := a.Assemble(context.Background(), s, region, nil)
	if err != nil {
		t.Fatalf("Assemble after prefetch failed: %v", err)
	}
	if f.count() != 9 {
		t.Errorf("assemble after prefetch downloaded %d more tiles, want 0", f.count()-9)
	}
	verifyWindow(t, out, region)
}

func TestConcurrentOverlappingAssemblies(t *testing.T) {
	f := &gridFetcher{}
	a := newAssembler(t, f)
	s := testSlide(t)

	regions := []slide.Region{
		{X: 100, Y: 100, W: 400, H: 400},
		{X: 300, Y: 300, W: 400, H: 400},
	}

	var wg sync.WaitGroup
	outs := make([]*raster.Raster, len(regions))
	errs := make([]error, len(regions))
	for i, r := range regions {
		wg.Add(1)
		go func(i int, r slide.Region) {
			defer wg.Done()
			outs[i], errs[i] = a.Assemble(context.Background(), s, r, nil)
		}(i, r)
	}
	wg.Wait()

	for i, r := range regions {
		if errs[i] != nil {
			t.Fatalf("assembly %d failed: %v", i, errs[i])
		}
		verifyWindow(t, outs[i], r)
	}
}

func TestAssembleWithPolygonMask(t *testing.T) {
	f := &gridFetcher{}
	a := newAssembler(t, f)
	region := slide.Region{X: 300, Y: 300, W: 100, H: 100}
	polygon := mask.Polygon{{X: 10, Y: 10}, {X: 90, Y: 10}, {X: 90, Y: 90}, {X: 10, Y: 90}}

	out, err := a.Assemble(context.Background(), testSlide(t), region, polygon)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if out.Channels != 4 {
		t.Fatalf("channels = %d, want 4", out.Channels)
	}
	if got := out.Pix[(50*100+50)*4+3]; got != 255 {
		t.Errorf("alpha inside polygon = %d, want 255", got)
	}
	if got := out.Pix[3]; got != 0 {
		t.Errorf("alpha outside polygon = %d, want 0", got)
	}
}

func TestAssembleCachedServesRepeatsFromDisk(t *testing.T) {
	f := &gridFetcher{}
	a := newAssembler(t, f)
	s := testSlide(t)
	region := slide.Region{X: 300, Y: 300, W: 120, H: 80}

	first, err := a.AssembleCached(context.Background(), s, region, nil)
	if err != nil {
		t.Fatalf("AssembleCached failed: %v", err)
	}

	// Swap in a fetcher that always fails: a repeat request must still
	// succeed because the whole result is memoized on disk.
	a.Fetcher = alwaysFail{}
	second, err := a.AssembleCached(context.Background(), s, region, nil)
	if err != nil {
		t.Fatalf("repeated AssembleCached failed: %v", err)
	}
	if !bytes.Equal(first.Pix, second.Pix) {
		t.Error("memoized result differs from the original")
	}
}

type alwaysFail struct{}

func (alwaysFail) Download(ctx context.Context, s *slide.Slide, r slide.Region, dest string) error {
	return fmt.Errorf("no network")
}

func TestAssembleEmptyRegion(t *testing.T) {
	a := newAssembler(t, &gridFetcher{})
	if _, err := a.Assemble(context.Background(), testSlide(t), slide.Region{X: 10, Y: 10}, nil); err == nil {
		t.Error("expected error for empty region")
	}
}

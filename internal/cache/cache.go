// Package cache memoizes downloaded tiles and assembled regions on disk.
//
// Entries are keyed by request coordinates only: content for a given key is
// byte-identical no matter who writes it, so concurrent writers racing on
// the same key are harmless. Entries are never invalidated; staleness is
// the caller's concern.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/slidetools/slidestitch/pkg/raster"
)

// Key identifies one cached image. Filenames are a pure function of the
// key, so identical requests always resolve to the same file and distinct
// requests never collide.
type Key struct {
	SlideID    int64
	Zoom       int
	X, Y, W, H int
	Alpha      bool
}

// Filename renders the key as {id}-{zoom}-{x}-{y}-{w}-{h}[-alpha].png.
func (k Key) Filename() string {
	name := fmt.Sprintf("%d-%d-%d-%d-%d-%d", k.SlideID, k.Zoom, k.X, k.Y, k.W, k.H)
	if k.Alpha {
		name += "-alpha"
	}
	return name + ".png"
}

func (k Key) String() string {
	return k.Filename()
}

// Cache is a flat directory of cached images.
type Cache struct {
	dir string
}

// New creates the working directory if needed and returns a cache over it.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache's working directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the location the key's image lives at, whether or not it
// exists yet.
func (c *Cache) Path(k Key) string {
	return filepath.Join(c.dir, k.Filename())
}

// Has reports whether an entry exists. Presence alone counts as a hit;
// a truncated entry left by an interrupted writer is not detected here.
func (c *Cache) Has(k Key) bool {
	info, err := os.Stat(c.Path(k))
	return err == nil && info.Mode().IsRegular()
}

// Put encodes r as PNG at the key's path unless an entry already exists.
// The file is written next to its final location and renamed into place so
// readers never observe a half-written entry.
func (c *Cache) Put(k Key, r *raster.Raster) error {
	if c.Has(k) {
		return nil
	}
	data, err := raster.EncodePNG(r)
	if err != nil {
		return err
	}
	return c.WriteAtomic(c.Path(k), data)
}

// Get decodes the cached entry for the key. A missing entry is an error;
// check Has first to treat it as a miss.
func (c *Cache) Get(k Key) (*raster.Raster, error) {
	channels := 3
	if k.Alpha {
		channels = 4
	}
	return raster.DecodeFile(c.Path(k), channels)
}

// WriteAtomic writes data to path via a temp file and rename.
func (c *Cache) WriteAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".tile-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

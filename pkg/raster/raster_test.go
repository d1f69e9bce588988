package raster

import (
	"bytes"
	"testing"
)

func fill(r *Raster, val uint8) {
	for i := range r.Pix {
		r.Pix[i] = val
	}
}

func TestDrawAtZeroPadsShortTiles(t *testing.T) {
	mosaic := New(512, 512, 3)

	// A clipped 200x100 edge tile drawn into a 256x256 slot leaves the
	// remainder of the slot zeroed.
	tile := New(200, 100, 3)
	fill(tile, 200)
	if err := mosaic.DrawAt(tile, 256, 256); err != nil {
		t.Fatalf("DrawAt failed: %v", err)
	}

	at := func(x, y int) uint8 { return mosaic.Pix[(y*mosaic.Width+x)*3] }
	if got := at(256, 256); got != 200 {
		t.Errorf("pixel inside tile = %d, want 200", got)
	}
	if got := at(455, 355); got != 200 {
		t.Errorf("last tile pixel = %d, want 200", got)
	}
	if got := at(456, 256); got != 0 {
		t.Errorf("padding right of tile = %d, want 0", got)
	}
	if got := at(256, 356); got != 0 {
		t.Errorf("padding below tile = %d, want 0", got)
	}
}

func TestDrawAtBoundsChecks(t *testing.T) {
	mosaic := New(256, 256, 3)
	tile := New(100, 100, 3)
	if err := mosaic.DrawAt(tile, 200, 200); err == nil {
		t.Error("expected error drawing past the mosaic extent")
	}
	rgba := New(10, 10, 4)
	if err := mosaic.DrawAt(rgba, 0, 0); err == nil {
		t.Error("expected error on channel mismatch")
	}
}

func TestCrop(t *testing.T) {
	r := New(8, 8, 3)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			r.Pix[(y*8+x)*3] = uint8(y*8 + x)
		}
	}
	c, err := r.Crop(2, 3, 4, 2)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if c.Width != 4 || c.Height != 2 || c.Channels != 3 {
		t.Fatalf("crop shape = %dx%dx%d, want 4x2x3", c.Width, c.Height, c.Channels)
	}
	if c.Pix[0] != 26 {
		t.Errorf("crop origin sample = %d, want 26", c.Pix[0])
	}
	if c.Pix[(1*4+3)*3] != 37 {
		t.Errorf("crop far corner sample = %d, want 37", c.Pix[(1*4+3)*3])
	}

	if _, err := r.Crop(5, 5, 10, 10); err == nil {
		t.Error("expected error cropping past the raster extent")
	}
}

func TestWithAlpha(t *testing.T) {
	r := New(2, 2, 3)
	fill(r, 7)
	alpha := []uint8{0, 255, 128, 0}
	out, err := r.WithAlpha(alpha)
	if err != nil {
		t.Fatalf("WithAlpha failed: %v", err)
	}
	if out.Channels != 4 {
		t.Fatalf("channels = %d, want 4", out.Channels)
	}
	for i, want := range alpha {
		if out.Pix[i*4+3] != want {
			t.Errorf("alpha[%d] = %d, want %d", i, out.Pix[i*4+3], want)
		}
		if out.Pix[i*4] != 7 {
			t.Errorf("color[%d] = %d, want 7", i, out.Pix[i*4])
		}
	}

	if _, err := out.WithAlpha(alpha); err == nil {
		t.Error("expected error adding alpha to a 4-channel raster")
	}
}

func TestPNGRoundTrip(t *testing.T) {
	r := New(5, 3, 3)
	for i := range r.Pix {
		r.Pix[i] = uint8(i * 7)
	}
	data, err := EncodePNG(r)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	back, err := Decode(data, 3)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if back.Width != 5 || back.Height != 3 || back.Channels != 3 {
		t.Fatalf("shape = %dx%dx%d, want 5x3x3", back.Width, back.Height, back.Channels)
	}
	if !bytes.Equal(back.Pix, r.Pix) {
		t.Error("decoded pixels differ from the encoded raster")
	}
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	if _, err := Decode([]byte("not an image"), 3); err == nil {
		t.Error("expected error for unrecognized bytes")
	}
}

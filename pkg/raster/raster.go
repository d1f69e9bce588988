package raster

import "fmt"

// Raster is a dense 8-bit pixel buffer in row-major order. Pix holds
// Width*Height*Channels bytes; the pixel at (x, y) starts at index
// (y*Width+x)*Channels.
type Raster struct {
	Pix      []uint8
	Width    int
	Height   int
	Channels int
}

// New allocates a zeroed raster.
func New(width, height, channels int) *Raster {
	return &Raster{
		Pix:      make([]uint8, width*height*channels),
		Width:    width,
		Height:   height,
		Channels: channels,
	}
}

// DrawAt copies src into r with its top-left corner at (dx, dy). The
// destination slot may be larger than src; bytes outside src's extent are
// left untouched, so a smaller edge tile drawn into a zeroed mosaic comes
// out zero-padded on the bottom and right.
func (r *Raster) DrawAt(src *Raster, dx, dy int) error {
	if src.Channels != r.Channels {
		return fmt.Errorf("channel mismatch: src has %d, dst has %d", src.Channels, r.Channels)
	}
	if dx < 0 || dy < 0 || dx+src.Width > r.Width || dy+src.Height > r.Height {
		return fmt.Errorf("draw of %dx%d at (%d,%d) exceeds %dx%d raster",
			src.Width, src.Height, dx, dy, r.Width, r.Height)
	}
	for y := 0; y < src.Height; y++ {
		srcRow := src.Pix[y*src.Width*src.Channels : (y+1)*src.Width*src.Channels]
		dstOff := ((dy+y)*r.Width + dx) * r.Channels
		copy(r.Pix[dstOff:dstOff+len(srcRow)], srcRow)
	}
	return nil
}

// Crop returns a copy of the w x h rectangle at (x, y).
func (r *Raster) Crop(x, y, w, h int) (*Raster, error) {
	if x < 0 || y < 0 || x+w > r.Width || y+h > r.Height {
		return nil, fmt.Errorf("crop of %dx%d at (%d,%d) exceeds %dx%d raster",
			w, h, x, y, r.Width, r.Height)
	}
	out := New(w, h, r.Channels)
	for row := 0; row < h; row++ {
		srcOff := ((y+row)*r.Width + x) * r.Channels
		dstOff := row * w * r.Channels
		copy(out.Pix[dstOff:dstOff+w*r.Channels], r.Pix[srcOff:srcOff+w*r.Channels])
	}
	return out, nil
}

// WithAlpha appends alpha as a fourth channel to a 3-channel raster.
func (r *Raster) WithAlpha(alpha []uint8) (*Raster, error) {
	if r.Channels != 3 {
		return nil, fmt.Errorf("alpha channel requires a 3-channel raster, got %d channels", r.Channels)
	}
	if len(alpha) != r.Width*r.Height {
		return nil, fmt.Errorf("alpha plane has %d samples, want %d", len(alpha), r.Width*r.Height)
	}
	out := New(r.Width, r.Height, 4)
	for i := 0; i < r.Width*r.Height; i++ {
		copy(out.Pix[i*4:], r.Pix[i*3:i*3+3])
		out.Pix[i*4+3] = alpha[i]
	}
	return out, nil
}

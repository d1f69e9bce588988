package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
)

// Decode detects the image format by its magic bytes and decodes it into a
// raster with the requested channel count (3 for RGB, 4 for RGBA). Tiles
// arriving with an alpha channel keep only their first three channels when
// channels is 3; opaque images decoded with channels 4 get a 255 alpha.
func Decode(data []byte, channels int) (*Raster, error) {
	var (
		img image.Image
		err error
	)
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x89, 0x50, 0x4E, 0x47}):
		img, err = png.Decode(bytes.NewReader(data))
	case len(data) >= 2 && bytes.Equal(data[:2], []byte{0xFF, 0xD8}):
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unrecognized image format")
	}
	if err != nil {
		return nil, err
	}
	return fromImage(img, channels)
}

// DecodeFile decodes the image stored at path.
func DecodeFile(path string, channels int) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data, channels)
}

func fromImage(img image.Image, channels int) (*Raster, error) {
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	bounds := img.Bounds()
	out := New(bounds.Dx(), bounds.Dy(), channels)

	// Translucent PNGs decode as NRGBA; read them directly so the stored
	// values stay non-premultiplied.
	if nrgba, ok := img.(*image.NRGBA); ok && channels == 4 {
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				px := nrgba.NRGBAAt(x, y)
				out.Pix[i] = px.R
				out.Pix[i+1] = px.G
				out.Pix[i+2] = px.B
				out.Pix[i+3] = px.A
				i += 4
			}
		}
		return out, nil
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			out.Pix[i] = uint8(r >> 8)
			out.Pix[i+1] = uint8(g >> 8)
			out.Pix[i+2] = uint8(b >> 8)
			if channels == 4 {
				out.Pix[i+3] = uint8(a >> 8)
			}
			i += channels
		}
	}
	return out, nil
}

// EncodePNG encodes the raster losslessly. Fully opaque 3-channel rasters
// come out as truecolor PNGs without an alpha plane.
func EncodePNG(r *Raster) ([]byte, error) {
	img, err := toImage(r)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePNG encodes the raster and writes it to path.
func WritePNG(path string, r *Raster) error {
	data, err := EncodePNG(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func toImage(r *Raster) (image.Image, error) {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	switch r.Channels {
	case 3:
		for i := 0; i < r.Width*r.Height; i++ {
			img.Pix[i*4] = r.Pix[i*3]
			img.Pix[i*4+1] = r.Pix[i*3+1]
			img.Pix[i*4+2] = r.Pix[i*3+2]
			img.Pix[i*4+3] = 255
		}
	case 4:
		copy(img.Pix, r.Pix)
	case 1:
		gray := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
		copy(gray.Pix, r.Pix)
		return gray, nil
	default:
		return nil, fmt.Errorf("cannot encode raster with %d channels", r.Channels)
	}
	return img, nil
}

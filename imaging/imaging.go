// Package imaging builds image XObjects from common raster formats.
// JPEG data passes through untouched behind DCTDecode; PNG and TIFF
// are decoded and re-encoded as FlateDecode RGB or grayscale samples.
package imaging

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/quillpdf/quill/object"
)

// Image is a decoded picture ready to become an XObject.
type Image struct {
	Width  int
	Height int
	// gray selects a single-component DeviceGray image.
	gray bool
	// dct holds the original JPEG data when pass-through applies.
	dct     []byte
	samples []byte
}

// Decode sniffs and decodes data. JPEG input is kept verbatim so the
// XObject can embed it without a generation loss.
func Decode(data []byte) (*Image, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}):
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode jpeg: %w", err)
		}
		return &Image{Width: cfg.Width, Height: cfg.Height, dct: data}, nil
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode png: %w", err)
		}
		return fromImage(img), nil
	case bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")):
		img, err := tiff.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode tiff: %w", err)
		}
		return fromImage(img), nil
	}
	return nil, fmt.Errorf("unrecognized image format")
}

// FromImage wraps an already-decoded picture.
func FromImage(img image.Image) *Image { return fromImage(img) }

func fromImage(img image.Image) *Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch src := img.(type) {
	case *image.Gray:
		samples := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(samples[y*w:], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return &Image{Width: w, Height: h, gray: true, samples: samples}
	}
	samples := make([]byte, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			samples = append(samples, byte(r>>8), byte(g>>8), byte(bl>>8))
		}
	}
	return &Image{Width: w, Height: h, samples: samples}
}

// Downsample scales the image so that neither dimension exceeds max,
// preserving aspect ratio. JPEG pass-through data is re-encoded.
func (im *Image) Downsample(max int) (*Image, error) {
	if max <= 0 || (im.Width <= max && im.Height <= max) {
		return im, nil
	}
	src, err := im.decoded()
	if err != nil {
		return nil, err
	}
	w, h := im.Width, im.Height
	if w >= h {
		h = h * max / w
		w = max
	} else {
		w = w * max / h
		h = max
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return fromImage(dst), nil
}

func (im *Image) decoded() (image.Image, error) {
	if im.dct != nil {
		return jpeg.Decode(bytes.NewReader(im.dct))
	}
	if im.gray {
		out := image.NewGray(image.Rect(0, 0, im.Width, im.Height))
		copy(out.Pix, im.samples)
		return out, nil
	}
	out := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	for i := 0; i < im.Width*im.Height; i++ {
		out.Pix[i*4] = im.samples[i*3]
		out.Pix[i*4+1] = im.samples[i*3+1]
		out.Pix[i*4+2] = im.samples[i*3+2]
		out.Pix[i*4+3] = 0xFF
	}
	return out, nil
}

// XObject builds the image XObject stream: DCTDecode pass-through for
// JPEG, FlateDecode samples otherwise.
func (im *Image) XObject() (*object.Stream, error) {
	dict := object.NewDict()
	dict.Set("Type", object.Name("XObject"))
	dict.Set("Subtype", object.Name("Image"))
	dict.Set("Width", object.Integer(im.Width))
	dict.Set("Height", object.Integer(im.Height))
	dict.Set("BitsPerComponent", object.Integer(8))

	if im.dct != nil {
		dict.Set("ColorSpace", object.Name("DeviceRGB"))
		dict.Set("Filter", object.Name("DCTDecode"))
		return object.NewStream(dict, im.dct), nil
	}

	if im.gray {
		dict.Set("ColorSpace", object.Name("DeviceGray"))
	} else {
		dict.Set("ColorSpace", object.Name("DeviceRGB"))
	}
	dict.Set("Filter", object.Name("FlateDecode"))
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(im.samples); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return object.NewStream(dict, buf.Bytes()), nil
}

package optimize

import (
	"bytes"
	"compress/zlib"
	"image"
	"io"

	"github.com/quillpdf/quill/imaging"
	"github.com/quillpdf/quill/object"
)

// DownsampleImages rescales every image XObject whose width or height
// exceeds maxDim, preserving aspect ratio, and returns the number of
// images rewritten. Images in unsupported encodings are left alone.
func DownsampleImages(doc *object.Document, maxDim int) (int, error) {
	count := 0
	for _, ref := range doc.Refs() {
		obj, err := doc.Resolve(ref)
		if err != nil {
			return count, err
		}
		st, ok := obj.(*object.Stream)
		if !ok {
			continue
		}
		if sub, _ := st.Dict.GetName("Subtype"); sub != "Image" {
			continue
		}
		w, _ := st.Dict.GetInt("Width")
		h, _ := st.Dict.GetInt("Height")
		if int(w) <= maxDim && int(h) <= maxDim {
			continue
		}
		img, ok, err := imageFromStream(st)
		if err != nil {
			return count, err
		}
		if !ok {
			continue
		}
		small, err := img.Downsample(maxDim)
		if err != nil {
			return count, err
		}
		xo, err := small.XObject()
		if err != nil {
			return count, err
		}
		if _, err := doc.Replace(ref, xo); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// imageFromStream reconstructs a decodable image from an XObject.
// Supported encodings are DCTDecode pass-through and FlateDecode with
// 8-bit DeviceRGB or DeviceGray samples.
func imageFromStream(st *object.Stream) (*imaging.Image, bool, error) {
	filter, _ := st.Dict.GetName("Filter")
	switch filter {
	case "DCTDecode":
		img, err := imaging.Decode(st.Data)
		if err != nil {
			return nil, false, err
		}
		return img, true, nil
	case "FlateDecode":
	default:
		return nil, false, nil
	}
	if bpc, _ := st.Dict.GetInt("BitsPerComponent"); bpc != 8 {
		return nil, false, nil
	}
	w, _ := st.Dict.GetInt("Width")
	h, _ := st.Dict.GetInt("Height")
	zr, err := zlib.NewReader(bytes.NewReader(st.Data))
	if err != nil {
		return nil, false, err
	}
	samples, err := io.ReadAll(zr)
	if err != nil {
		return nil, false, err
	}
	width, height := int(w), int(h)
	cs, _ := st.Dict.GetName("ColorSpace")
	switch cs {
	case "DeviceGray":
		if len(samples) < width*height {
			return nil, false, nil
		}
		img := image.NewGray(image.Rect(0, 0, width, height))
		copy(img.Pix, samples)
		return imaging.FromImage(img), true, nil
	case "DeviceRGB":
		if len(samples) < width*height*3 {
			return nil, false, nil
		}
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for i := 0; i < width*height; i++ {
			img.Pix[i*4] = samples[i*3]
			img.Pix[i*4+1] = samples[i*3+1]
			img.Pix[i*4+2] = samples[i*3+2]
			img.Pix[i*4+3] = 0xFF
		}
		return imaging.FromImage(img), true, nil
	}
	return nil, false, nil
}

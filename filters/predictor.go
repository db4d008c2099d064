package filters

import (
	"errors"
	"fmt"

	"github.com/quillpdf/quill/object"
)

// applyPredictor undoes the predictor declared in a Flate or LZW
// decode parameter dictionary. Predictor 1 (none) and the PNG
// predictors 10-15 are supported; TIFF predictor 2 is limited to
// 8-bit components.
func applyPredictor(data []byte, params *object.Dict) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor, ok := params.GetInt("Predictor")
	if !ok || predictor <= 1 {
		return data, nil
	}
	colors := int64(1)
	if v, ok := params.GetInt("Colors"); ok {
		colors = v
	}
	bpc := int64(8)
	if v, ok := params.GetInt("BitsPerComponent"); ok {
		bpc = v
	}
	columns := int64(1)
	if v, ok := params.GetInt("Columns"); ok {
		columns = v
	}
	bytesPerPixel := int((colors*bpc + 7) / 8)
	rowLen := int((colors*bpc*columns + 7) / 8)
	if rowLen <= 0 || bytesPerPixel <= 0 {
		return nil, errors.New("invalid predictor parameters")
	}

	if predictor == 2 {
		if bpc != 8 {
			return nil, fmt.Errorf("TIFF predictor with %d bits per component not supported", bpc)
		}
		if len(data)%rowLen != 0 {
			return nil, errors.New("data length not a row multiple")
		}
		for r := 0; r < len(data); r += rowLen {
			row := data[r : r+rowLen]
			for i := bytesPerPixel; i < len(row); i++ {
				row[i] += row[i-bytesPerPixel]
			}
		}
		return data, nil
	}
	if predictor < 10 || predictor > 15 {
		return nil, fmt.Errorf("unsupported predictor %d", predictor)
	}

	// PNG predictors carry a per-row filter type byte.
	stride := rowLen + 1
	if len(data)%stride != 0 {
		return nil, errors.New("data length not a row multiple")
	}
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*stride]
		copy(cur, data[r*stride+1:(r+1)*stride])
		switch ft {
		case 0: // none
		case 1: // sub
			for i := bytesPerPixel; i < rowLen; i++ {
				cur[i] += cur[i-bytesPerPixel]
			}
		case 2: // up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // average
			for i := 0; i < rowLen; i++ {
				var left int
				if i >= bytesPerPixel {
					left = int(cur[i-bytesPerPixel])
				}
				cur[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft int
				if i >= bytesPerPixel {
					left = int(cur[i-bytesPerPixel])
					upLeft = int(prev[i-bytesPerPixel])
				}
				cur[i] += paeth(left, int(prev[i]), upLeft)
			}
		default:
			return nil, fmt.Errorf("invalid PNG filter type %d", ft)
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c int) byte {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	if pa <= pb && pa <= pc {
		return byte(a)
	}
	if pb <= pc {
		return byte(b)
	}
	return byte(c)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

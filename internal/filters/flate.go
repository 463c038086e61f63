package filters

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// FlateDecode decompresses zlib/deflate encoded data and applies any
// predictor requested in params. Recognized keys are Predictor, Columns,
// Colors and BitsPerComponent, matching the stream dictionary's
// /DecodeParms entries.
func FlateDecode(data []byte, params Params) ([]byte, error) {
	decoded, err := zlibDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("flate: decompress: %w", err)
	}

	predictor := getIntParam(params, "Predictor", 1)
	if predictor <= 1 {
		return decoded, nil
	}

	columns := getIntParam(params, "Columns", 1)
	colors := getIntParam(params, "Colors", 1)
	bpc := getIntParam(params, "BitsPerComponent", 8)

	return applyPredictor(decoded, predictor, columns, colors, bpc)
}

// FlateEncode compresses data with zlib at the default compression level.
func FlateEncode(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}

// zlibDecompress inflates data, tolerating a truncated tail after valid
// output. Producers in the wild frequently drop the final checksum.
func zlibDecompress(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	decoded, err := io.ReadAll(zr)
	if err != nil && len(decoded) == 0 {
		return nil, err
	}
	return decoded, nil
}

// applyPredictor reverses a TIFF (2) or PNG (10..15) predictor applied
// before compression.
func applyPredictor(data []byte, predictor, columns, colors, bpc int) ([]byte, error) {
	if columns <= 0 || colors <= 0 || bpc <= 0 {
		return nil, fmt.Errorf("flate: invalid predictor parameters columns=%d colors=%d bpc=%d", columns, colors, bpc)
	}

	bytesPerPixel := (colors*bpc + 7) / 8
	rowLength := (columns*colors*bpc + 7) / 8

	if predictor == 2 {
		return applyTIFFPredictor(data, rowLength, colors, bpc)
	}
	if predictor >= 10 && predictor <= 15 {
		return applyPNGPredictor(data, rowLength, bytesPerPixel)
	}
	return nil, fmt.Errorf("flate: unsupported predictor %d", predictor)
}

// applyTIFFPredictor reverses horizontal differencing. Only 8-bit
// components are handled; other depths pass through unchanged.
func applyTIFFPredictor(data []byte, rowLength, colors, bpc int) ([]byte, error) {
	if bpc != 8 {
		return data, nil
	}
	for row := 0; row+rowLength <= len(data); row += rowLength {
		for i := colors; i < rowLength; i++ {
			data[row+i] += data[row+i-colors]
		}
	}
	return data, nil
}

// applyPNGPredictor reverses per-row PNG filtering. Every row is prefixed
// with a filter type byte which is stripped from the output.
func applyPNGPredictor(data []byte, rowLength, bytesPerPixel int) ([]byte, error) {
	if rowLength <= 0 {
		return nil, fmt.Errorf("flate: invalid row length %d", rowLength)
	}

	stride := rowLength + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLength)
	prev := make([]byte, rowLength)

	for offset := 0; offset+stride <= len(data); offset += stride {
		filter := data[offset]
		row := make([]byte, rowLength)
		copy(row, data[offset+1:offset+stride])

		switch filter {
		case 0: // None
		case 1: // Sub
			for i := bytesPerPixel; i < rowLength; i++ {
				row[i] += row[i-bytesPerPixel]
			}
		case 2: // Up
			for i := 0; i < rowLength; i++ {
				row[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLength; i++ {
				left := 0
				if i >= bytesPerPixel {
					left = int(row[i-bytesPerPixel])
				}
				row[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLength; i++ {
				var left, upLeft byte
				if i >= bytesPerPixel {
					left = row[i-bytesPerPixel]
					upLeft = prev[i-bytesPerPixel]
				}
				row[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("flate: unknown PNG filter type %d", filter)
		}

		out = append(out, row...)
		copy(prev, row)
	}

	return out, nil
}

// paeth is the PNG Paeth predictor function.
func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

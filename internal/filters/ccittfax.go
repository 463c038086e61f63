package filters

import (
	"bytes"
	"io"

	"golang.org/x/image/ccitt"
)

// CCITTFaxDecode decodes CCITT Group 3/4 fax compressed data, the usual
// encoding for bi-level scanned images.
//
// Recognized params keys:
//   - K: group selector (<0 Group 4, otherwise Group 3)
//   - Columns: image width in pixels (default 1728)
//   - Rows: image height in pixels (0 auto-detects)
//   - BlackIs1: bit sense (maps to ccitt.Options.Invert)
func CCITTFaxDecode(data []byte, params Params) ([]byte, error) {
	columns := getIntParam(params, "Columns", 1728)
	rows := getIntParam(params, "Rows", 0)
	k := getIntParam(params, "K", 0)
	blackIs1 := getBoolParam(params, "BlackIs1", false)

	var sf ccitt.SubFormat
	if k < 0 {
		sf = ccitt.Group4
	} else {
		sf = ccitt.Group3
	}

	if rows == 0 {
		rows = ccitt.AutoDetectHeight
	}

	// Bit order in PDF streams is MSB first.
	opts := &ccitt.Options{Invert: blackIs1}
	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sf, columns, rows, opts)
	return io.ReadAll(r)
}

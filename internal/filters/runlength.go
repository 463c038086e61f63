package filters

import (
	"bytes"
	"fmt"
)

// RunLengthDecode decodes run-length encoded data. A length byte 0..127
// means copy the next length+1 bytes literally; 129..255 means repeat the
// next byte 257-length times; 128 marks end of data.
func RunLengthDecode(data []byte) ([]byte, error) {
	out := []byte{}

	i := 0
	for i < len(data) {
		length := data[i]
		i++

		if length == 128 {
			return out, nil
		}

		if length < 128 {
			n := int(length) + 1
			if i+n > len(data) {
				return nil, fmt.Errorf("runlength: literal run of %d bytes exceeds input", n)
			}
			out = append(out, data[i:i+n]...)
			i += n
			continue
		}

		if i >= len(data) {
			return nil, fmt.Errorf("runlength: repeat run missing byte")
		}
		n := 257 - int(length)
		out = append(out, bytes.Repeat(data[i:i+1], n)...)
		i++
	}

	// Missing EOD marker; tolerate and return what was decoded.
	return out, nil
}

// RunLengthEncode encodes data using run-length encoding and appends the
// end-of-data marker. Runs of three or more identical bytes are emitted as
// repeat runs; everything else is emitted literally.
func RunLengthEncode(data []byte) []byte {
	var out bytes.Buffer

	i := 0
	for i < len(data) {
		// Measure the run of identical bytes starting at i, capped at 128.
		run := 1
		for i+run < len(data) && run < 128 && data[i+run] == data[i] {
			run++
		}

		if run >= 3 {
			out.WriteByte(byte(257 - run))
			out.WriteByte(data[i])
			i += run
			continue
		}

		// Collect a literal run until the next repeat of 3+, capped at 128.
		start := i
		i += run
		for i < len(data) && i-start < 128 {
			run = 1
			for i+run < len(data) && data[i+run] == data[i] {
				run++
			}
			if run >= 3 {
				break
			}
			i += run
		}
		if i-start > 128 {
			i = start + 128
		}
		out.WriteByte(byte(i - start - 1))
		out.Write(data[start:i])
	}

	out.WriteByte(128)
	return out.Bytes()
}

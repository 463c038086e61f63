package filters

import (
	"bytes"
	"fmt"
)

// ASCIIHexDecode decodes ASCII hexadecimal encoded data. Each pair of hex
// digits produces one byte; whitespace between digits is ignored and '>'
// marks end of data. An odd trailing digit is treated as if followed by 0.
func ASCIIHexDecode(data []byte) ([]byte, error) {
	out := []byte{}
	var hi byte
	havePair := false

	for i := 0; i < len(data); i++ {
		c := data[i]
		if isWhitespace(c) {
			continue
		}
		if c == '>' {
			break
		}
		v, err := hexDigitValue(c)
		if err != nil {
			return nil, err
		}
		if !havePair {
			hi = v
			havePair = true
		} else {
			out = append(out, hi<<4|v)
			havePair = false
		}
	}

	// Odd digit count: the final digit is the high nibble.
	if havePair {
		out = append(out, hi<<4)
	}

	return out, nil
}

// ASCIIHexEncode encodes data as ASCII hex pairs terminated with '>'.
func ASCIIHexEncode(data []byte) []byte {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(data)*2+1)
	for _, b := range data {
		out = append(out, digits[b>>4], digits[b&0x0f])
	}
	return append(out, '>')
}

// ASCII85Decode decodes base-85 encoded data. Each group of 5 characters in
// the range '!'..'u' represents 4 bytes; 'z' is shorthand for four zero
// bytes; "~>" marks end of data. A final partial group of n characters
// (2 ≤ n ≤ 4) yields n-1 bytes.
func ASCII85Decode(data []byte) ([]byte, error) {
	out := []byte{}
	var group [5]byte
	n := 0

	flush := func(count int) error {
		// Pad the group with the highest digit so truncation rounds down.
		for i := count; i < 5; i++ {
			group[i] = 84
		}
		value := uint64(0)
		for _, d := range group {
			value = value*85 + uint64(d)
		}
		// Groups above "s8W-!" exceed 32 bits and have no byte encoding.
		if value > 0xFFFFFFFF {
			return fmt.Errorf("ascii85: group value exceeds 32 bits")
		}
		for j := 0; j < count-1; j++ {
			out = append(out, byte(value>>(24-j*8)))
		}
		return nil
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		if isWhitespace(c) {
			continue
		}
		if c == '~' {
			break
		}
		if c == 'z' {
			if n != 0 {
				return nil, fmt.Errorf("ascii85: 'z' inside group")
			}
			out = append(out, 0, 0, 0, 0)
			continue
		}
		if c < '!' || c > 'u' {
			return nil, fmt.Errorf("ascii85: invalid character %q", c)
		}
		group[n] = c - '!'
		n++
		if n == 5 {
			if err := flush(5); err != nil {
				return nil, err
			}
			n = 0
		}
	}

	if n == 1 {
		return nil, fmt.Errorf("ascii85: truncated final group")
	}
	if n > 1 {
		if err := flush(n); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// ASCII85Encode encodes data as base-85 terminated with "~>". Full groups
// of four zero bytes are emitted as 'z'.
func ASCII85Encode(data []byte) []byte {
	var out bytes.Buffer

	for len(data) > 0 {
		n := 4
		if len(data) < 4 {
			n = len(data)
		}

		var chunk [4]byte
		copy(chunk[:], data[:n])
		value := uint32(chunk[0])<<24 | uint32(chunk[1])<<16 | uint32(chunk[2])<<8 | uint32(chunk[3])

		if n == 4 && value == 0 {
			out.WriteByte('z')
			data = data[4:]
			continue
		}

		var digits [5]byte
		for i := 4; i >= 0; i-- {
			digits[i] = byte(value%85) + '!'
			value /= 85
		}
		out.Write(digits[:n+1])
		data = data[n:]
	}

	out.WriteString("~>")
	return out.Bytes()
}

// hexDigitValue converts a hexadecimal character to its numeric value.
func hexDigitValue(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("asciihex: invalid hex digit %q", c)
	}
}

// isWhitespace reports whether c is a PDF whitespace character.
func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDecodeTextString tests UTF-16BE and PDFDocEncoding forms.
func TestDecodeTextString(t *testing.T) {
	tests := []struct {
		name  string
		input String
		want  string
	}{
		{
			name:  "ascii",
			input: String("Hello"),
			want:  "Hello",
		},
		{
			name:  "utf16be with bom",
			input: String([]byte{0xFE, 0xFF, 0x00, 'H', 0x00, 'i'}),
			want:  "Hi",
		},
		{
			name:  "utf16be non-latin",
			input: String([]byte{0xFE, 0xFF, 0x30, 0x42}),
			want:  "あ",
		},
		{
			name:  "pdfdoc bullet",
			input: String([]byte{0x80}),
			want:  "•",
		},
		{
			name:  "pdfdoc em dash",
			input: String([]byte{'a', 0x84, 'b'}),
			want:  "a—b",
		},
		{
			name:  "pdfdoc euro",
			input: String([]byte{0xA0}),
			want:  "€",
		},
		{
			name:  "latin1 passthrough",
			input: String([]byte{0xE9}),
			want:  "é",
		},
		{
			name:  "empty",
			input: String(""),
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeTextString(tt.input))
		})
	}
}

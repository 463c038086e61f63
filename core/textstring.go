package core

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// DecodeTextString converts a PDF text string (document metadata, outline
// titles) to UTF-8. Strings opening with a UTF-16BE byte order mark are
// decoded as UTF-16; everything else is PDFDocEncoding.
func DecodeTextString(s String) string {
	raw := []byte(s)

	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(raw); err == nil {
			return string(out)
		}
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		if r, ok := pdfDocDifferences[c]; ok {
			b.WriteRune(r)
			continue
		}
		b.WriteRune(rune(c))
	}
	return b.String()
}

// pdfDocDifferences holds the code points where PDFDocEncoding departs
// from Latin-1.
var pdfDocDifferences = map[byte]rune{
	0x18: '˘', // breve
	0x19: 'ˇ', // caron
	0x1A: 'ˆ', // circumflex accent
	0x1B: '˙', // dot above
	0x1C: '˝', // double acute
	0x1D: '˛', // ogonek
	0x1E: '˚', // ring above
	0x1F: '˜', // small tilde
	0x80: '•', // bullet
	0x81: '†', // dagger
	0x82: '‡', // double dagger
	0x83: '…', // ellipsis
	0x84: '—', // em dash
	0x85: '–', // en dash
	0x86: 'ƒ', // f hook
	0x87: '⁄', // fraction slash
	0x88: '‹', // single left guillemet
	0x89: '›', // single right guillemet
	0x8A: '−', // minus
	0x8B: '‰', // per mille
	0x8C: '„', // low double quote
	0x8D: '“', // left double quote
	0x8E: '”', // right double quote
	0x8F: '‘', // left single quote
	0x90: '’', // right single quote
	0x91: '‚', // low single quote
	0x92: '™', // trademark
	0x93: 'ﬁ', // fi ligature
	0x94: 'ﬂ', // fl ligature
	0x95: 'Ł', // L stroke
	0x96: 'Œ', // OE
	0x97: 'Š', // S caron
	0x98: 'Ÿ', // Y diaeresis
	0x99: 'Ž', // Z caron
	0x9A: 'ı', // dotless i
	0x9B: 'ł', // l stroke
	0x9C: 'œ', // oe
	0x9D: 'š', // s caron
	0x9E: 'ž', // z caron
	0xA0: '€', // euro
}

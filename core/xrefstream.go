package core

import (
	"bytes"
	"fmt"
)

// parseXRefStream parses a cross-reference stream object at offset. The
// stream is filter-decoded, then its fixed-width binary rows are expanded
// into entries according to /W and /Index. The stream dictionary doubles
// as the section's trailer.
func (x *XRefParser) parseXRefStream(offset int64) (*XRefTable, error) {
	parser := NewParser(bytes.NewReader(x.data[offset:]))
	indirect, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("xref stream at %d: %w", offset, err)
	}

	stream, ok := indirect.Object.(*Stream)
	if !ok {
		return nil, malformed("xref section at %d is %s, want stream", offset, indirect.Object.Type())
	}
	if typeName, _ := stream.Dict.GetName("Type"); typeName != "XRef" {
		return nil, malformed("xref stream at %d has /Type /%s", offset, typeName)
	}

	widths, err := xrefStreamWidths(stream.Dict)
	if err != nil {
		return nil, err
	}

	size, ok := stream.Dict.GetInt("Size")
	if !ok || size < 0 {
		return nil, malformed("xref stream missing /Size")
	}

	subsections, err := xrefStreamIndex(stream.Dict, int(size))
	if err != nil {
		return nil, err
	}

	decoded, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("xref stream decode: %w", err)
	}

	rowLen := widths[0] + widths[1] + widths[2]
	if rowLen == 0 {
		return nil, malformed("xref stream /W is all zeros")
	}

	table := NewXRefTable()
	table.Trailer = stream.Dict

	pos := 0
	for _, sub := range subsections {
		for i := 0; i < sub.count; i++ {
			if pos+rowLen > len(decoded) {
				return nil, malformed("xref stream data truncated at row for object %d", sub.first+i)
			}
			row := decoded[pos : pos+rowLen]
			pos += rowLen

			entry, err := decodeXRefStreamRow(row, widths)
			if err != nil {
				return nil, err
			}
			table.Set(sub.first+i, entry)
		}
	}

	return table, nil
}

// xrefStreamWidths reads the /W array: three non-negative field widths in
// bytes.
func xrefStreamWidths(dict Dict) ([3]int, error) {
	var widths [3]int

	w, ok := dict.GetArray("W")
	if !ok || len(w) < 3 {
		return widths, malformed("xref stream missing /W array")
	}
	for i := 0; i < 3; i++ {
		n, ok := w.GetInt(i)
		if !ok || n < 0 || n > 8 {
			return widths, malformed("xref stream /W[%d] invalid", i)
		}
		widths[i] = int(n)
	}
	return widths, nil
}

// xrefSubsection is one (first object number, count) pair from /Index.
type xrefSubsection struct {
	first int
	count int
}

// xrefStreamIndex reads the /Index array of subsection pairs, defaulting
// to the single run [0, Size].
func xrefStreamIndex(dict Dict, size int) ([]xrefSubsection, error) {
	indexArr, ok := dict.GetArray("Index")
	if !ok {
		return []xrefSubsection{{first: 0, count: size}}, nil
	}
	if len(indexArr)%2 != 0 {
		return nil, malformed("xref stream /Index has odd length %d", len(indexArr))
	}

	subs := make([]xrefSubsection, 0, len(indexArr)/2)
	for i := 0; i < len(indexArr); i += 2 {
		first, ok1 := indexArr.GetInt(i)
		count, ok2 := indexArr.GetInt(i + 1)
		if !ok1 || !ok2 || first < 0 || count < 0 {
			return nil, malformed("xref stream /Index pair %d invalid", i/2)
		}
		subs = append(subs, xrefSubsection{first: int(first), count: int(count)})
	}
	return subs, nil
}

// decodeXRefStreamRow expands one fixed-width row into an entry. Field 1
// is the entry type (defaulting to 1 when its width is zero), fields 2
// and 3 are type-dependent.
func decodeXRefStreamRow(row []byte, widths [3]int) (*XRefEntry, error) {
	field1 := int64(1)
	if widths[0] > 0 {
		field1 = beInt(row[:widths[0]])
	}
	field2 := beInt(row[widths[0] : widths[0]+widths[1]])
	field3 := beInt(row[widths[0]+widths[1]:])

	switch field1 {
	case 0:
		return &XRefEntry{
			Type:       XRefEntryFree,
			Offset:     field2,
			Generation: int(field3),
		}, nil
	case 1:
		return &XRefEntry{
			Type:       XRefEntryInFile,
			Offset:     field2,
			Generation: int(field3),
		}, nil
	case 2:
		return &XRefEntry{
			Type:         XRefEntryInStream,
			StreamNumber: int(field2),
			StreamIndex:  int(field3),
		}, nil
	default:
		// Unknown types are treated as references to the null object.
		return &XRefEntry{Type: XRefEntryFree}, nil
	}
}

// beInt reads a big-endian unsigned integer from up to 8 bytes.
func beInt(b []byte) int64 {
	var v int64
	for _, x := range b {
		v = v<<8 | int64(x)
	}
	return v
}

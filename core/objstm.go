package core

import (
	"bytes"
	"fmt"
)

// ObjectStream wraps a /Type /ObjStm stream, whose decoded body packs
// multiple indirect objects behind a header of object-number/offset
// pairs. Decoding and header parsing happen lazily on first access.
type ObjectStream struct {
	stream  *Stream
	n       int
	first   int
	extends *IndirectRef
	objects map[int]Object
	offsets []objStreamOffset
	decoded []byte
}

// objStreamOffset pairs an object number with its byte offset relative to
// /First in the decoded body.
type objStreamOffset struct {
	objNum int
	offset int
}

// NewObjectStream validates stream as an object stream. /N and /First are
// required; /Extends optionally chains to another object stream.
func NewObjectStream(stream *Stream) (*ObjectStream, error) {
	if stream == nil {
		return nil, malformed("object stream is nil")
	}

	if typeName, _ := stream.Dict.GetName("Type"); typeName != "ObjStm" {
		return nil, malformed("stream has /Type /%s, want /ObjStm", typeName)
	}

	n, ok := stream.Dict.GetInt("N")
	if !ok || n < 0 {
		return nil, malformed("object stream /N missing or negative")
	}

	first, ok := stream.Dict.GetInt("First")
	if !ok || first < 0 {
		return nil, malformed("object stream /First missing or negative")
	}

	var extends *IndirectRef
	if ref, ok := stream.Dict.GetIndirectRef("Extends"); ok {
		extends = &ref
	}

	return &ObjectStream{
		stream:  stream,
		n:       int(n),
		first:   int(first),
		extends: extends,
		objects: make(map[int]Object),
	}, nil
}

// N returns the number of packed objects.
func (os *ObjectStream) N() int { return os.n }

// First returns the byte offset of the first object body in the decoded
// data.
func (os *ObjectStream) First() int { return os.first }

// Extends returns the reference to the extended object stream, or nil.
func (os *ObjectStream) Extends() *IndirectRef { return os.extends }

// decode filter-decodes the body and parses the header once.
func (os *ObjectStream) decode() error {
	if os.decoded != nil {
		return nil
	}

	decoded, err := os.stream.Decode()
	if err != nil {
		return fmt.Errorf("object stream body: %w", err)
	}
	os.decoded = decoded

	return os.parseHeader()
}

// parseHeader reads the N whitespace-separated integer pairs that precede
// /First.
func (os *ObjectStream) parseHeader() error {
	if os.first > len(os.decoded) {
		return malformed("object stream /First %d exceeds body of %d bytes", os.first, len(os.decoded))
	}

	parser := NewParser(bytes.NewReader(os.decoded[:os.first]))
	os.offsets = make([]objStreamOffset, 0, os.n)

	for i := 0; i < os.n; i++ {
		objNum, err := os.headerInt(parser)
		if err != nil {
			return fmt.Errorf("object stream header pair %d: %w", i, err)
		}
		offset, err := os.headerInt(parser)
		if err != nil {
			return fmt.Errorf("object stream header pair %d: %w", i, err)
		}
		os.offsets = append(os.offsets, objStreamOffset{objNum: objNum, offset: offset})
	}
	return nil
}

func (os *ObjectStream) headerInt(parser *Parser) (int, error) {
	obj, err := parser.ParseObject()
	if err != nil {
		return 0, err
	}
	n, ok := obj.(Int)
	if !ok {
		return 0, malformed("header value is %s, want integer", obj.Type())
	}
	return int(n), nil
}

// GetObjectByIndex parses the packed object at a 0-based index, returning
// the object and its object number. Parsed objects are cached.
func (os *ObjectStream) GetObjectByIndex(index int) (Object, int, error) {
	if err := os.decode(); err != nil {
		return nil, 0, err
	}

	if index < 0 || index >= len(os.offsets) {
		return nil, 0, malformed("object stream index %d out of range [0, %d)", index, len(os.offsets))
	}

	if obj, ok := os.objects[index]; ok {
		return obj, os.offsets[index].objNum, nil
	}

	start := os.first + os.offsets[index].offset
	end := len(os.decoded)
	if index+1 < len(os.offsets) {
		end = os.first + os.offsets[index+1].offset
	}
	if end > len(os.decoded) {
		end = len(os.decoded)
	}
	// Corrupt headers can carry negative or decreasing offsets; the
	// slice below must stay inside the decoded body.
	if os.offsets[index].offset < 0 || start > end {
		return nil, 0, malformed("object stream offset %d for index %d outside body of %d bytes",
			os.offsets[index].offset, index, len(os.decoded))
	}

	parser := NewParser(bytes.NewReader(os.decoded[start:end]))
	obj, err := parser.ParseObject()
	if err != nil {
		return nil, 0, fmt.Errorf("object stream index %d: %w", index, err)
	}

	os.objects[index] = obj
	return obj, os.offsets[index].objNum, nil
}

// GetObjectByNumber parses the packed object with the given object
// number, returning the object and its index.
func (os *ObjectStream) GetObjectByNumber(objNum int) (Object, int, error) {
	if err := os.decode(); err != nil {
		return nil, 0, err
	}

	for i, entry := range os.offsets {
		if entry.objNum == objNum {
			obj, _, err := os.GetObjectByIndex(i)
			return obj, i, err
		}
	}
	return nil, 0, malformed("object %d not in object stream", objNum)
}

// ObjectNumbers lists the packed object numbers in stream order.
func (os *ObjectStream) ObjectNumbers() ([]int, error) {
	if err := os.decode(); err != nil {
		return nil, err
	}

	nums := make([]int, len(os.offsets))
	for i, entry := range os.offsets {
		nums[i] = entry.objNum
	}
	return nums, nil
}

// ContainsObject reports whether objNum is packed in this stream.
func (os *ObjectStream) ContainsObject(objNum int) (bool, error) {
	if err := os.decode(); err != nil {
		return false, err
	}

	for _, entry := range os.offsets {
		if entry.objNum == objNum {
			return true, nil
		}
	}
	return false, nil
}

package core

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// XRefEntryType classifies a cross-reference entry.
type XRefEntryType int

const (
	// XRefEntryFree marks an unused object number.
	XRefEntryFree XRefEntryType = iota
	// XRefEntryInFile locates an object at a byte offset in the file.
	XRefEntryInFile
	// XRefEntryInStream locates an object inside an object stream.
	XRefEntryInStream
)

// XRefEntry is one cross-reference entry. Offset is the byte offset for
// in-file entries and the next free object number for free entries.
// StreamNumber and StreamIndex are set only for in-stream entries.
type XRefEntry struct {
	Type         XRefEntryType
	Offset       int64
	Generation   int
	StreamNumber int
	StreamIndex  int
}

// InUse reports whether the entry locates a live object.
func (e *XRefEntry) InUse() bool {
	return e.Type != XRefEntryFree
}

// XRefTable maps object numbers to cross-reference entries, together with
// the trailer dictionary of the section it came from.
type XRefTable struct {
	Entries map[int]*XRefEntry
	Trailer Dict
}

// NewXRefTable creates an empty table.
func NewXRefTable() *XRefTable {
	return &XRefTable{
		Entries: make(map[int]*XRefEntry),
		Trailer: make(Dict),
	}
}

// Get returns the entry for objNum.
func (x *XRefTable) Get(objNum int) (*XRefEntry, bool) {
	entry, ok := x.Entries[objNum]
	return entry, ok
}

// Set stores an entry for objNum.
func (x *XRefTable) Set(objNum int, entry *XRefEntry) {
	x.Entries[objNum] = entry
}

// Size returns the number of entries.
func (x *XRefTable) Size() int {
	return len(x.Entries)
}

// XRefParser locates and parses cross-reference sections in a complete
// in-memory PDF buffer.
type XRefParser struct {
	data []byte
}

// NewXRefParser creates a parser over data.
func NewXRefParser(data []byte) *XRefParser {
	return &XRefParser{data: data}
}

// startxrefWindow bounds the backward scan for the startxref keyword.
const startxrefWindow = 2048

// FindStartXRef scans backward from end of file for the startxref keyword
// and returns the offset it points at.
func (x *XRefParser) FindStartXRef() (int64, error) {
	window := x.data
	if len(window) > startxrefWindow {
		window = window[len(window)-startxrefWindow:]
	}

	idx := bytes.LastIndex(window, []byte("startxref"))
	if idx == -1 {
		return 0, malformed("startxref not found")
	}

	rest := window[idx+len("startxref"):]
	fields := strings.Fields(string(rest))
	if len(fields) == 0 {
		return 0, malformed("startxref missing offset")
	}

	offset, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, malformed("invalid startxref offset %q", fields[0])
	}
	if offset < 0 || offset >= int64(len(x.data)) {
		return 0, malformed("startxref offset %d outside buffer of %d bytes", offset, len(x.data))
	}
	return offset, nil
}

// ParseSection parses the cross-reference section at offset, which is
// either a classic "xref" table or a cross-reference stream object.
func (x *XRefParser) ParseSection(offset int64) (*XRefTable, error) {
	pos := x.skipSpace(offset)
	if pos < 0 {
		return nil, malformed("xref offset %d outside buffer", offset)
	}

	if bytes.HasPrefix(x.data[pos:], []byte("xref")) {
		return x.parseClassic(pos)
	}
	return x.parseXRefStream(pos)
}

// parseClassic parses a classic table: the xref keyword, subsections of
// 20-byte entries, and the trailer dictionary.
func (x *XRefParser) parseClassic(offset int64) (*XRefTable, error) {
	pos := offset + int64(len("xref"))
	table := NewXRefTable()

	for {
		pos = x.skipSpace(pos)
		if pos < 0 {
			return nil, malformed("xref table truncated")
		}

		if bytes.HasPrefix(x.data[pos:], []byte("trailer")) {
			trailer, err := x.parseTrailer(pos + int64(len("trailer")))
			if err != nil {
				return nil, err
			}
			table.Trailer = trailer
			return table, nil
		}

		line, next := x.readLine(pos)
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, malformed("invalid xref subsection header %q", line)
		}
		firstObj, err1 := strconv.Atoi(fields[0])
		count, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil || firstObj < 0 || count < 0 {
			return nil, malformed("invalid xref subsection header %q", line)
		}
		pos = next

		for i := 0; i < count; i++ {
			pos = x.skipSpace(pos)
			if pos < 0 {
				return nil, malformed("xref subsection truncated")
			}
			line, next := x.readLine(pos)
			entry, err := parseClassicEntry(line)
			if err != nil {
				return nil, err
			}
			table.Set(firstObj+i, entry)
			pos = next
		}
	}
}

// parseClassicEntry parses one "nnnnnnnnnn ggggg n|f" line. Field widths
// are taken from the line content rather than fixed columns, since many
// writers get the padding wrong.
func parseClassicEntry(line string) (*XRefEntry, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return nil, malformed("invalid xref entry %q", line)
	}

	offset, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, malformed("invalid xref entry offset %q", fields[0])
	}
	generation, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, malformed("invalid xref entry generation %q", fields[1])
	}

	entry := &XRefEntry{Offset: offset, Generation: generation}
	switch fields[2] {
	case "n":
		entry.Type = XRefEntryInFile
	case "f":
		entry.Type = XRefEntryFree
	default:
		return nil, malformed("invalid xref entry flag %q", fields[2])
	}
	return entry, nil
}

// parseTrailer parses the dictionary after the trailer keyword.
func (x *XRefParser) parseTrailer(pos int64) (Dict, error) {
	parser := NewParser(bytes.NewReader(x.data[pos:]))
	obj, err := parser.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("trailer: %w", err)
	}
	dict, ok := obj.(Dict)
	if !ok {
		return nil, malformed("trailer is %s, want dictionary", obj.Type())
	}
	return dict, nil
}

// ParseAllXRefs parses the newest section found via startxref and every
// predecessor reachable through /Prev and /XRefStm pointers. Sections are
// returned oldest first, with a hybrid file's stream section ordered just
// before the classic section that points at it, so that a last-wins merge
// gives newer sections precedence.
func (x *XRefParser) ParseAllXRefs() ([]*XRefTable, error) {
	offset, err := x.FindStartXRef()
	if err != nil {
		return nil, err
	}

	var newestFirst []*XRefTable
	visited := make(map[int64]bool)

	for {
		if visited[offset] {
			break // /Prev loop
		}
		visited[offset] = true

		table, err := x.ParseSection(offset)
		if err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, table)

		// Hybrid files carry a parallel stream section with the entries
		// for compressed objects. The classic section supersedes it.
		if stmOffset, ok := table.Trailer.GetInt("XRefStm"); ok && !visited[int64(stmOffset)] {
			visited[int64(stmOffset)] = true
			if stmTable, err := x.ParseSection(int64(stmOffset)); err == nil {
				newestFirst = append(newestFirst, stmTable)
			}
		}

		prev, ok := table.Trailer.GetInt("Prev")
		if !ok {
			break
		}
		if prev < 0 || int64(prev) >= int64(len(x.data)) {
			return nil, malformed("/Prev offset %d outside buffer", prev)
		}
		offset = int64(prev)
	}

	// Reverse to oldest first.
	for i, j := 0, len(newestFirst)-1; i < j; i, j = i+1, j-1 {
		newestFirst[i], newestFirst[j] = newestFirst[j], newestFirst[i]
	}
	return newestFirst, nil
}

// MergeXRefTables merges sections given oldest first. A later entry for an
// object number always wins, so a newer free entry masks an older in-use
// entry. The newest trailer is kept, with the root and encryption entries
// backfilled from older trailers when the newest lacks them.
func MergeXRefTables(tables ...*XRefTable) *XRefTable {
	merged := NewXRefTable()

	for _, table := range tables {
		for objNum, entry := range table.Entries {
			merged.Set(objNum, entry)
		}
		for key, v := range table.Trailer {
			merged.Trailer[key] = v
		}
	}

	return merged
}

// ResolveXRef parses and merges every cross-reference section in the
// buffer into one table.
func (x *XRefParser) ResolveXRef() (*XRefTable, error) {
	tables, err := x.ParseAllXRefs()
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, malformed("no xref sections found")
	}
	return MergeXRefTables(tables...), nil
}

// skipSpace advances past whitespace and comments, returning -1 at end of
// buffer.
func (x *XRefParser) skipSpace(pos int64) int64 {
	for pos < int64(len(x.data)) {
		b := x.data[pos]
		if isWhitespace(b) {
			pos++
			continue
		}
		if b == '%' {
			for pos < int64(len(x.data)) && x.data[pos] != '\n' && x.data[pos] != '\r' {
				pos++
			}
			continue
		}
		return pos
	}
	return -1
}

// readLine returns the text from pos to the next EOL and the position
// after the EOL sequence.
func (x *XRefParser) readLine(pos int64) (string, int64) {
	end := pos
	for end < int64(len(x.data)) && x.data[end] != '\r' && x.data[end] != '\n' {
		end++
	}
	line := string(x.data[pos:end])

	next := end
	if next < int64(len(x.data)) && x.data[next] == '\r' {
		next++
	}
	if next < int64(len(x.data)) && x.data[next] == '\n' {
		next++
	}
	return line, next
}

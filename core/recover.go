package core

import (
	"bytes"
	"regexp"
	"strconv"
)

// objHeaderPattern matches "N G obj" at a token boundary. The first group
// is the object number, the second the generation.
var objHeaderPattern = regexp.MustCompile(`(?:^|[\s>\]])(\d+)[\s]+(\d+)[\s]+obj\b`)

// RebuildXRef reconstructs a cross-reference table from a damaged buffer
// by scanning linearly for "N G obj" headers. When an object number is
// defined more than once the largest offset wins, since later definitions
// in an incrementally written file supersede earlier ones. A trailer is
// recovered from the last parseable trailer dictionary, or synthesized
// from a /Type /Catalog object when no trailer survives. Scan content
// never fails; the only error is a buffer with no objects at all.
func RebuildXRef(data []byte) (*XRefTable, error) {
	table := NewXRefTable()

	for _, match := range objHeaderPattern.FindAllSubmatchIndex(data, -1) {
		numStart, numEnd := match[2], match[3]
		genStart, genEnd := match[4], match[5]

		objNum, err1 := strconv.Atoi(string(data[numStart:numEnd]))
		gen, err2 := strconv.Atoi(string(data[genStart:genEnd]))
		if err1 != nil || err2 != nil {
			continue
		}

		offset := int64(numStart)
		if existing, ok := table.Get(objNum); ok && existing.Offset >= offset {
			continue
		}
		table.Set(objNum, &XRefEntry{
			Type:       XRefEntryInFile,
			Offset:     offset,
			Generation: gen,
		})
	}

	if table.Size() == 0 {
		return nil, malformed("no objects found in buffer")
	}

	if trailer := recoverTrailer(data); trailer != nil {
		table.Trailer = trailer
	}
	if !table.Trailer.Has("Root") {
		if root, ok := findCatalog(data, table); ok {
			table.Trailer["Root"] = root
		}
	}

	return table, nil
}

// recoverTrailer parses trailer dictionaries from last to first and
// returns the first one that parses and carries /Root.
func recoverTrailer(data []byte) Dict {
	var fallback Dict

	search := data
	for {
		idx := bytes.LastIndex(search, []byte("trailer"))
		if idx == -1 {
			return fallback
		}

		parser := NewParser(bytes.NewReader(data[idx+len("trailer"):]))
		if obj, err := parser.ParseObject(); err == nil {
			if dict, ok := obj.(Dict); ok {
				if dict.Has("Root") {
					return dict
				}
				if fallback == nil {
					fallback = dict
				}
			}
		}
		search = search[:idx]
	}
}

// findCatalog scans recovered objects for the document catalog and
// returns a reference to it.
func findCatalog(data []byte, table *XRefTable) (IndirectRef, bool) {
	best := IndirectRef{}
	found := false

	for objNum, entry := range table.Entries {
		if entry.Type != XRefEntryInFile || entry.Offset >= int64(len(data)) {
			continue
		}

		parser := NewParser(bytes.NewReader(data[entry.Offset:]))
		indirect, err := parser.ParseIndirectObject()
		if err != nil {
			continue
		}
		dict, ok := indirect.Object.(Dict)
		if !ok {
			continue
		}
		if typeName, _ := dict.GetName("Type"); typeName == "Catalog" {
			// Prefer the highest-numbered catalog, matching the
			// largest-offset-wins rule for duplicate objects.
			if !found || objNum > best.Number {
				best = IndirectRef{Number: objNum, Generation: entry.Generation}
				found = true
			}
		}
	}

	return best, found
}

package core

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRebuildXRef tests index reconstruction from a buffer whose xref
// machinery is gone entirely.
func TestRebuildXRef(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make(map[int]int64)
	writeObj := func(num int, body string) {
		offsets[num] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	writeObj(3, "<< /Type /Page /Parent 2 0 R >>")

	table, err := RebuildXRef(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, table.Size())

	for num, wantOffset := range offsets {
		entry, ok := table.Get(num)
		require.True(t, ok, "object %d missing", num)
		assert.Equal(t, XRefEntryInFile, entry.Type)
		assert.Equal(t, wantOffset, entry.Offset)
	}

	// With no trailer, the catalog object is promoted to /Root.
	root, ok := table.Trailer.GetIndirectRef("Root")
	require.True(t, ok)
	assert.Equal(t, 1, root.Number)
}

// TestRebuildXRefDuplicates tests that the largest offset wins when an
// object number is defined twice.
func TestRebuildXRefDuplicates(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("5 0 obj\n(old)\nendobj\n")
	newer := int64(buf.Len())
	buf.WriteString("5 0 obj\n(new)\nendobj\n")

	table, err := RebuildXRef(buf.Bytes())
	require.NoError(t, err)

	entry, ok := table.Get(5)
	require.True(t, ok)
	assert.Equal(t, newer, entry.Offset)
}

// TestRebuildXRefKeepsTrailer tests that a surviving trailer dictionary
// is reused.
func TestRebuildXRefKeepsTrailer(t *testing.T) {
	data := []byte(`%PDF-1.4
1 0 obj
<< /Type /Catalog >>
endobj
trailer
<< /Size 2 /Root 1 0 R /ID [(aa) (bb)] >>
garbage after trailer
`)

	table, err := RebuildXRef(data)
	require.NoError(t, err)

	root, ok := table.Trailer.GetIndirectRef("Root")
	require.True(t, ok)
	assert.Equal(t, 1, root.Number)
	assert.True(t, table.Trailer.Has("ID"))
}

// TestRebuildXRefEmpty tests the only failing case: no objects at all.
func TestRebuildXRefEmpty(t *testing.T) {
	_, err := RebuildXRef([]byte("not a pdf at all"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedObject)
}

// TestRebuildXRefIgnoresGarbage tests that interleaved binary noise does
// not derail the scan.
func TestRebuildXRefIgnoresGarbage(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.Write([]byte{0x00, 0xFF, 0xFE, 0x01})
	buf.WriteString("\n8 0 obj\n<< /Type /Catalog >>\nendobj\n")
	buf.Write(bytes.Repeat([]byte{0xAB}, 64))

	table, err := RebuildXRef(buf.Bytes())
	require.NoError(t, err)
	_, ok := table.Get(8)
	assert.True(t, ok)
}

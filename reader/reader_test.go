package reader

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellumpdf/vellum/core"
	"github.com/vellumpdf/vellum/encryption"
)

// buildClassicPDF assembles a document with a classic xref table.
// objects[i] becomes object i+1; trailerExtra is spliced into the
// trailer dictionary.
func buildClassicPDF(objects []string, trailerExtra string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")

	offsets := make([]int, len(objects)+1)
	for i, body := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R %s >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, trailerExtra, xrefPos)
	return buf.Bytes()
}

func streamBody(dict string, data []byte) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

var testContent = []byte("0 0 m 100 100 l B BT /F1 12 Tf (Hello) Tj ET")

// standardObjects is a 1-page document skeleton: catalog, pages node,
// page leaf, content stream.
func standardObjects(content []byte) []string {
	return []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>",
		streamBody("", content),
	}
}

func TestLoadClassicXRef(t *testing.T) {
	data := buildClassicPDF(standardObjects(testContent), "")
	r, err := New(data, Config{})
	require.NoError(t, err)

	assert.Equal(t, "1.7", r.Version().String())
	assert.False(t, r.IsEncrypted())
	assert.False(t, r.Recovered())
	assert.Equal(t, int64(len(data)), r.Size())

	count, err := r.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	page, err := r.Page(0)
	require.NoError(t, err)
	w, h, err := page.Size()
	require.NoError(t, err)
	assert.Equal(t, 612.0, w)
	assert.Equal(t, 792.0, h)

	streams, err := r.DecodedContentStreams(0)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Contains(t, string(streams[0]), " m ")
	assert.Contains(t, string(streams[0]), "Tj")

	info, err := r.Info()
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestLoadXRefStreamWithObjectStream(t *testing.T) {
	content := testContent
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")

	off4 := buf.Len()
	fmt.Fprintf(&buf, "4 0 obj\n%s\nendobj\n", streamBody("", content))

	// Objects 1 to 3 live compressed in object stream 5.
	bodies := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>",
	}
	var header, payload strings.Builder
	for i, b := range bodies {
		fmt.Fprintf(&header, "%d %d ", i+1, payload.Len())
		payload.WriteString(b)
		payload.WriteString(" ")
	}
	first := header.Len()
	off5 := buf.Len()
	fmt.Fprintf(&buf, "5 0 obj\n%s\nendobj\n",
		streamBody(fmt.Sprintf("/Type /ObjStm /N 3 /First %d", first),
			[]byte(header.String()+payload.String())))

	off6 := buf.Len()
	var rows bytes.Buffer
	row := func(typ byte, mid int, last byte) {
		rows.WriteByte(typ)
		rows.WriteByte(byte(mid >> 8))
		rows.WriteByte(byte(mid))
		rows.WriteByte(last)
	}
	row(0, 0, 255)    // 0: free
	row(2, 5, 0)      // 1: in stream 5, index 0
	row(2, 5, 1)      // 2
	row(2, 5, 2)      // 3
	row(1, off4, 0)   // 4
	row(1, off5, 0)   // 5
	row(1, off6, 0)   // 6
	fmt.Fprintf(&buf, "6 0 obj\n%s\nendobj\n",
		streamBody("/Type /XRef /Size 7 /W [1 2 1] /Root 1 0 R", rows.Bytes()))
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", off6)

	r, err := New(buf.Bytes(), Config{})
	require.NoError(t, err)
	assert.False(t, r.Recovered())

	count, err := r.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	page, err := r.Page(0)
	require.NoError(t, err)
	w, h, err := page.Size()
	require.NoError(t, err)
	assert.Equal(t, 612.0, w)
	assert.Equal(t, 792.0, h)

	streams, err := r.DecodedContentStreams(0)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, content, streams[0])
}

// buildEncryptedPDF wraps the standard skeleton in RC4 revision 3
// encryption with a real /O, /U pair. Returns the document and the
// plaintext content.
func buildEncryptedPDF(t *testing.T, userPwd, ownerPwd string) ([]byte, []byte) {
	t.Helper()
	content := []byte("BT /F1 12 Tf (Top Secret) Tj ET")
	fileID := bytes.Repeat([]byte{0xAB, 0x34}, 8)

	o := encryption.ComputeOwnerValue([]byte(ownerPwd), []byte(userPwd), 3, 16)
	fileKey := encryption.ComputeFileKey([]byte(userPwd), o, 0xFFFFFFFC, fileID, 3, 16, true)
	u := encryption.ComputeUserValue(fileKey, fileID, 3)

	encDict := core.Dict{
		"Filter": core.Name("Standard"),
		"V":      core.Int(2),
		"R":      core.Int(3),
		"Length": core.Int(128),
		"O":      core.String(o),
		"U":      core.String(u),
		"P":      core.Int(-4),
	}
	handler, err := encryption.ParseEncryptDict(encDict, fileID)
	require.NoError(t, err)
	require.NoError(t, handler.Authenticate([]byte(userPwd)))

	encContent, err := handler.EncryptStream(content, 4, 0)
	require.NoError(t, err)
	encTitle, err := handler.EncryptString([]byte("Classified"), 6, 0)
	require.NoError(t, err)

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>",
		streamBody("", encContent),
		fmt.Sprintf("<< /Filter /Standard /V 2 /R 3 /Length 128 /O <%X> /U <%X> /P -4 >>", o, u),
		fmt.Sprintf("<< /Title <%X> >>", encTitle),
	}
	extra := fmt.Sprintf("/Encrypt 5 0 R /Info 6 0 R /ID [<%X> <%X>]", fileID, fileID)
	return buildClassicPDF(objects, extra), content
}

func TestEncryptedDocument(t *testing.T) {
	data, content := buildEncryptedPDF(t, "user", "owner")

	t.Run("reject policy fails when a password is required", func(t *testing.T) {
		_, err := New(data, Config{})
		assert.ErrorIs(t, err, encryption.ErrEncryptionRequired)
	})

	t.Run("password policy without password fails", func(t *testing.T) {
		_, err := New(data, Config{EncryptionPolicy: PolicyPassword})
		assert.ErrorIs(t, err, encryption.ErrEncryptionRequired)
	})

	t.Run("wrong password fails", func(t *testing.T) {
		_, err := New(data, Config{
			EncryptionPolicy: PolicyPassword,
			Password:         []byte("guess"),
		})
		assert.ErrorIs(t, err, encryption.ErrAuthenticationFailed)
	})

	t.Run("user password decrypts lazily", func(t *testing.T) {
		r, err := New(data, Config{
			EncryptionPolicy: PolicyPassword,
			Password:         []byte("user"),
		})
		require.NoError(t, err)
		assert.True(t, r.IsEncrypted())

		streams, err := r.DecodedContentStreams(0)
		require.NoError(t, err)
		require.Len(t, streams, 1)
		assert.Equal(t, content, streams[0])

		info, err := r.Info()
		require.NoError(t, err)
		require.NotNil(t, info)
		title, ok := info.GetString("Title")
		require.True(t, ok)
		assert.Equal(t, "Classified", string(title))
	})

	t.Run("owner password opens too", func(t *testing.T) {
		r, err := New(data, Config{
			EncryptionPolicy: PolicyPassword,
			Password:         []byte("owner"),
		})
		require.NoError(t, err)
		streams, err := r.DecodedContentStreams(0)
		require.NoError(t, err)
		assert.Equal(t, content, streams[0])
	})

	t.Run("encrypt dictionary strings stay raw", func(t *testing.T) {
		r, err := New(data, Config{
			EncryptionPolicy: PolicyPassword,
			Password:         []byte("user"),
		})
		require.NoError(t, err)
		obj, err := r.GetObject(5)
		require.NoError(t, err)
		dict := obj.(core.Dict)
		oEntry, ok := dict.GetString("O")
		require.True(t, ok)
		o := encryption.ComputeOwnerValue([]byte("owner"), []byte("user"), 3, 16)
		assert.Equal(t, o, []byte(oEntry))
	})
}

func TestEmptyUserPasswordOpensUnderReject(t *testing.T) {
	// Permissions-only encryption: the empty user password works, so
	// even the reject policy opens the document.
	data, content := buildEncryptedPDF(t, "", "owner")
	r, err := New(data, Config{})
	require.NoError(t, err)
	assert.True(t, r.IsEncrypted())

	streams, err := r.DecodedContentStreams(0)
	require.NoError(t, err)
	assert.Equal(t, content, streams[0])
}

// TestInfoText tests decoding of information dictionary text strings,
// both UTF-16BE with a byte order mark and PDFDocEncoding.
func TestInfoText(t *testing.T) {
	objects := append(standardObjects(testContent),
		"<< /Title <FEFF00480069> /Author (Caf\xe9 \x80) /Trapped /True >>")
	data := buildClassicPDF(objects, "/Info 5 0 R")

	r, err := New(data, Config{})
	require.NoError(t, err)

	title, err := r.InfoText("Title")
	require.NoError(t, err)
	assert.Equal(t, "Hi", title)

	author, err := r.InfoText("Author")
	require.NoError(t, err)
	assert.Equal(t, "Café •", author)

	missing, err := r.InfoText("Subject")
	require.NoError(t, err)
	assert.Equal(t, "", missing)

	notText, err := r.InfoText("Trapped")
	require.NoError(t, err)
	assert.Equal(t, "", notText)
}

// TestCorruptEncryptedStreamErrors tests that a stream whose AES payload
// is not block aligned fails the object load instead of surfacing
// ciphertext.
func TestCorruptEncryptedStreamErrors(t *testing.T) {
	content := []byte("BT /F1 12 Tf (Top Secret) Tj ET")
	fileID := bytes.Repeat([]byte{0xAB, 0x34}, 8)

	o := encryption.ComputeOwnerValue([]byte("user"), []byte("user"), 4, 16)
	fileKey := encryption.ComputeFileKey([]byte("user"), o, 0xFFFFFFFC, fileID, 4, 16, true)
	u := encryption.ComputeUserValue(fileKey, fileID, 4)

	encDict := core.Dict{
		"Filter": core.Name("Standard"),
		"V":      core.Int(4),
		"R":      core.Int(4),
		"Length": core.Int(128),
		"O":      core.String(o),
		"U":      core.String(u),
		"P":      core.Int(-4),
		"CF":     core.Dict{"StdCF": core.Dict{"CFM": core.Name("AESV2")}},
		"StmF":   core.Name("StdCF"),
		"StrF":   core.Name("StdCF"),
	}
	handler, err := encryption.ParseEncryptDict(encDict, fileID)
	require.NoError(t, err)
	require.NoError(t, handler.Authenticate([]byte("user")))

	encContent, err := handler.EncryptStream(content, 4, 0)
	require.NoError(t, err)
	// Dropping the final byte leaves the body unaligned to the AES
	// block size.
	encContent = encContent[:len(encContent)-1]

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>",
		streamBody("", encContent),
		fmt.Sprintf("<< /Filter /Standard /V 4 /R 4 /Length 128 /O <%X> /U <%X> /P -4 /CF << /StdCF << /CFM /AESV2 >> >> /StmF /StdCF /StrF /StdCF >>", o, u),
	}
	extra := fmt.Sprintf("/Encrypt 5 0 R /ID [<%X> <%X>]", fileID, fileID)
	data := buildClassicPDF(objects, extra)

	r, err := New(data, Config{EncryptionPolicy: PolicyPassword, Password: []byte("user")})
	require.NoError(t, err)

	_, err = r.GetObject(4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block")

	_, err = r.DecodedContentStreams(0)
	require.Error(t, err)
}

func TestRecoveryFromMissingXRef(t *testing.T) {
	full := buildClassicPDF(standardObjects(testContent), "")
	cut := bytes.Index(full, []byte("\nxref"))
	require.Greater(t, cut, 0)
	data := full[:cut]

	r, err := New(data, Config{})
	require.NoError(t, err, "loading must fall back to the object scan, not fail")
	assert.True(t, r.Recovered())

	count, err := r.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	streams, err := r.DecodedContentStreams(0)
	require.NoError(t, err)
	assert.Contains(t, string(streams[0]), "Tj")
}

func TestRecoveryFromBogusStartXRef(t *testing.T) {
	full := buildClassicPDF(standardObjects(testContent), "")
	data := bytes.Replace(full, []byte("startxref\n"), []byte("startxref\n9"), 1)

	r, err := New(data, Config{})
	require.NoError(t, err)
	assert.True(t, r.Recovered())

	count, err := r.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotPDF(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		[]byte("hello world, definitely not a document"),
		[]byte("%PDF"),
	} {
		_, err := New(data, Config{})
		assert.ErrorIs(t, err, ErrNotPDF)
	}
}

func TestNoCatalogAnywhere(t *testing.T) {
	// Objects exist but none is a catalog and no trailer survives.
	data := []byte("%PDF-1.4\n1 0 obj\n<< /K 1 >>\nendobj\n")
	_, err := New(data, Config{})
	assert.Error(t, err)
}

func TestMissingObjectResolvesToNull(t *testing.T) {
	objects := standardObjects(testContent)
	objects[2] = "<< /Type /Page /Parent 2 0 R /Contents 4 0 R /Annots 99 0 R >>"
	r, err := New(buildClassicPDF(objects, ""), Config{})
	require.NoError(t, err)

	obj, err := r.GetObject(99)
	require.NoError(t, err)
	assert.Equal(t, core.Null{}, obj)
}

func TestGenerationMismatchResolvesToNull(t *testing.T) {
	r, err := New(buildClassicPDF(standardObjects(testContent), ""), Config{})
	require.NoError(t, err)

	obj, err := r.ResolveReference(core.IndirectRef{Number: 1, Generation: 7})
	require.NoError(t, err)
	assert.Equal(t, core.Null{}, obj)
}

func TestObjectCache(t *testing.T) {
	r, err := New(buildClassicPDF(standardObjects(testContent), ""), Config{})
	require.NoError(t, err)

	first, err := r.GetObject(2)
	require.NoError(t, err)
	second, err := r.GetObject(2)
	require.NoError(t, err)
	// Same instance, not a reparse.
	assert.Equal(t, fmt.Sprintf("%p", first), fmt.Sprintf("%p", second))
}

func TestLoadAll(t *testing.T) {
	good := buildClassicPDF(standardObjects(testContent), "")
	bad := []byte("not a pdf at all")

	results, err := LoadAll(context.Background(), [][]byte{good, bad, good}, Config{},
		WithConcurrency(2))
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 0, results[0].Index)
	require.NoError(t, results[0].Err)
	count, err := results[0].Reader.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.ErrorIs(t, results[1].Err, ErrNotPDF)
	assert.Nil(t, results[1].Reader)

	require.NoError(t, results[2].Err)
}

func TestLoadAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	good := buildClassicPDF(standardObjects(testContent), "")
	results, err := LoadAll(ctx, [][]byte{good, good}, Config{}, WithConcurrency(1))
	assert.Error(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Error(t, res.Err)
	}
}

func TestLoadAllLogsFailures(t *testing.T) {
	var logged []string
	logf := func(format string, args ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}

	_, err := LoadAll(context.Background(), [][]byte{[]byte("junk")}, Config{},
		WithLogFunc(logf))
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "document 0")
}

func TestIncrementalUpdateWins(t *testing.T) {
	// Base document, then an update section that replaces the content
	// stream and points back via /Prev.
	base := buildClassicPDF(standardObjects(testContent), "")
	baseStart := bytes.LastIndex(base, []byte("startxref"))
	require.Greater(t, baseStart, 0)
	var baseXRef int
	_, err := fmt.Sscanf(string(base[baseStart:]), "startxref\n%d", &baseXRef)
	require.NoError(t, err)

	newContent := []byte("BT (Updated) Tj ET")
	var buf bytes.Buffer
	buf.Write(base)
	off4 := buf.Len()
	fmt.Fprintf(&buf, "4 0 obj\n%s\nendobj\n", streamBody("", newContent))
	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n4 1\n%010d 00000 n \n", off4)
	fmt.Fprintf(&buf, "trailer\n<< /Size 5 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n",
		baseXRef, xrefPos)

	r, err := New(buf.Bytes(), Config{})
	require.NoError(t, err)
	streams, err := r.DecodedContentStreams(0)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, newContent, streams[0])
}

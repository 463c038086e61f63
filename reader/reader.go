package reader

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vellumpdf/vellum/core"
	"github.com/vellumpdf/vellum/encryption"
	"github.com/vellumpdf/vellum/pages"
	"github.com/vellumpdf/vellum/resolver"
)

const (
	// PolicyReject refuses password-protected documents. Documents
	// whose empty user password authenticates still open.
	PolicyReject = "reject"
	// PolicyPassword authenticates with the configured password, the
	// empty password tried first.
	PolicyPassword = "password"
)

var (
	// ErrNotPDF reports a buffer that does not start with a PDF header.
	ErrNotPDF = errors.New("not a PDF: missing %PDF- header")

	// ErrNoCatalog reports a document whose trailer points at no
	// catalog even after brute-force recovery.
	ErrNoCatalog = errors.New("document has no catalog")
)

// Config controls how a document is opened.
type Config struct {
	// Password authenticates encrypted documents under PolicyPassword.
	Password []byte

	// EncryptionPolicy is PolicyReject or PolicyPassword. Empty means
	// PolicyReject.
	EncryptionPolicy string

	// MaxObjectDepth caps reference nesting during deep resolution.
	// Zero means the resolver default.
	MaxObjectDepth int
}

// Version is a PDF header version.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Reader is a loaded PDF document over a caller-supplied byte buffer.
// The buffer and the derived indexes are never mutated after New
// returns, so a Reader may be shared read-only across goroutines once
// all objects it will serve have been loaded; concurrent first loads
// need external locking because of the object cache.
type Reader struct {
	data    []byte
	version Version
	xref    *core.XRefTable
	trailer core.Dict

	cache      map[int]core.Object
	objStreams map[int]*core.ObjectStream
	loading    map[int]bool

	handler    *encryption.Handler
	encryptNum int

	res       *resolver.Resolver
	pageTree  *pages.PageTree
	recovered bool
}

// New parses data as a complete PDF document. The buffer must begin
// with the %PDF- header at byte 0; streaming or offset inputs are not
// supported. A damaged cross-reference index triggers a brute-force
// scan for object headers before New gives up.
func New(data []byte, cfg Config) (*Reader, error) {
	r := &Reader{
		data:       data,
		cache:      make(map[int]core.Object),
		objStreams: make(map[int]*core.ObjectStream),
		loading:    make(map[int]bool),
		encryptNum: -1,
	}

	version, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	r.version = version

	if err := r.loadXRef(); err != nil {
		return nil, err
	}

	opts := []resolver.Option{}
	if cfg.MaxObjectDepth > 0 {
		opts = append(opts, resolver.WithMaxDepth(cfg.MaxObjectDepth))
	}
	r.res = resolver.New(r, opts...)

	if err := r.setupEncryption(cfg); err != nil {
		return nil, err
	}

	if r.trailer.Get("Root") == nil {
		return nil, ErrNoCatalog
	}
	return r, nil
}

// parseHeader checks the %PDF-M.N magic at byte 0.
func parseHeader(data []byte) (Version, error) {
	if len(data) < 8 || !strings.HasPrefix(string(data[:5]), "%PDF-") {
		return Version{}, ErrNotPDF
	}
	rest := string(data[5:minInt(len(data), 16)])
	dot := strings.IndexByte(rest, '.')
	if dot < 1 {
		return Version{}, fmt.Errorf("%w: malformed version", ErrNotPDF)
	}
	major, err := strconv.Atoi(rest[:dot])
	if err != nil {
		return Version{}, fmt.Errorf("%w: malformed version", ErrNotPDF)
	}
	end := dot + 1
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	minor, err := strconv.Atoi(rest[dot+1 : end])
	if err != nil {
		return Version{}, fmt.Errorf("%w: malformed version", ErrNotPDF)
	}
	return Version{Major: major, Minor: minor}, nil
}

// loadXRef resolves the merged cross-reference index, falling back to a
// brute-force object scan when the startxref chain is broken or the
// resolved trailer lacks a /Root.
func (r *Reader) loadXRef() error {
	table, err := core.NewXRefParser(r.data).ResolveXRef()
	if err == nil && table.Trailer.Get("Root") != nil {
		r.xref = table
		r.trailer = table.Trailer
		return nil
	}

	rebuilt, rebuildErr := core.RebuildXRef(r.data)
	if rebuildErr != nil {
		if err != nil {
			return fmt.Errorf("cross-reference index unusable (%v); recovery failed: %w", err, rebuildErr)
		}
		return fmt.Errorf("recovery failed: %w", rebuildErr)
	}
	// A valid index whose trailer just lacked /Root keeps its entries;
	// the rebuilt trailer fills the gap.
	if err == nil && table != nil {
		for key, value := range rebuilt.Trailer {
			if table.Trailer.Get(key) == nil {
				table.Trailer.Set(key, value)
			}
		}
		if table.Trailer.Get("Root") != nil {
			r.xref = table
			r.trailer = table.Trailer
			r.recovered = true
			return nil
		}
	}
	r.xref = rebuilt
	r.trailer = rebuilt.Trailer
	r.recovered = true
	return nil
}

// setupEncryption parses /Encrypt when present and authenticates
// according to the configured policy.
func (r *Reader) setupEncryption(cfg Config) error {
	encObj := r.trailer.Get("Encrypt")
	if encObj == nil {
		return nil
	}

	if ref, ok := encObj.(core.IndirectRef); ok {
		r.encryptNum = ref.Number
		loaded, err := r.GetObject(ref.Number)
		if err != nil {
			return fmt.Errorf("loading /Encrypt: %w", err)
		}
		encObj = loaded
	}
	encDict, ok := encObj.(core.Dict)
	if !ok {
		return fmt.Errorf("/Encrypt is %T, want dictionary", encObj)
	}

	handler, err := encryption.ParseEncryptDict(encDict, r.fileID())
	if err != nil {
		return err
	}

	// The empty password is always probed first; many documents are
	// encrypted for permissions only and open without one.
	if err := handler.Authenticate(nil); err == nil {
		r.handler = handler
		return nil
	}

	policy := cfg.EncryptionPolicy
	if policy == "" {
		policy = PolicyReject
	}
	if policy == PolicyReject || len(cfg.Password) == 0 {
		return encryption.ErrEncryptionRequired
	}
	if err := handler.Authenticate(cfg.Password); err != nil {
		return err
	}
	r.handler = handler
	return nil
}

// fileID returns the raw bytes of the first /ID element. Those bytes
// feed key derivation and are never themselves decrypted.
func (r *Reader) fileID() []byte {
	arr, ok := r.trailer.GetArray("ID")
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := arr.Get(0).(core.String); ok {
		return []byte(s)
	}
	return nil
}

// Version reports the header version.
func (r *Reader) Version() Version { return r.version }

// Trailer returns the merged trailer dictionary.
func (r *Reader) Trailer() core.Dict { return r.trailer }

// IsEncrypted reports whether the document carries an /Encrypt
// dictionary.
func (r *Reader) IsEncrypted() bool { return r.handler != nil }

// Recovered reports whether the cross-reference index came from the
// brute-force object scan instead of the declared tables.
func (r *Reader) Recovered() bool { return r.recovered }

// Size returns the buffer length in bytes.
func (r *Reader) Size() int64 { return int64(len(r.data)) }

// GetObject loads the object with the given number, consulting the
// cross-reference index and the object cache. Free or absent objects
// resolve to null, which is how a reference to them behaves.
func (r *Reader) GetObject(num int) (core.Object, error) {
	if obj, ok := r.cache[num]; ok {
		return obj, nil
	}

	entry, ok := r.xref.Get(num)
	if !ok || !entry.InUse() {
		return core.Null{}, nil
	}

	if r.loading[num] {
		return nil, fmt.Errorf("object %d: circular load", num)
	}
	r.loading[num] = true
	defer delete(r.loading, num)

	var obj core.Object
	var err error
	switch entry.Type {
	case core.XRefEntryInFile:
		obj, err = r.loadFileObject(num, entry)
	case core.XRefEntryInStream:
		obj, err = r.loadStreamObject(num, entry)
	default:
		return core.Null{}, nil
	}
	if err != nil {
		return nil, err
	}

	r.cache[num] = obj
	return obj, nil
}

// loadFileObject parses an uncompressed object at its file offset and
// applies lazy decryption.
func (r *Reader) loadFileObject(num int, entry *core.XRefEntry) (core.Object, error) {
	if entry.Offset < 0 || entry.Offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("object %d: offset %d outside buffer", num, entry.Offset)
	}

	parser := core.NewParser(bytes.NewReader(r.data[entry.Offset:]))
	parser.SetReferenceResolver(r)
	indObj, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("object %d at offset %d: %w", num, entry.Offset, err)
	}
	if indObj.Ref.Number != num {
		return nil, fmt.Errorf("object at offset %d is %d, index says %d", entry.Offset, indObj.Ref.Number, num)
	}

	obj := indObj.Object
	if r.handler != nil && num != r.encryptNum {
		obj, err = r.decryptObject(obj, num, indObj.Ref.Generation)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", num, err)
		}
	}
	return obj, nil
}

// loadStreamObject extracts a compressed object from its object stream.
// The container stream was decrypted when it was loaded, so nothing
// here is decrypted again.
func (r *Reader) loadStreamObject(num int, entry *core.XRefEntry) (core.Object, error) {
	objStream, err := r.objectStream(entry.StreamNumber)
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	obj, _, err := objStream.GetObjectByNumber(num)
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	return obj, nil
}

// objectStream loads and caches the object stream with the given
// number, following /Extends chains lazily through core.ObjectStream.
func (r *Reader) objectStream(num int) (*core.ObjectStream, error) {
	if objStream, ok := r.objStreams[num]; ok {
		return objStream, nil
	}

	obj, err := r.GetObject(num)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", num, err)
	}
	stream, ok := obj.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("object stream %d is %T, want stream", num, obj)
	}
	objStream, err := core.NewObjectStream(stream)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", num, err)
	}
	r.objStreams[num] = objStream
	return objStream, nil
}

// decryptObject walks obj and decrypts every string and stream payload
// in place of the ciphertext. References are left alone; their targets
// decrypt when loaded.
func (r *Reader) decryptObject(obj core.Object, num, gen int) (core.Object, error) {
	switch v := obj.(type) {
	case core.String:
		plain, err := r.handler.DecryptString([]byte(v), num, gen)
		if err != nil {
			return nil, fmt.Errorf("decrypt string: %w", err)
		}
		return core.String(plain), nil
	case core.Array:
		out := make(core.Array, len(v))
		for i, elem := range v {
			dec, err := r.decryptObject(elem, num, gen)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case core.Dict:
		out := make(core.Dict, len(v))
		for key, value := range v {
			dec, err := r.decryptObject(value, num, gen)
			if err != nil {
				return nil, err
			}
			out[key] = dec
		}
		return out, nil
	case *core.Stream:
		dict, err := r.decryptObject(v.Dict, num, gen)
		if err != nil {
			return nil, err
		}
		data, err := r.handler.DecryptStream(v.Data, num, gen)
		if err != nil {
			return nil, fmt.Errorf("decrypt stream: %w", err)
		}
		return &core.Stream{Dict: dict.(core.Dict), Data: data}, nil
	default:
		return obj, nil
	}
}

// ResolveReference implements core.ReferenceResolver and
// resolver.ObjectReader. A generation mismatch against the index
// resolves to null, matching how viewers treat stale references.
func (r *Reader) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	if entry, ok := r.xref.Get(ref.Number); ok {
		if entry.Type == core.XRefEntryInFile && entry.Generation != ref.Generation {
			return core.Null{}, nil
		}
	}
	return r.GetObject(ref.Number)
}

// Resolve follows obj through indirect references. It implements
// pages.ObjectResolver.
func (r *Reader) Resolve(obj core.Object) (core.Object, error) {
	return r.res.Resolve(obj)
}

// ResolveDeep expands obj and every reference reachable through it.
func (r *Reader) ResolveDeep(obj core.Object) (core.Object, error) {
	return r.res.ResolveDeep(obj)
}

// Catalog returns the document catalog.
func (r *Reader) Catalog() (*pages.Catalog, error) {
	obj, err := r.Resolve(r.trailer.Get("Root"))
	if err != nil {
		return nil, fmt.Errorf("resolving /Root: %w", err)
	}
	dict, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("%w: /Root is %T", ErrNoCatalog, obj)
	}
	return pages.NewCatalog(dict, r), nil
}

// Info returns the document information dictionary, or nil when the
// trailer has no /Info.
func (r *Reader) Info() (core.Dict, error) {
	obj := r.trailer.Get("Info")
	if obj == nil {
		return nil, nil
	}
	resolved, err := r.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("resolving /Info: %w", err)
	}
	dict, ok := resolved.(core.Dict)
	if !ok {
		return nil, nil
	}
	return dict, nil
}

// InfoText returns an information dictionary entry decoded from its PDF
// text encoding to UTF-8. UTF-16BE values are detected by their byte
// order mark; everything else is PDFDocEncoding. Missing entries return
// the empty string.
func (r *Reader) InfoText(key string) (string, error) {
	info, err := r.Info()
	if err != nil || info == nil {
		return "", err
	}
	obj := info.Get(key)
	if obj == nil {
		return "", nil
	}
	resolved, err := r.Resolve(obj)
	if err != nil {
		return "", fmt.Errorf("resolving /%s: %w", key, err)
	}
	s, ok := resolved.(core.String)
	if !ok {
		return "", nil
	}
	return core.DecodeTextString(s), nil
}

// Metadata returns the catalog metadata stream, or nil when absent.
func (r *Reader) Metadata() (*core.Stream, error) {
	catalog, err := r.Catalog()
	if err != nil {
		return nil, err
	}
	return catalog.Metadata()
}

func (r *Reader) ensurePageTree() error {
	if r.pageTree != nil {
		return nil
	}
	catalog, err := r.Catalog()
	if err != nil {
		return err
	}
	tree, err := catalog.PageTree()
	if err != nil {
		return err
	}
	r.pageTree = tree
	return nil
}

// PageCount returns the number of pages.
func (r *Reader) PageCount() (int, error) {
	if err := r.ensurePageTree(); err != nil {
		return 0, err
	}
	return r.pageTree.Count()
}

// Page returns the page at a zero-based index.
func (r *Reader) Page(index int) (*pages.Page, error) {
	if err := r.ensurePageTree(); err != nil {
		return nil, err
	}
	return r.pageTree.Page(index)
}

// Pages returns every page in document order.
func (r *Reader) Pages() ([]*pages.Page, error) {
	if err := r.ensurePageTree(); err != nil {
		return nil, err
	}
	return r.pageTree.Pages()
}

// DecodedContentStreams returns the page's content streams with their
// filter chains applied, one buffer per stream in document order.
// Encrypted payloads were already decrypted when their objects loaded.
func (r *Reader) DecodedContentStreams(index int) ([][]byte, error) {
	page, err := r.Page(index)
	if err != nil {
		return nil, err
	}
	contents, err := page.Contents()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(contents))
	for i, stream := range contents {
		data, err := stream.Decode()
		if err != nil {
			return nil, fmt.Errorf("decoding content stream %d of page %d: %w", i, index, err)
		}
		out = append(out, data)
	}
	return out, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

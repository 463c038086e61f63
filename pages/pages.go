package pages

import (
	"fmt"

	"github.com/vellumpdf/vellum/core"
)

// ObjectResolver follows indirect references on demand. *resolver.Resolver
// satisfies it.
type ObjectResolver interface {
	Resolve(obj core.Object) (core.Object, error)
}

// Catalog is the document catalog, the root of the object graph.
type Catalog struct {
	dict     core.Dict
	resolver ObjectResolver
}

// NewCatalog wraps a catalog dictionary.
func NewCatalog(dict core.Dict, resolver ObjectResolver) *Catalog {
	return &Catalog{dict: dict, resolver: resolver}
}

// Dict exposes the underlying catalog dictionary.
func (c *Catalog) Dict() core.Dict { return c.dict }

// Version returns the /Version override, or "" when the header version
// applies.
func (c *Catalog) Version() string {
	if name, ok := c.dict.GetName("Version"); ok {
		return string(name)
	}
	return ""
}

// Metadata returns the document metadata stream, or nil when absent.
func (c *Catalog) Metadata() (*core.Stream, error) {
	obj := c.dict.Get("Metadata")
	if obj == nil {
		return nil, nil
	}
	resolved, err := c.resolver.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("resolving /Metadata: %w", err)
	}
	stream, ok := resolved.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("/Metadata is %T, want stream", resolved)
	}
	return stream, nil
}

// PageTree returns the page tree rooted at the catalog's /Pages node.
func (c *Catalog) PageTree() (*PageTree, error) {
	obj := c.dict.Get("Pages")
	if obj == nil {
		return nil, fmt.Errorf("catalog has no /Pages entry")
	}
	resolved, err := c.resolver.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("resolving /Pages: %w", err)
	}
	root, ok := resolved.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("/Pages is %T, want dictionary", resolved)
	}
	return NewPageTree(root, c.resolver), nil
}

// inherited carries the attributes a page may take from ancestor /Pages
// nodes. The nearest ancestor that sets a value wins.
type inherited struct {
	mediaBox  core.Object
	cropBox   core.Object
	resources core.Object
	rotate    core.Object
}

// merge overlays the node's own attribute entries onto inh.
func (inh inherited) merge(node core.Dict) inherited {
	if v := node.Get("MediaBox"); v != nil {
		inh.mediaBox = v
	}
	if v := node.Get("CropBox"); v != nil {
		inh.cropBox = v
	}
	if v := node.Get("Resources"); v != nil {
		inh.resources = v
	}
	if v := node.Get("Rotate"); v != nil {
		inh.rotate = v
	}
	return inh
}

// PageTree flattens the /Pages hierarchy into an ordered list of leaves.
// Traversal is lazy and cached.
type PageTree struct {
	root     core.Dict
	resolver ObjectResolver
	pages    []*Page
}

// NewPageTree wraps the root /Pages dictionary.
func NewPageTree(root core.Dict, resolver ObjectResolver) *PageTree {
	return &PageTree{root: root, resolver: resolver}
}

// Count returns the number of leaf pages. The declared /Count is
// ignored in favor of the actual traversal, which survives writers that
// get the bookkeeping wrong.
func (t *PageTree) Count() (int, error) {
	pages, err := t.Pages()
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

// Pages returns all leaf pages in document order.
func (t *PageTree) Pages() ([]*Page, error) {
	if t.pages == nil {
		if err := t.load(); err != nil {
			return nil, err
		}
	}
	return t.pages, nil
}

// Page returns the page at a zero-based index.
func (t *PageTree) Page(index int) (*Page, error) {
	pages, err := t.Pages()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(pages) {
		return nil, fmt.Errorf("page index %d out of range [0, %d)", index, len(pages))
	}
	return pages[index], nil
}

func (t *PageTree) load() error {
	t.pages = make([]*Page, 0)
	if err := t.walk(t.root, inherited{}.merge(t.root), make(map[core.IndirectRef]bool)); err != nil {
		t.pages = nil
		return fmt.Errorf("traversing page tree: %w", err)
	}
	return nil
}

// walk visits node's kids in order. visited holds the references already
// on the current path, which stops /Kids cycles that malformed or
// malicious files can contain.
func (t *PageTree) walk(node core.Dict, inh inherited, visited map[core.IndirectRef]bool) error {
	kidsObj := node.Get("Kids")
	if kidsObj == nil {
		return fmt.Errorf("intermediate node has no /Kids entry")
	}
	resolved, err := t.resolver.Resolve(kidsObj)
	if err != nil {
		return fmt.Errorf("resolving /Kids: %w", err)
	}
	kids, ok := resolved.(core.Array)
	if !ok {
		return fmt.Errorf("/Kids is %T, want array", resolved)
	}

	for i, kidObj := range kids {
		if ref, ok := kidObj.(core.IndirectRef); ok {
			if visited[ref] {
				return fmt.Errorf("page tree cycle through object %d", ref.Number)
			}
			visited[ref] = true
		}

		kidResolved, err := t.resolver.Resolve(kidObj)
		if err != nil {
			return fmt.Errorf("resolving kid %d: %w", i, err)
		}
		kid, ok := kidResolved.(core.Dict)
		if !ok {
			return fmt.Errorf("kid %d is %T, want dictionary", i, kidResolved)
		}

		if t.isLeaf(kid) {
			t.pages = append(t.pages, &Page{
				dict:      kid,
				inherited: inh.merge(kid),
				resolver:  t.resolver,
			})
			continue
		}
		if err := t.walk(kid, inh.merge(kid), visited); err != nil {
			return err
		}
	}
	return nil
}

// isLeaf classifies a node. A /Type of Page or Pages decides directly;
// without one, the presence of /Kids marks an intermediate node.
func (t *PageTree) isLeaf(node core.Dict) bool {
	if name, ok := node.GetName("Type"); ok {
		return name == "Page"
	}
	return !node.Has("Kids")
}

// Page is a single leaf of the page tree together with the attribute
// values inherited from its ancestors.
type Page struct {
	dict      core.Dict
	inherited inherited
	resolver  ObjectResolver
}

// Dict exposes the raw page dictionary.
func (p *Page) Dict() core.Dict { return p.dict }

// MediaBox returns the page boundary as [llx lly urx ury] in points.
func (p *Page) MediaBox() ([4]float64, error) {
	return p.box(p.inherited.mediaBox, "MediaBox")
}

// CropBox returns the visible region, defaulting to the MediaBox.
func (p *Page) CropBox() ([4]float64, error) {
	if p.inherited.cropBox == nil {
		return p.MediaBox()
	}
	box, err := p.box(p.inherited.cropBox, "CropBox")
	if err != nil {
		return p.MediaBox()
	}
	return box, nil
}

func (p *Page) box(obj core.Object, name string) ([4]float64, error) {
	var box [4]float64
	if obj == nil {
		return box, fmt.Errorf("no /%s on page or any ancestor", name)
	}
	resolved, err := p.resolver.Resolve(obj)
	if err != nil {
		return box, fmt.Errorf("resolving /%s: %w", name, err)
	}
	arr, ok := resolved.(core.Array)
	if !ok || len(arr) != 4 {
		return box, fmt.Errorf("/%s must be a 4-element array", name)
	}
	for i := 0; i < 4; i++ {
		elem, err := p.resolver.Resolve(arr[i])
		if err != nil {
			return box, fmt.Errorf("resolving /%s[%d]: %w", name, i, err)
		}
		switch v := elem.(type) {
		case core.Int:
			box[i] = float64(v)
		case core.Real:
			box[i] = float64(v)
		default:
			return box, fmt.Errorf("/%s[%d] is %T, want number", name, i, elem)
		}
	}
	return box, nil
}

// Size returns the page width and height in points, derived from the
// MediaBox regardless of corner ordering.
func (p *Page) Size() (width, height float64, err error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, 0, err
	}
	width = box[2] - box[0]
	if width < 0 {
		width = -width
	}
	height = box[3] - box[1]
	if height < 0 {
		height = -height
	}
	return width, height, nil
}

// Rotate returns the page rotation normalized to 0, 90, 180 or 270.
func (p *Page) Rotate() int {
	if p.inherited.rotate == nil {
		return 0
	}
	resolved, err := p.resolver.Resolve(p.inherited.rotate)
	if err != nil {
		return 0
	}
	n, ok := resolved.(core.Int)
	if !ok {
		return 0
	}
	r := int(n) % 360
	if r < 0 {
		r += 360
	}
	return r - r%90
}

// Resources returns the resource dictionary in effect for the page, or
// an empty dictionary when none is declared anywhere on the path.
func (p *Page) Resources() (core.Dict, error) {
	if p.inherited.resources == nil {
		return core.Dict{}, nil
	}
	resolved, err := p.resolver.Resolve(p.inherited.resources)
	if err != nil {
		return nil, fmt.Errorf("resolving /Resources: %w", err)
	}
	dict, ok := resolved.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("/Resources is %T, want dictionary", resolved)
	}
	return dict, nil
}

// Contents returns the page's content streams in order. A single stream
// and an array of streams normalize to the same shape; a missing
// /Contents entry yields an empty slice.
func (p *Page) Contents() ([]*core.Stream, error) {
	obj := p.dict.Get("Contents")
	if obj == nil {
		return nil, nil
	}
	resolved, err := p.resolver.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("resolving /Contents: %w", err)
	}

	switch v := resolved.(type) {
	case *core.Stream:
		return []*core.Stream{v}, nil
	case core.Array:
		streams := make([]*core.Stream, 0, len(v))
		for i, elem := range v {
			r, err := p.resolver.Resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("resolving /Contents[%d]: %w", i, err)
			}
			stream, ok := r.(*core.Stream)
			if !ok {
				return nil, fmt.Errorf("/Contents[%d] is %T, want stream", i, r)
			}
			streams = append(streams, stream)
		}
		return streams, nil
	default:
		return nil, fmt.Errorf("/Contents is %T, want stream or array", resolved)
	}
}

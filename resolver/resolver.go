package resolver

import (
	"errors"
	"fmt"

	"github.com/vellumpdf/vellum/core"
)

var (
	// ErrCircularReference reports a reference chain that revisits an
	// object number within a single resolution.
	ErrCircularReference = errors.New("circular reference")

	// ErrDepthExceeded reports an object tree nested deeper than the
	// configured limit.
	ErrDepthExceeded = errors.New("maximum resolution depth exceeded")
)

// ObjectReader loads objects on behalf of a Resolver. *reader.Reader
// satisfies it.
type ObjectReader interface {
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// Resolver replaces indirect references with the objects they point to.
// Resolution never mutates its input; containers are copied when
// expanded. A Resolver is safe for concurrent use as long as the
// underlying ObjectReader is.
type Resolver struct {
	reader   ObjectReader
	maxDepth int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth caps container nesting during deep resolution. The
// default is 100.
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// New returns a Resolver that loads objects through reader.
func New(reader ObjectReader, opts ...Option) *Resolver {
	r := &Resolver{
		reader:   reader,
		maxDepth: 100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve follows obj through any chain of indirect references and
// returns the first non-reference object. Containers are returned as is.
func (r *Resolver) Resolve(obj core.Object) (core.Object, error) {
	visited := make(map[int]bool)
	for {
		ref, ok := obj.(core.IndirectRef)
		if !ok {
			return obj, nil
		}
		if visited[ref.Number] {
			return nil, fmt.Errorf("%w: object %d", ErrCircularReference, ref.Number)
		}
		visited[ref.Number] = true

		next, err := r.reader.ResolveReference(ref)
		if err != nil {
			return nil, fmt.Errorf("resolving %d %d R: %w", ref.Number, ref.Generation, err)
		}
		obj = next
	}
}

// ResolveDeep expands obj and every reference reachable through
// dictionaries, arrays and stream dictionaries. Each top-level call
// carries its own visited set, so a shared object may appear in many
// branches without tripping the cycle guard across calls.
func (r *Resolver) ResolveDeep(obj core.Object) (core.Object, error) {
	return r.resolveDeep(obj, make(map[int]bool), 0)
}

// ResolveDict deep-resolves every value of dict.
func (r *Resolver) ResolveDict(dict core.Dict) (core.Dict, error) {
	resolved, err := r.ResolveDeep(dict)
	if err != nil {
		return nil, err
	}
	return resolved.(core.Dict), nil
}

// ResolveArray deep-resolves every element of arr.
func (r *Resolver) ResolveArray(arr core.Array) (core.Array, error) {
	resolved, err := r.ResolveDeep(arr)
	if err != nil {
		return nil, err
	}
	return resolved.(core.Array), nil
}

func (r *Resolver) resolveDeep(obj core.Object, visited map[int]bool, depth int) (core.Object, error) {
	if depth >= r.maxDepth {
		return nil, fmt.Errorf("%w (%d)", ErrDepthExceeded, r.maxDepth)
	}

	switch v := obj.(type) {
	case core.IndirectRef:
		if visited[v.Number] {
			return nil, fmt.Errorf("%w: object %d", ErrCircularReference, v.Number)
		}
		visited[v.Number] = true
		// Unmark on the way out so a diamond-shaped tree, where two
		// branches share a target, resolves cleanly.
		defer delete(visited, v.Number)

		target, err := r.reader.ResolveReference(v)
		if err != nil {
			return nil, fmt.Errorf("resolving %d %d R: %w", v.Number, v.Generation, err)
		}
		return r.resolveDeep(target, visited, depth+1)

	case core.Dict:
		out := make(core.Dict, len(v))
		for key, value := range v {
			resolved, err := r.resolveDeep(value, visited, depth+1)
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", key, err)
			}
			out[key] = resolved
		}
		return out, nil

	case core.Array:
		out := make(core.Array, len(v))
		for i, elem := range v {
			resolved, err := r.resolveDeep(elem, visited, depth+1)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil

	case *core.Stream:
		dict, err := r.resolveDeep(v.Dict, visited, depth+1)
		if err != nil {
			return nil, fmt.Errorf("stream dict: %w", err)
		}
		return &core.Stream{Dict: dict.(core.Dict), Data: v.Data}, nil

	default:
		return obj, nil
	}
}

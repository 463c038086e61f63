package resolver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellumpdf/vellum/core"
)

// mapReader serves objects from a map, standing in for a full document
// reader.
type mapReader map[int]core.Object

func (m mapReader) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	obj, ok := m[ref.Number]
	if !ok {
		return nil, fmt.Errorf("object %d not found", ref.Number)
	}
	return obj, nil
}

func TestResolveShallow(t *testing.T) {
	reader := mapReader{
		1: core.Int(42),
		2: core.IndirectRef{Number: 1},
		3: core.Dict{"X": core.IndirectRef{Number: 1}},
	}
	r := New(reader)

	t.Run("non-reference passes through", func(t *testing.T) {
		obj, err := r.Resolve(core.Name("Direct"))
		require.NoError(t, err)
		assert.Equal(t, core.Name("Direct"), obj)
	})

	t.Run("single reference", func(t *testing.T) {
		obj, err := r.Resolve(core.IndirectRef{Number: 1})
		require.NoError(t, err)
		assert.Equal(t, core.Int(42), obj)
	})

	t.Run("reference chain", func(t *testing.T) {
		obj, err := r.Resolve(core.IndirectRef{Number: 2})
		require.NoError(t, err)
		assert.Equal(t, core.Int(42), obj)
	})

	t.Run("container values stay unresolved", func(t *testing.T) {
		obj, err := r.Resolve(core.IndirectRef{Number: 3})
		require.NoError(t, err)
		dict := obj.(core.Dict)
		assert.Equal(t, core.IndirectRef{Number: 1}, dict.Get("X"))
	})

	t.Run("missing object", func(t *testing.T) {
		_, err := r.Resolve(core.IndirectRef{Number: 99})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "99")
	})
}

func TestResolveCycle(t *testing.T) {
	reader := mapReader{
		1: core.IndirectRef{Number: 2},
		2: core.IndirectRef{Number: 1},
	}
	r := New(reader)

	_, err := r.Resolve(core.IndirectRef{Number: 1})
	assert.ErrorIs(t, err, ErrCircularReference)

	_, err = r.ResolveDeep(core.IndirectRef{Number: 1})
	assert.ErrorIs(t, err, ErrCircularReference)
}

func TestResolveDeep(t *testing.T) {
	reader := mapReader{
		1: core.Int(7),
		2: core.Array{core.IndirectRef{Number: 1}, core.Int(8)},
		3: core.Dict{
			"Nested": core.IndirectRef{Number: 2},
			"Plain":  core.Name("Here"),
		},
		4: &core.Stream{
			Dict: core.Dict{"Length": core.IndirectRef{Number: 1}},
			Data: []byte("body"),
		},
	}
	r := New(reader)

	t.Run("nested containers expand", func(t *testing.T) {
		obj, err := r.ResolveDeep(core.IndirectRef{Number: 3})
		require.NoError(t, err)
		dict := obj.(core.Dict)
		assert.Equal(t, core.Name("Here"), dict.Get("Plain"))
		arr := dict.Get("Nested").(core.Array)
		assert.Equal(t, core.Array{core.Int(7), core.Int(8)}, arr)
	})

	t.Run("input containers are not mutated", func(t *testing.T) {
		in := core.Dict{"V": core.IndirectRef{Number: 1}}
		out, err := r.ResolveDeep(in)
		require.NoError(t, err)
		assert.Equal(t, core.IndirectRef{Number: 1}, in.Get("V"))
		assert.Equal(t, core.Int(7), out.(core.Dict).Get("V"))
	})

	t.Run("stream dictionary expands, data is shared", func(t *testing.T) {
		obj, err := r.ResolveDeep(core.IndirectRef{Number: 4})
		require.NoError(t, err)
		stream := obj.(*core.Stream)
		length, ok := stream.Dict.GetInt("Length")
		require.True(t, ok)
		assert.Equal(t, core.Int(7), length)
		assert.Equal(t, []byte("body"), stream.Data)
	})
}

func TestResolveDeepSharedTarget(t *testing.T) {
	// Two branches point at the same object; that is a diamond, not a
	// cycle.
	reader := mapReader{
		1: core.Int(1),
		2: core.Array{core.IndirectRef{Number: 1}, core.IndirectRef{Number: 1}},
	}
	r := New(reader)

	out, err := r.ResolveArray(core.Array{core.IndirectRef{Number: 2}})
	require.NoError(t, err)
	assert.Equal(t, core.Array{core.Array{core.Int(1), core.Int(1)}}, out)
}

func TestResolveDepthLimit(t *testing.T) {
	// Each object wraps the next in an array, building a deep chain
	// without any cycle.
	reader := mapReader{}
	for i := 1; i < 50; i++ {
		reader[i] = core.Array{core.IndirectRef{Number: i + 1}}
	}
	reader[50] = core.Int(0)

	r := New(reader, WithMaxDepth(10))
	_, err := r.ResolveDeep(core.IndirectRef{Number: 1})
	assert.ErrorIs(t, err, ErrDepthExceeded)

	deep := New(reader, WithMaxDepth(500))
	_, err = deep.ResolveDeep(core.IndirectRef{Number: 1})
	assert.NoError(t, err)
}

func TestResolveDictAndArray(t *testing.T) {
	reader := mapReader{1: core.Real(1.5)}
	r := New(reader)

	dict, err := r.ResolveDict(core.Dict{"K": core.IndirectRef{Number: 1}})
	require.NoError(t, err)
	assert.Equal(t, core.Real(1.5), dict.Get("K"))

	arr, err := r.ResolveArray(core.Array{core.IndirectRef{Number: 1}})
	require.NoError(t, err)
	assert.Equal(t, core.Array{core.Real(1.5)}, arr)
}

package patch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom/patch"
)

// -----------------------------------------------------------------------------
// Diff Tests
// -----------------------------------------------------------------------------

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		before   map[string]any
		after    map[string]any
		expected []patch.Op
	}{
		{
			name:     "identical documents",
			before:   map[string]any{"a": 1},
			after:    map[string]any{"a": 1},
			expected: nil,
		},
		{
			name:   "added key",
			before: map[string]any{},
			after:  map[string]any{"x": 1},
			expected: []patch.Op{
				{Type: patch.OpAdd, Path: "/x", Value: float64(1)},
			},
		},
		{
			name:   "removed key",
			before: map[string]any{"x": 1},
			after:  map[string]any{},
			expected: []patch.Op{
				{Type: patch.OpRemove, Path: "/x"},
			},
		},
		{
			name:   "replaced scalar",
			before: map[string]any{"x": 1},
			after:  map[string]any{"x": 2},
			expected: []patch.Op{
				{Type: patch.OpReplace, Path: "/x", Value: float64(2)},
			},
		},
		{
			name:   "type change is a replace",
			before: map[string]any{"x": 1},
			after:  map[string]any{"x": []any{1}},
			expected: []patch.Op{
				{Type: patch.OpReplace, Path: "/x", Value: []any{float64(1)}},
			},
		},
		{
			name:   "keys visited in sorted order",
			before: map[string]any{"b": 1, "a": 1},
			after:  map[string]any{"b": 2, "c": 3},
			expected: []patch.Op{
				{Type: patch.OpRemove, Path: "/a"},
				{Type: patch.OpReplace, Path: "/b", Value: float64(2)},
				{Type: patch.OpAdd, Path: "/c", Value: float64(3)},
			},
		},
		{
			name:   "nested map change",
			before: map[string]any{"cfg": map[string]any{"depth": 1, "mode": "fast"}},
			after:  map[string]any{"cfg": map[string]any{"depth": 2, "mode": "fast"}},
			expected: []patch.Op{
				{Type: patch.OpReplace, Path: "/cfg/depth", Value: float64(2)},
			},
		},
		{
			name:   "sequence trailing adds ascend",
			before: map[string]any{"s": []any{"a"}},
			after:  map[string]any{"s": []any{"a", "b", "c"}},
			expected: []patch.Op{
				{Type: patch.OpAdd, Path: "/s/1", Value: "b"},
				{Type: patch.OpAdd, Path: "/s/2", Value: "c"},
			},
		},
		{
			name:   "sequence trailing removes descend",
			before: map[string]any{"s": []any{"a", "b", "c"}},
			after:  map[string]any{"s": []any{"a"}},
			expected: []patch.Op{
				{Type: patch.OpRemove, Path: "/s/2"},
				{Type: patch.OpRemove, Path: "/s/1"},
			},
		},
		{
			name:   "sequence divergence is positional replace",
			before: map[string]any{"s": []any{"a", "b"}},
			after:  map[string]any{"s": []any{"b", "a"}},
			expected: []patch.Op{
				{Type: patch.OpReplace, Path: "/s/0", Value: "b"},
				{Type: patch.OpReplace, Path: "/s/1", Value: "a"},
			},
		},
		{
			name:   "nested change inside sequence element",
			before: map[string]any{"s": []any{map[string]any{"n": 1}}},
			after:  map[string]any{"s": []any{map[string]any{"n": 2}}},
			expected: []patch.Op{
				{Type: patch.OpReplace, Path: "/s/0/n", Value: float64(2)},
			},
		},
		{
			name:   "keys with pointer characters are escaped",
			before: map[string]any{},
			after:  map[string]any{"a/b": 1, "c~d": 2},
			expected: []patch.Op{
				{Type: patch.OpAdd, Path: "/a~1b", Value: float64(1)},
				{Type: patch.OpAdd, Path: "/c~0d", Value: float64(2)},
			},
		},
		{
			name:   "typed values normalize before comparison",
			before: map[string]any{"n": 1},
			after:  map[string]any{"n": float64(1)},
			// int 1 and float64 1 are the same JSON value.
			expected: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := patch.Diff(tc.before, tc.after)
			assert.Equal(t, tc.expected, got)

			// Every diff must replay: applying it to before yields after.
			applied, err := patch.Apply(tc.before, got)
			require.NoError(t, err)
			expected, err := patch.Apply(tc.after, nil)
			require.NoError(t, err)
			assert.Equal(t, expected, applied)
		})
	}
}

// -----------------------------------------------------------------------------
// Apply Tests
// -----------------------------------------------------------------------------

func TestApply_ComposesFromEmptyDocument(t *testing.T) {
	// Three successive snapshots; replaying both diffs from empty must
	// land on the final state exactly.
	v1 := map[string]any{}
	v2 := map[string]any{"x": 1, "s": []any{"a"}}
	v3 := map[string]any{"s": []any{"a", "b"}, "cfg": map[string]any{"mode": "slow"}}

	ops := append(patch.Diff(v1, v2), patch.Diff(v2, v3)...)

	got, err := patch.Apply(map[string]any{}, ops)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"s":   []any{"a", "b"},
		"cfg": map[string]any{"mode": "slow"},
	}, got)
}

func TestApply_DoesNotMutateBase(t *testing.T) {
	base := map[string]any{"x": float64(1)}
	_, err := patch.Apply(base, []patch.Op{
		{Type: patch.OpReplace, Path: "/x", Value: float64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(1)}, base)
}

func TestApply_SequenceInsert(t *testing.T) {
	got, err := patch.Apply(map[string]any{"s": []any{"a", "c"}}, []patch.Op{
		{Type: patch.OpAdd, Path: "/s/1", Value: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"s": []any{"a", "b", "c"}}, got)
}

func TestApply_Errors(t *testing.T) {
	tests := []struct {
		name string
		base map[string]any
		op   patch.Op
	}{
		{
			name: "replace missing key",
			base: map[string]any{},
			op:   patch.Op{Type: patch.OpReplace, Path: "/x", Value: 1},
		},
		{
			name: "remove missing key",
			base: map[string]any{},
			op:   patch.Op{Type: patch.OpRemove, Path: "/x"},
		},
		{
			name: "index out of range",
			base: map[string]any{"s": []any{"a"}},
			op:   patch.Op{Type: patch.OpReplace, Path: "/s/5", Value: "b"},
		},
		{
			name: "descend into scalar",
			base: map[string]any{"x": 1},
			op:   patch.Op{Type: patch.OpAdd, Path: "/x/y", Value: 1},
		},
		{
			name: "pointer without leading slash",
			base: map[string]any{},
			op:   patch.Op{Type: patch.OpAdd, Path: "x", Value: 1},
		},
		{
			name: "remove document root",
			base: map[string]any{},
			op:   patch.Op{Type: patch.OpRemove, Path: ""},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := patch.Apply(tc.base, []patch.Op{tc.op})
			assert.Error(t, err)
		})
	}
}

func TestApply_EscapedPointerTokens(t *testing.T) {
	got, err := patch.Apply(map[string]any{}, []patch.Op{
		{Type: patch.OpAdd, Path: "/a~1b", Value: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a/b": float64(1)}, got)
}

package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path    string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"/", nil, false},
		{"inventory", []string{"inventory"}, false},
		{"/inventory/main/", []string{"inventory", "main"}, false},
		{"inventory//main", nil, true},
		{"lots/a.b", nil, true},
		{"lots/a#b", nil, true},
		{"lots/$x", nil, true},
		{"lots/[0]", nil, true},
		{"lots/*", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			segs, err := SplitPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPath))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, segs)
		})
	}
}

func TestRelated(t *testing.T) {
	assert.True(t, Related("a/b", "a/b"))
	assert.True(t, Related("a", "a/b/c"))
	assert.True(t, Related("a/b/c", "a"))
	assert.True(t, Related("", "a"))
	assert.False(t, Related("a/b", "a/bc"))
	assert.False(t, Related("a/b", "a/c"))
}

func TestFlattenAssembleRoundTrip(t *testing.T) {
	v := map[string]any{
		"name": "Paracetamol",
		"qty":  10.0,
		"meta": map[string]any{"codes": []any{"A1", "B2"}, "empty": map[string]any{}},
	}

	leaves := Flatten("inventory/main/lot1", v)
	assert.Equal(t, map[string]any{
		"inventory/main/lot1/name":       "Paracetamol",
		"inventory/main/lot1/qty":        10.0,
		"inventory/main/lot1/meta/codes": []any{"A1", "B2"},
	}, leaves)

	got, ok := Assemble("inventory/main/lot1", leaves)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"name": "Paracetamol",
		"qty":  10.0,
		"meta": map[string]any{"codes": []any{"A1", "B2"}},
	}, got)

	up, ok := Assemble("inventory", leaves)
	require.True(t, ok)
	assert.Contains(t, up.(map[string]any), "main")

	_, ok = Assemble("inventory/other", leaves)
	assert.False(t, ok)
}

func TestPrepareUpdateRejectsOverlap(t *testing.T) {
	_, _, err := prepareUpdate(map[string]any{
		"inventory/main":      map[string]any{"x": 1},
		"inventory/main-2/a":  1,
		"inventory/main/lot1": map[string]any{"y": 2},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPath))

	_, _, err = prepareUpdate(map[string]any{"": 1})
	assert.True(t, errors.Is(err, ErrInvalidPath))

	_, _, err = prepareUpdate(map[string]any{"a": map[string]any{"bad.key": 1}})
	assert.True(t, errors.Is(err, ErrInvalidPath))
}

func TestDecode(t *testing.T) {
	type lot struct {
		Name string  `json:"name"`
		Qty  float64 `json:"qty"`
	}
	var l lot
	require.NoError(t, Decode(map[string]any{"name": "Gauze", "qty": 100.0}, &l))
	assert.Equal(t, lot{Name: "Gauze", Qty: 100}, l)

	assert.Error(t, Decode("not an object", &l))
}

func TestAncestors(t *testing.T) {
	assert.Equal(t, []string{"a", "a/b"}, Ancestors("a/b/c"))
	assert.Empty(t, Ancestors("a"))
}

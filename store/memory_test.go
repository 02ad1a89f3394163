package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giygas/healthpost-api/interfaces"
)

func TestMemory_WriteRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Write(ctx, "inventory/main/lot1", map[string]any{"itemName": "Paracetamol", "currentQuantity": 10}))
	require.NoError(t, m.Write(ctx, "inventory/main/lot2/itemName", "Gauze"))

	v, ok, err := m.Read(ctx, "inventory/main/lot1/currentQuantity")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, v)

	v, ok, err = m.Read(ctx, "inventory/main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"lot1": map[string]any{"itemName": "Paracetamol", "currentQuantity": 10.0},
		"lot2": map[string]any{"itemName": "Gauze"},
	}, v)

	_, ok, err = m.Read(ctx, "inventory/other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_WriteReplacesDescendants(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Write(ctx, "a", map[string]any{"b": 1, "c": 2}))
	require.NoError(t, m.Write(ctx, "a", map[string]any{"d": 3}))

	v, _, err := m.Read(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"d": 3.0}, v)

	// a leaf gives way to an object written below it
	require.NoError(t, m.Write(ctx, "a/d/e", "x"))
	v, _, _ = m.Read(ctx, "a/d")
	assert.Equal(t, map[string]any{"e": "x"}, v)
}

func TestMemory_DeletePrunesEmptyParents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Write(ctx, "x/y/z", 1))
	require.NoError(t, m.Delete(ctx, "x/y/z"))

	_, ok, err := m.Read(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Write(ctx, "x/keep", 1))
	require.NoError(t, m.Write(ctx, "x/gone", map[string]any{}))
	v, _, _ := m.Read(ctx, "x")
	assert.Equal(t, map[string]any{"keep": 1.0}, v)
}

func TestMemory_UpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.Update(ctx, map[string]any{
		"inventory/main/lot1/currentQuantity": 0,
		"inventory/bad.path":                  1,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPath))

	_, ok, _ := m.Read(ctx, "inventory")
	assert.False(t, ok)

	require.NoError(t, m.Update(ctx, map[string]any{
		"inventory/main/lot1/currentQuantity": 0,
		"ledger/r1":                           map[string]any{"kind": "issue"},
	}))
	v, ok, _ := m.Read(ctx, "ledger/r1/kind")
	require.True(t, ok)
	assert.Equal(t, "issue", v)
}

func TestMemory_AcceptsStructs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	type request struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, m.Write(ctx, "requests/r1", request{ID: "r1", Status: "pending"}))

	v, _, err := m.Read(ctx, "requests/r1")
	require.NoError(t, err)
	var got request
	require.NoError(t, Decode(v, &got))
	assert.Equal(t, request{ID: "r1", Status: "pending"}, got)
}

func TestMemory_ReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Write(ctx, "a", map[string]any{"b": 1}))

	v, _, _ := m.Read(ctx, "a")
	v.(map[string]any)["b"] = 99.0

	again, _, _ := m.Read(ctx, "a/b")
	assert.Equal(t, 1.0, again)
}

func TestMemory_SubscribeRelatedPaths(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var mu sync.Mutex
	var got []interfaces.Change
	unsubscribe, err := m.Subscribe(ctx, "inventory/main", func(c interfaces.Change) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, m.Write(ctx, "inventory/main/lot1/currentQuantity", 5)) // descendant
	require.NoError(t, m.Write(ctx, "inventory/other/lot9", 1))                // unrelated
	require.NoError(t, m.Delete(ctx, "inventory"))                             // ancestor

	mu.Lock()
	require.Len(t, got, 2)
	assert.Equal(t, "inventory/main", got[0].Path)
	assert.True(t, got[0].Exists)
	assert.Equal(t, map[string]any{"lot1": map[string]any{"currentQuantity": 5.0}}, got[0].Value)
	assert.False(t, got[1].Exists)
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	require.NoError(t, m.Write(ctx, "inventory/main/lot1", 1))
	mu.Lock()
	assert.Len(t, got, 2)
	mu.Unlock()
}

func TestMemory_SubscribeEndsWithContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := m.Subscribe(ctx, "a", func(interfaces.Change) {})
	require.NoError(t, err)
	assert.Equal(t, 1, m.subs.len())

	cancel()
	assert.Eventually(t, func() bool { return m.subs.len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMemory_SubscribeValidates(t *testing.T) {
	m := NewMemory()
	_, err := m.Subscribe(context.Background(), "a..b", func(interfaces.Change) {})
	assert.True(t, errors.Is(err, ErrInvalidPath))

	_, err = m.Subscribe(context.Background(), "a", nil)
	assert.Error(t, err)
}

func TestMemory_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Write(ctx, JoinPath("counters", string(rune('a'+i))), i)
			_, _, _ = m.Read(ctx, "counters")
		}(i)
	}
	wg.Wait()

	v, _, err := m.Read(ctx, "counters")
	require.NoError(t, err)
	assert.Len(t, v.(map[string]any), 20)
}

package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/giygas/healthpost-api/interfaces"
)

// Compile-time check to ensure Memory implements DocumentStore
var _ interfaces.DocumentStore = (*Memory)(nil)

// Memory is an in-process document tree. Listeners run synchronously after
// the write lock is released, in no particular order.
type Memory struct {
	mu    sync.RWMutex
	root  map[string]any
	subs  *fanout
	close sync.Once
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{root: make(map[string]any), subs: newFanout()}
}

func (m *Memory) Read(_ context.Context, path string) (any, bool, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.get(segs)
	return clone(v), ok, nil
}

func (m *Memory) Write(ctx context.Context, path string, value any) error {
	return m.Update(ctx, map[string]any{path: value})
}

func (m *Memory) Update(_ context.Context, values map[string]any) error {
	paths, clean, err := prepareUpdate(values)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	m.mu.Lock()
	for _, p := range paths {
		m.set(strings.Split(p, "/"), clean[p])
	}
	m.mu.Unlock()

	m.subs.notify(paths, m.readCanonical)
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	return m.Update(ctx, map[string]any{path: nil})
}

func (m *Memory) Subscribe(ctx context.Context, path string, fn interfaces.ChangeFunc) (func(), error) {
	cp, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("subscribe %q: nil callback", cp)
	}
	return m.subs.add(ctx, cp, fn), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Close drops every subscription.
func (m *Memory) Close() error {
	m.close.Do(func() {
		m.subs.mu.Lock()
		m.subs.subs = make(map[uint64]listener)
		m.subs.mu.Unlock()
	})
	return nil
}

func (m *Memory) readCanonical(path string) (any, bool, error) {
	var segs []string
	if path != "" {
		segs = strings.Split(path, "/")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.get(segs)
	return clone(v), ok, nil
}

// get walks the tree; the caller holds the lock.
func (m *Memory) get(segs []string) (any, bool) {
	var node any = m.root
	for _, s := range segs {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if node, ok = obj[s]; !ok {
			return nil, false
		}
	}
	if obj, ok := node.(map[string]any); ok && len(obj) == 0 {
		return nil, false
	}
	return node, true
}

// set replaces the node at segs, creating parents and pruning the ones left
// empty. The caller holds the write lock.
func (m *Memory) set(segs []string, v any) {
	if obj, ok := v.(map[string]any); ok && len(obj) == 0 {
		v = nil
	}

	parents := make([]map[string]any, 0, len(segs))
	node := m.root
	for _, s := range segs[:len(segs)-1] {
		parents = append(parents, node)
		child, ok := node[s].(map[string]any)
		if !ok {
			if v == nil {
				return
			}
			child = make(map[string]any)
			node[s] = child
		}
		node = child
	}

	last := segs[len(segs)-1]
	if v == nil {
		delete(node, last)
	} else {
		node[last] = pruneEmpty(v)
	}

	for i := len(parents) - 1; i >= 0; i-- {
		if len(node) > 0 {
			break
		}
		delete(parents[i], segs[i])
		node = parents[i]
	}
}

// pruneEmpty drops nil leaves and empty objects from a normalized value.
func pruneEmpty(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range obj {
		child = pruneEmpty(child)
		if c, ok := child.(map[string]any); child == nil || (ok && len(c) == 0) {
			delete(obj, k)
			continue
		}
		obj[k] = child
	}
	return obj
}

// clone deep-copies objects and arrays so readers cannot alias the tree.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = clone(child)
		}
		return out
	}
	return v
}

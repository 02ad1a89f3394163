// Package store implements interfaces.DocumentStore over memory, Redis and
// PostgreSQL. All three share the same path rules and value model: objects
// are interior nodes, everything else (including arrays) is a leaf.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidPath is returned for malformed or overlapping paths.
var ErrInvalidPath = errors.New("invalid path")

const forbiddenSegmentChars = ".#$[]*?\\"

// SplitPath validates path and returns its segments. Leading and trailing
// slashes are ignored; the empty path is the root and yields no segments.
func SplitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	segs := strings.Split(trimmed, "/")
	for _, s := range segs {
		if err := ValidateSegment(s); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPath, path, err)
		}
	}
	return segs, nil
}

// ValidateSegment checks one path segment.
func ValidateSegment(s string) error {
	if s == "" {
		return errors.New("empty segment")
	}
	if i := strings.IndexAny(s, forbiddenSegmentChars); i >= 0 {
		return fmt.Errorf("segment %q contains %q", s, s[i])
	}
	return nil
}

// JoinPath joins segments with slashes.
func JoinPath(segs ...string) string {
	return strings.Join(segs, "/")
}

// CleanPath returns the canonical form of path.
func CleanPath(path string) (string, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	return JoinPath(segs...), nil
}

// Related reports whether a and b are the same path or one contains the
// other. Both must be canonical.
func Related(a, b string) bool {
	return a == b || isAncestor(a, b) || isAncestor(b, a)
}

func isAncestor(ancestor, path string) bool {
	if ancestor == "" {
		return path != ""
	}
	return strings.HasPrefix(path, ancestor+"/")
}

// Normalize converts v into the JSON value model through its encoding.
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, bool, float64, string:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

// Decode converts a value read from a store into dst.
func Decode(v any, dst any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode into %T: %w", dst, err)
	}
	return nil
}

// Flatten maps every leaf under v to its full path below base. Empty objects
// produce no leaves.
func Flatten(base string, v any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, base, v)
	return out
}

func flattenInto(out map[string]any, path string, v any) {
	obj, ok := v.(map[string]any)
	if !ok {
		if v != nil {
			out[path] = v
		}
		return
	}
	for k, child := range obj {
		p := k
		if path != "" {
			p = path + "/" + k
		}
		flattenInto(out, p, child)
	}
}

// Assemble rebuilds the value at base from leaves keyed by full path.
func Assemble(base string, leaves map[string]any) (any, bool) {
	if v, ok := leaves[base]; ok {
		return v, true
	}
	var root map[string]any
	for path, v := range leaves {
		rel := path
		if base != "" {
			if !strings.HasPrefix(path, base+"/") {
				continue
			}
			rel = path[len(base)+1:]
		}
		if root == nil {
			root = make(map[string]any)
		}
		setIn(root, strings.Split(rel, "/"), v)
	}
	if root == nil {
		return nil, false
	}
	return root, true
}

func setIn(node map[string]any, segs []string, v any) {
	for _, s := range segs[:len(segs)-1] {
		child, ok := node[s].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[s] = child
		}
		node = child
	}
	node[segs[len(segs)-1]] = v
}

// validateKeys checks that every object key is usable as a path segment.
func validateKeys(v any) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	for k, child := range obj {
		if err := ValidateSegment(k); err != nil {
			return err
		}
		if err := validateKeys(child); err != nil {
			return err
		}
	}
	return nil
}

// Ancestors returns the proper ancestors of path, nearest last.
func Ancestors(path string) []string {
	segs := strings.Split(path, "/")
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, JoinPath(segs[:i]...))
	}
	return out
}

// prepareUpdate validates, canonicalizes and normalizes a multi-path
// update. Paths are returned sorted.
func prepareUpdate(values map[string]any) ([]string, map[string]any, error) {
	clean := make(map[string]any, len(values))
	for p, v := range values {
		cp, err := CleanPath(p)
		if err != nil {
			return nil, nil, err
		}
		if cp == "" {
			return nil, nil, fmt.Errorf("%w: cannot write the root", ErrInvalidPath)
		}
		if _, dup := clean[cp]; dup {
			return nil, nil, fmt.Errorf("%w: %q given twice", ErrInvalidPath, cp)
		}
		nv, err := Normalize(v)
		if err != nil {
			return nil, nil, fmt.Errorf("value at %q: %w", cp, err)
		}
		if err := validateKeys(nv); err != nil {
			return nil, nil, fmt.Errorf("%w: value at %q: %v", ErrInvalidPath, cp, err)
		}
		clean[cp] = nv
	}

	paths := make([]string, 0, len(clean))
	for p := range clean {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		for _, a := range Ancestors(p) {
			if _, ok := clean[a]; ok {
				return nil, nil, fmt.Errorf("%w: %q overlaps %q", ErrInvalidPath, a, p)
			}
		}
	}
	return paths, clean, nil
}

// changeMessage is the wire form of a change notification shared by the
// Redis and PostgreSQL backends.
type changeMessage struct {
	Paths []string `json:"paths"`
}

package htmlmirror

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// DecodeJSON decodes a JSON value into a JsonML tree: objects become *Attrs
// (insertion order kept), arrays []any, numbers json.Number.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("decode jsonml: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode jsonml: trailing data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			list := []any{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		case '{':
			attrs := NewAttrs()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key %v is not a string", kt)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				attrs.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return attrs, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return tok, nil
	}
}

// Clone deep-copies a tree.
func Clone(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = Clone(c)
		}
		return out
	case *Attrs:
		out := NewAttrs()
		for _, k := range t.Keys() {
			out.Set(k, Clone(t.values[k]))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = Clone(c)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two trees are structurally equal. Attribute order is
// not significant.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Attrs:
		y, ok := b.(*Attrs)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, k := range x.Keys() {
			yv, ok := y.Get(k)
			if !ok || !Equal(x.values[k], yv) {
				return false
			}
		}
		return true
	case map[string]any:
		if y, ok := b.(map[string]any); ok {
			return Equal(attrsFromMap(x), attrsFromMap(y))
		}
		return Equal(attrsFromMap(x), b)
	case nil:
		return b == nil
	default:
		switch b.(type) {
		case []any, *Attrs:
			return false
		}
		return a == b
	}
}

// Normalize canonicalizes a tree so that every element carries an attribute
// object at index 1 and a lowercase tag. The input is not modified.
func Normalize(tree any) any {
	switch t := tree.(type) {
	case nil:
		return []any{}
	case string:
		return t
	case []any:
		if len(t) == 0 {
			return []any{}
		}
		tag, ok := t[0].(string)
		if !ok {
			tag = fmt.Sprint(t[0])
		}

		var attrs *Attrs
		children := t[1:]
		if len(t) > 1 {
			switch a := t[1].(type) {
			case []any, string:
				// attributes omitted, slot 1 is the first child
			case *Attrs:
				attrs = Clone(a).(*Attrs)
				children = t[2:]
			case map[string]any:
				attrs = attrsFromMap(a)
				children = t[2:]
			default:
				// a scalar cannot be rendered as attributes; it is dropped
				children = t[2:]
			}
		}
		if attrs == nil {
			attrs = NewAttrs()
		}

		out := make([]any, 0, len(children)+2)
		out = append(out, strings.ToLower(tag), attrs)
		for _, c := range children {
			out = append(out, Normalize(c))
		}
		return out
	default:
		return Clone(tree)
	}
}

func attrsFromMap(m map[string]any) *Attrs {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := NewAttrs()
	for _, k := range keys {
		attrs.Set(k, Clone(m[k]))
	}
	return attrs
}

// SanitizeKeys replaces search with replacement in every object key of the tree.
// When a rewritten key collides with an existing key, the rewritten key's value
// wins and the entry keeps the earlier of the two positions.
func SanitizeKeys(tree any, search, replacement string) any {
	switch t := tree.(type) {
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = SanitizeKeys(c, search, replacement)
		}
		return out
	case *Attrs:
		out := NewAttrs()
		rewritten := make(map[string]bool)
		for _, k := range t.Keys() {
			v := SanitizeKeys(t.values[k], search, replacement)
			clean := strings.ReplaceAll(k, search, replacement)
			if clean != k {
				out.Set(clean, v)
				rewritten[clean] = true
				continue
			}
			if rewritten[k] {
				continue
			}
			out.Set(k, v)
		}
		return out
	case map[string]any:
		return SanitizeKeys(attrsFromMap(t), search, replacement)
	default:
		return tree
	}
}

// Skeleton returns the minimal document, ["html", {}, ["body", {}]].
func Skeleton() any {
	return []any{"html", NewAttrs(), []any{"body", NewAttrs()}}
}

func isElement(v any) ([]any, string, bool) {
	el, ok := v.([]any)
	if !ok || len(el) == 0 {
		return nil, "", false
	}
	tag, ok := el[0].(string)
	return el, tag, ok
}

func elementAttrs(el []any) *Attrs {
	if len(el) > 1 {
		if a, ok := el[1].(*Attrs); ok {
			return a
		}
	}
	return nil
}

func elementChildren(el []any) []any {
	if len(el) < 2 {
		return nil
	}
	return el[2:]
}

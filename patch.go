package htmlmirror

import (
	"fmt"
	"unicode/utf16"
)

// Apply applies ops in order to a copy of tree and returns the result. The
// input tree is never modified. Deleted values (ld, od, sd) must match what is
// in the tree, so an edit computed against a different tree is rejected with
// ErrInvalidOp instead of corrupting the document.
func Apply(tree any, ops []Op) (any, error) {
	doc := Clone(tree)
	for i, op := range ops {
		var err error
		doc, err = applyOp(doc, op)
		if err != nil {
			return nil, fmt.Errorf("failed to apply op %d (%s): %w", i, op, err)
		}
	}
	return doc, nil
}

func applyOp(root any, op Op) (any, error) {
	switch {
	case op.Si != "" || op.Sd != "":
		return applyText(root, op)
	case op.Li != nil || op.Ld != nil || op.Lm != nil:
		return applyList(root, op)
	case op.Oi != nil || op.Od != nil:
		return applyObject(root, op)
	}
	// json0 treats an empty component as a no-op
	return root, nil
}

func applyText(root any, op Op) (any, error) {
	if len(op.P) == 0 {
		return nil, fmt.Errorf("%w: string operation needs an offset", ErrInvalidOp)
	}
	offset, ok := op.P[len(op.P)-1].(int)
	if !ok {
		return nil, fmt.Errorf("%w: string offset %v is not an index", ErrInvalidOp, op.P[len(op.P)-1])
	}
	return modify(root, op.P[:len(op.P)-1], func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: target of string operation is %T", ErrInvalidOp, v)
		}
		units := utf16.Encode([]rune(s))
		if offset < 0 || offset > len(units) {
			return nil, fmt.Errorf("%w: string offset %d out of range", ErrInvalidOp, offset)
		}
		if op.Sd != "" {
			deleted := utf16.Encode([]rune(op.Sd))
			end := offset + len(deleted)
			if end > len(units) || string(utf16.Decode(units[offset:end])) != op.Sd {
				return nil, fmt.Errorf("%w: deleted string %q does not match", ErrInvalidOp, op.Sd)
			}
			units = append(units[:offset:offset], units[end:]...)
		}
		if op.Si != "" {
			inserted := utf16.Encode([]rune(op.Si))
			out := make([]uint16, 0, len(units)+len(inserted))
			out = append(out, units[:offset]...)
			out = append(out, inserted...)
			units = append(out, units[offset:]...)
		}
		return string(utf16.Decode(units)), nil
	})
}

func applyList(root any, op Op) (any, error) {
	if len(op.P) == 0 {
		return nil, fmt.Errorf("%w: list operation on the root", ErrInvalidOp)
	}
	index, ok := op.P[len(op.P)-1].(int)
	if !ok {
		return nil, fmt.Errorf("%w: list index %v is not an index", ErrInvalidOp, op.P[len(op.P)-1])
	}
	return modify(root, op.P[:len(op.P)-1], func(v any) (any, error) {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: target of list operation is %T", ErrInvalidOp, v)
		}

		if op.Lm != nil {
			to := *op.Lm
			if index < 0 || index >= len(list) || to < 0 || to >= len(list) {
				return nil, fmt.Errorf("%w: list move %d -> %d out of range", ErrInvalidOp, index, to)
			}
			moved := list[index]
			list = append(list[:index:index], list[index+1:]...)
			return insertAt(list, to, moved), nil
		}

		if op.Ld != nil {
			if index < 0 || index >= len(list) {
				return nil, fmt.Errorf("%w: list delete index %d out of range", ErrInvalidOp, index)
			}
			if !Equal(list[index], op.Ld) {
				return nil, fmt.Errorf("%w: deleted list item at %d does not match", ErrInvalidOp, index)
			}
			if op.Li != nil {
				list[index] = Clone(op.Li)
				return list, nil
			}
			return append(list[:index:index], list[index+1:]...), nil
		}

		if index < 0 || index > len(list) {
			return nil, fmt.Errorf("%w: list insert index %d out of range", ErrInvalidOp, index)
		}
		return insertAt(list, index, Clone(op.Li)), nil
	})
}

func applyObject(root any, op Op) (any, error) {
	if len(op.P) == 0 {
		if op.Od != nil && !Equal(root, op.Od) {
			return nil, fmt.Errorf("%w: deleted document does not match", ErrInvalidOp)
		}
		return Clone(op.Oi), nil
	}
	key, ok := op.P[len(op.P)-1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: object key %v is not a string", ErrInvalidOp, op.P[len(op.P)-1])
	}
	return modify(root, op.P[:len(op.P)-1], func(v any) (any, error) {
		obj, ok := v.(*Attrs)
		if !ok {
			return nil, fmt.Errorf("%w: target of object operation is %T", ErrInvalidOp, v)
		}
		if op.Od != nil {
			current, exists := obj.Get(key)
			if !exists || !Equal(current, op.Od) {
				return nil, fmt.Errorf("%w: deleted value for key %q does not match", ErrInvalidOp, key)
			}
			if op.Oi == nil {
				obj.Delete(key)
				return obj, nil
			}
		}
		obj.Set(key, Clone(op.Oi))
		return obj, nil
	})
}

// modify replaces the value at path with fn's result and returns the new root.
// Containers along the path are updated in place, so callers pass a copy.
func modify(node any, path Path, fn func(any) (any, error)) (any, error) {
	if len(path) == 0 {
		return fn(node)
	}
	child, err := getChild(node, path[0])
	if err != nil {
		return nil, err
	}
	updated, err := modify(child, path[1:], fn)
	if err != nil {
		return nil, err
	}
	switch p := node.(type) {
	case []any:
		p[path[0].(int)] = updated
	case *Attrs:
		p.Set(path[0].(string), updated)
	}
	return node, nil
}

func insertAt(list []any, index int, v any) []any {
	list = append(list, nil)
	copy(list[index+1:], list[index:])
	list[index] = v
	return list
}

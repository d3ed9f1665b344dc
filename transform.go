package htmlmirror

import (
	"fmt"
	"unicode/utf16"
)

// Transform adjusts ops (which assume the same base document as against) so
// they can be applied after against. Only index shifting is handled; any edit
// touching a node that against inserted at the same position, replaced or
// deleted returns ErrConflict, and the caller is expected to resynchronize.
func Transform(ops, against []Op) ([]Op, error) {
	out := make([]Op, len(ops))
	for i, op := range ops {
		out[i] = op
		out[i].P = op.P.clone()
	}

	for _, a := range against {
		for i := range out {
			var err error
			out[i], err = transformOp(out[i], a)
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// transformOp adjusts b (which assumes State 0) to be valid on State 1 (after a).
func transformOp(b, a Op) (Op, error) {
	switch {
	case a.Si != "" || a.Sd != "":
		return transformAgainstText(b, a)
	case a.Lm != nil:
		if parent, _, ok := splitIndex(a.P); ok && isDescendant(parent, b.P) {
			return b, conflict(b, a)
		}
		return b, nil
	case a.Li != nil && a.Ld != nil:
		if pathEqual(a.P, b.P) || isDescendant(a.P, b.P) {
			return b, conflict(b, a)
		}
		return b, nil
	case a.Li != nil:
		parent, index, ok := splitIndex(a.P)
		if !ok || !isDescendant(parent, b.P) {
			return b, nil
		}
		idx, ok := b.P[len(parent)].(int)
		if !ok || idx < index {
			return b, nil
		}
		if idx == index && len(b.P) == len(a.P) && b.Li != nil && b.Ld == nil {
			// concurrent inserts at the same position have no agreed order
			return b, conflict(b, a)
		}
		b.P[len(parent)] = idx + 1
		return b, nil
	case a.Ld != nil:
		parent, index, ok := splitIndex(a.P)
		if !ok || !isDescendant(parent, b.P) {
			return b, nil
		}
		idx, ok := b.P[len(parent)].(int)
		if !ok || idx < index {
			return b, nil
		}
		if idx == index {
			if len(b.P) == len(a.P) && b.Li != nil && b.Ld == nil {
				return b, nil
			}
			return b, conflict(b, a)
		}
		b.P[len(parent)] = idx - 1
		return b, nil
	case a.Oi != nil || a.Od != nil:
		if len(a.P) == 0 || pathEqual(a.P, b.P) || isDescendant(a.P, b.P) {
			return b, conflict(b, a)
		}
		return b, nil
	}
	return b, nil
}

func transformAgainstText(b, a Op) (Op, error) {
	str, aOff, ok := splitIndex(a.P)
	if !ok {
		return b, nil
	}
	if b.Si == "" && b.Sd == "" {
		if (b.Ld != nil || b.Od != nil) && (pathEqual(b.P, str) || isDescendant(b.P, str)) {
			return b, conflict(b, a)
		}
		return b, nil
	}
	bStr, bOff, ok := splitIndex(b.P)
	if !ok || !pathEqual(str, bStr) {
		return b, nil
	}
	last := len(b.P) - 1
	bEnd := bOff + textLen(b.Sd)

	if a.Si != "" {
		n := textLen(a.Si)
		switch {
		case bOff > aOff, bOff == aOff && b.Sd != "":
			b.P[last] = bOff + n
		case bOff == aOff:
			return b, conflict(b, a)
		case b.Sd != "" && bEnd > aOff:
			// insert lands inside the span b deletes
			return b, conflict(b, a)
		}
		return b, nil
	}

	n := textLen(a.Sd)
	switch {
	case bOff >= aOff+n:
		b.P[last] = bOff - n
	case b.Sd == "" && bOff <= aOff:
	case b.Sd != "" && bEnd <= aOff:
	default:
		return b, conflict(b, a)
	}
	return b, nil
}

func textLen(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// splitIndex splits a path into its parent and trailing index.
func splitIndex(p Path) (Path, int, bool) {
	if len(p) == 0 {
		return nil, 0, false
	}
	index, ok := p[len(p)-1].(int)
	return p[:len(p)-1], index, ok
}

func conflict(b, a Op) error {
	return fmt.Errorf("%w: %s vs %s", ErrConflict, b, a)
}

func pathEqual(a, b Path) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isDescendant reports whether child lies strictly below ancestor.
func isDescendant(ancestor, child Path) bool {
	if len(child) <= len(ancestor) {
		return false
	}
	for i := range ancestor {
		if child[i] != ancestor[i] {
			return false
		}
	}
	return true
}

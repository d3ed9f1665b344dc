package htmlmirror

import "unicode/utf16"

// Diff calculates the operations needed to transform oldTree into newTree.
// Both trees must already be normalized: diffing raw trees manufactures edits
// out of representational differences (missing vs empty attributes).
func Diff(oldTree, newTree any) []Op {
	if Equal(oldTree, newTree) {
		return nil
	}
	if !sameKind(oldTree, newTree) {
		return ReplaceRoot(oldTree, newTree)
	}
	return diffNodes(oldTree, newTree, Path{})
}

// ReplaceRoot returns the single operation replacing the whole document.
func ReplaceRoot(oldTree, newTree any) []Op {
	op := Op{P: Path{}, Oi: Clone(newTree)}
	if oldTree != nil {
		op.Od = Clone(oldTree)
	}
	return []Op{op}
}

// sameKind reports whether two nodes can be diffed in place: both text, or
// both elements with the same tag.
func sameKind(a, b any) bool {
	if _, ok := a.(string); ok {
		_, ok := b.(string)
		return ok
	}
	_, tagA, okA := isElement(a)
	_, tagB, okB := isElement(b)
	return okA && okB && tagA == tagB
}

// diffNodes compares two nodes of the same kind at path.
func diffNodes(oldNode, newNode any, path Path) []Op {
	if oldText, ok := oldNode.(string); ok {
		return diffText(oldText, newNode.(string), path)
	}

	oldEl := oldNode.([]any)
	newEl := newNode.([]any)

	var ops []Op
	ops = append(ops, diffAttributes(elementAttrs(oldEl), elementAttrs(newEl), path.child(1))...)
	ops = append(ops, diffChildren(elementChildren(oldEl), elementChildren(newEl), path)...)
	return ops
}

// diffText emits at most one delete and one insert covering the changed span
// between the common prefix and suffix. Offsets count UTF-16 code units, as
// json0 string operations do.
func diffText(oldText, newText string, path Path) []Op {
	if oldText == newText {
		return nil
	}
	o := utf16.Encode([]rune(oldText))
	n := utf16.Encode([]rune(newText))

	prefix := 0
	for prefix < len(o) && prefix < len(n) && o[prefix] == n[prefix] {
		prefix++
	}
	if prefix > 0 && utf16.IsSurrogate(rune(o[prefix-1])) && o[prefix-1] < 0xdc00 {
		// never split a surrogate pair
		prefix--
	}
	suffix := 0
	for suffix < len(o)-prefix && suffix < len(n)-prefix && o[len(o)-1-suffix] == n[len(n)-1-suffix] {
		suffix++
	}
	if suffix > 0 && utf16.IsSurrogate(rune(o[len(o)-suffix])) && o[len(o)-suffix] >= 0xdc00 {
		suffix--
	}

	var ops []Op
	if deleted := o[prefix : len(o)-suffix]; len(deleted) > 0 {
		ops = append(ops, Op{P: path.child(prefix), Sd: string(utf16.Decode(deleted))})
	}
	if inserted := n[prefix : len(n)-suffix]; len(inserted) > 0 {
		ops = append(ops, Op{P: path.child(prefix), Si: string(utf16.Decode(inserted))})
	}
	return ops
}

// diffAttributes emits od for removed keys, od+oi for changed values and oi for
// added keys, in the new tree's key order.
func diffAttributes(oldAttrs, newAttrs *Attrs, path Path) []Op {
	var ops []Op

	for _, k := range oldAttrs.Keys() {
		if _, exists := newAttrs.Get(k); !exists {
			vOld, _ := oldAttrs.Get(k)
			ops = append(ops, Op{P: path.child(k), Od: Clone(vOld)})
		}
	}

	for _, k := range newAttrs.Keys() {
		vNew, _ := newAttrs.Get(k)
		vOld, exists := oldAttrs.Get(k)
		if !exists {
			ops = append(ops, Op{P: path.child(k), Oi: Clone(vNew)})
		} else if !Equal(vOld, vNew) {
			ops = append(ops, Op{P: path.child(k), Od: Clone(vOld), Oi: Clone(vNew)})
		}
	}

	return ops
}

// diffChildren compares the child lists of two elements at parentPath.
// Common leading and trailing children are skipped. The remaining middle is
// paired by index; surplus old children are deleted from the end backwards so
// earlier indices stay valid, then surplus new children are inserted in order.
func diffChildren(oldChildren, newChildren []any, parentPath Path) []Op {
	const offset = 2 // tag and attributes precede children

	prefix := 0
	for prefix < len(oldChildren) && prefix < len(newChildren) && Equal(oldChildren[prefix], newChildren[prefix]) {
		prefix++
	}
	suffix := 0
	for suffix < len(oldChildren)-prefix && suffix < len(newChildren)-prefix &&
		Equal(oldChildren[len(oldChildren)-1-suffix], newChildren[len(newChildren)-1-suffix]) {
		suffix++
	}

	oldMid := oldChildren[prefix : len(oldChildren)-suffix]
	newMid := newChildren[prefix : len(newChildren)-suffix]

	commonLen := min(len(oldMid), len(newMid))

	var ops []Op
	for i := 0; i < commonLen; i++ {
		childPath := parentPath.child(offset + prefix + i)
		if sameKind(oldMid[i], newMid[i]) {
			ops = append(ops, diffNodes(oldMid[i], newMid[i], childPath)...)
			continue
		}
		ops = append(ops, Op{P: childPath, Ld: Clone(oldMid[i]), Li: Clone(newMid[i])})
	}

	for i := len(oldMid) - 1; i >= commonLen; i-- {
		ops = append(ops, Op{
			P:  parentPath.child(offset + prefix + i),
			Ld: Clone(oldMid[i]),
		})
	}

	for i := commonLen; i < len(newMid); i++ {
		ops = append(ops, Op{
			P:  parentPath.child(offset + prefix + i),
			Li: Clone(newMid[i]),
		})
	}

	return ops
}

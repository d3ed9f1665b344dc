package htmlmirror

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

var (
	ErrNoRoot        = errors.New("markup has no root element")
	ErrMultipleRoots = errors.New("markup has more than one root element")
)

// DefaultVoidTags are the elements rendered without children or an end tag.
var DefaultVoidTags = []string{
	"area", "base", "br", "col", "embed", "hr", "img", "input", "keygen", "link", "menuitem",
	"meta", "param", "source", "track", "wbr",
}

// rawTextTags hold text the tokenizer reads verbatim, so it is rendered unescaped.
var rawTextTags = map[string]bool{
	"script":    true,
	"style":     true,
	"xmp":       true,
	"iframe":    true,
	"noembed":   true,
	"noframes":  true,
	"noscript":  true,
	"plaintext": true,
}

var (
	// the tokenizer folds \r\n to \n before unescaping, so a carriage return
	// only survives as a reference
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#13;")
	attrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;", "\r", "&#13;")
)

// Parse converts markup into a JsonML tree. It works on the token stream, so
// no implied elements (head, tbody, ...) are added: the tree mirrors the markup.
// Comments and doctypes are dropped.
func Parse(markup string) (any, error) {
	voids := tagSet(DefaultVoidTags)
	z := html.NewTokenizer(strings.NewReader(markup))

	var roots []any
	var stack [][]any

	appendNode := func(n any) {
		if len(stack) == 0 {
			roots = append(roots, n)
			return
		}
		top := len(stack) - 1
		stack[top] = append(stack[top], n)
	}
	// closeTop pops the innermost open element into its parent.
	closeTop := func() {
		top := len(stack) - 1
		el := stack[top]
		stack = stack[:top]
		appendNode(el)
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("failed to tokenize markup: %w", err)
			}
			for len(stack) > 0 {
				closeTop()
			}
			return singleRoot(roots)

		case html.TextToken:
			appendNode(string(z.Text()))

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			attrs := NewAttrs()
			for _, a := range tok.Attr {
				attrs.Set(a.Key, a.Val)
			}
			el := []any{tok.Data, attrs}
			if tt == html.SelfClosingTagToken || voids[tok.Data] {
				appendNode(el)
				continue
			}
			stack = append(stack, el)

		case html.EndTagToken:
			tok := z.Token()
			match := -1
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i][0] == tok.Data {
					match = i
					break
				}
			}
			if match < 0 {
				// stray end tag
				continue
			}
			for len(stack) > match {
				closeTop()
			}
		}
	}
}

func singleRoot(nodes []any) (any, error) {
	var root any
	for _, n := range nodes {
		if s, ok := n.(string); ok {
			if strings.TrimSpace(s) == "" {
				continue
			}
			return nil, fmt.Errorf("%w: top-level text %q", ErrMultipleRoots, s)
		}
		if root != nil {
			return nil, ErrMultipleRoots
		}
		root = n
	}
	if root == nil {
		return nil, ErrNoRoot
	}
	return root, nil
}

// Render converts a JsonML tree to markup. Elements named in voidTags get no
// end tag and their children are not rendered.
func Render(tree any, voidTags []string) string {
	var sb strings.Builder
	renderNode(&sb, tree, tagSet(voidTags), false)
	return sb.String()
}

func renderNode(sb *strings.Builder, node any, voids map[string]bool, raw bool) {
	switch n := node.(type) {
	case string:
		if raw {
			sb.WriteString(n)
		} else {
			textEscaper.WriteString(sb, n)
		}
	case []any:
		el, tag, ok := isElement(n)
		if !ok {
			return
		}
		sb.WriteByte('<')
		sb.WriteString(tag)
		children := el[1:]
		if attrs := elementAttrs(el); attrs != nil {
			children = el[2:]
			for _, k := range attrs.Keys() {
				v, _ := attrs.Get(k)
				sb.WriteByte(' ')
				sb.WriteString(k)
				sb.WriteString(`="`)
				attrEscaper.WriteString(sb, fmt.Sprint(v))
				sb.WriteByte('"')
			}
		}
		sb.WriteByte('>')
		if voids[tag] {
			return
		}
		for _, c := range children {
			renderNode(sb, c, voids, rawTextTags[tag])
		}
		sb.WriteString("</")
		sb.WriteString(tag)
		sb.WriteByte('>')
	}
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	return set
}

// GetNode traverses the tree using the provided path to find a specific value.
func GetNode(root any, path Path) (any, error) {
	current := root
	for i, elem := range path {
		child, err := getChild(current, elem)
		if err != nil {
			return nil, fmt.Errorf("node not found at path %v (step %d): %w", path, i, err)
		}
		current = child
	}
	return current, nil
}

func getChild(parent any, elem any) (any, error) {
	switch p := parent.(type) {
	case []any:
		index, ok := elem.(int)
		if !ok {
			return nil, fmt.Errorf("%w: key %v into a list", ErrInvalidOp, elem)
		}
		if index < 0 || index >= len(p) {
			return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidOp, index, len(p))
		}
		return p[index], nil
	case *Attrs:
		key, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("%w: index %v into an object", ErrInvalidOp, elem)
		}
		v, ok := p.Get(key)
		if !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrInvalidOp, key)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: cannot descend into %T", ErrInvalidOp, parent)
}

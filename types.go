package htmlmirror

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidOp is returned when an operation cannot be applied to a tree.
	ErrInvalidOp = errors.New("invalid operation")
	// ErrConflict is returned by Transform when two operations touch the same node.
	ErrConflict = errors.New("conflicting operations")
)

// Path addresses a value inside a JsonML tree. Elements are int (list index)
// or string (object key).
// Example: [2, 1, "class"] means root -> child at list index 2 -> attributes -> "class"
type Path []any

// UnmarshalJSON decodes numbers as list indices and strings as object keys.
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	path := make(Path, 0, len(raw))
	for _, r := range raw {
		var key string
		if err := json.Unmarshal(r, &key); err == nil {
			path = append(path, key)
			continue
		}
		var index int
		if err := json.Unmarshal(r, &index); err != nil {
			return fmt.Errorf("path element %s: %w", r, err)
		}
		path = append(path, index)
	}
	*p = path
	return nil
}

func (p Path) clone() Path {
	return append(Path(nil), p...)
}

func (p Path) child(elem any) Path {
	return append(p.clone(), elem)
}

// Op is one json0 operation component. An edit is a []Op applied in order.
type Op struct {
	P  Path   `json:"p"`
	Li any    `json:"li,omitempty"` // list insert
	Ld any    `json:"ld,omitempty"` // list delete (value being removed)
	Oi any    `json:"oi,omitempty"` // object insert, or root replace with an empty path
	Od any    `json:"od,omitempty"` // object delete
	Si string `json:"si,omitempty"` // string insert at the offset in the last path element
	Sd string `json:"sd,omitempty"` // string delete at the offset in the last path element
	Lm *int   `json:"lm,omitempty"` // list move to index
}

// UnmarshalJSON decodes inserted and deleted values with ordered attributes.
func (o *Op) UnmarshalJSON(data []byte) error {
	var raw struct {
		P  Path            `json:"p"`
		Li json.RawMessage `json:"li"`
		Ld json.RawMessage `json:"ld"`
		Oi json.RawMessage `json:"oi"`
		Od json.RawMessage `json:"od"`
		Si string          `json:"si"`
		Sd string          `json:"sd"`
		Lm *int            `json:"lm"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	op := Op{P: raw.P, Si: raw.Si, Sd: raw.Sd, Lm: raw.Lm}
	for _, f := range []struct {
		raw json.RawMessage
		dst *any
	}{{raw.Li, &op.Li}, {raw.Ld, &op.Ld}, {raw.Oi, &op.Oi}, {raw.Od, &op.Od}} {
		if len(f.raw) == 0 {
			continue
		}
		v, err := DecodeJSON(f.raw)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	*o = op
	return nil
}

func (o Op) String() string {
	switch {
	case o.Lm != nil:
		return fmt.Sprintf("lm %v -> %d", o.P, *o.Lm)
	case o.Li != nil && o.Ld != nil:
		return fmt.Sprintf("lr %v", o.P)
	case o.Li != nil:
		return fmt.Sprintf("li %v", o.P)
	case o.Ld != nil:
		return fmt.Sprintf("ld %v", o.P)
	case o.Oi != nil && o.Od != nil:
		return fmt.Sprintf("or %v", o.P)
	case o.Oi != nil:
		return fmt.Sprintf("oi %v", o.P)
	case o.Od != nil:
		return fmt.Sprintf("od %v", o.P)
	case o.Si != "":
		return fmt.Sprintf("si %v %q", o.P, o.Si)
	case o.Sd != "":
		return fmt.Sprintf("sd %v %q", o.P, o.Sd)
	}
	return fmt.Sprintf("noop %v", o.P)
}

// Attrs is an insertion-ordered object, used for JsonML attribute maps.
type Attrs struct {
	keys   []string
	values map[string]any
}

// NewAttrs builds attributes from alternating key/value pairs.
func NewAttrs(kv ...string) *Attrs {
	a := &Attrs{values: make(map[string]any)}
	for i := 0; i+1 < len(kv); i += 2 {
		a.Set(kv[i], kv[i+1])
	}
	return a
}

func (a *Attrs) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Keys returns the keys in insertion order.
func (a *Attrs) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

func (a *Attrs) Get(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.values[key]
	return v, ok
}

// Set adds or replaces a value. An existing key keeps its position.
func (a *Attrs) Set(key string, value any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

func (a *Attrs) Delete(key string) {
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// MarshalJSON writes the keys in insertion order.
func (a *Attrs) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range a.Keys() {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(a.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

package htmlmirror

import (
	"encoding/json"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{
			name: "nil becomes empty",
			in:   nil,
			want: []any{},
		},
		{
			name: "text leaf unchanged",
			in:   "Hello",
			want: "Hello",
		},
		{
			name: "attributes omitted, text child",
			in:   []any{"P", "Hi"},
			want: []any{"p", NewAttrs(), "Hi"},
		},
		{
			name: "attributes omitted, element child",
			in:   []any{"DIV", []any{"Span"}},
			want: []any{"div", NewAttrs(), []any{"span", NewAttrs()}},
		},
		{
			name: "null attributes",
			in:   []any{"div", nil, "x"},
			want: []any{"div", NewAttrs(), "x"},
		},
		{
			name: "scalar attributes dropped",
			in:   []any{"P", true, "x"},
			want: []any{"p", NewAttrs(), "x"},
		},
		{
			name: "plain map attributes",
			in:   []any{"a", map[string]any{"href": "/", "class": "nav"}},
			want: []any{"a", NewAttrs("class", "nav", "href", "/")},
		},
		{
			name: "empty child",
			in:   []any{"div", NewAttrs(), []any{}},
			want: []any{"div", NewAttrs(), []any{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if !Equal(got, tt.want) {
				t.Errorf("Normalize mismatch.\nWant: %#v\nGot:  %#v", tt.want, got)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	trees := []any{
		nil,
		"text",
		[]any{"HTML", []any{"BODY", "a", []any{"br"}}},
		[]any{"div", map[string]any{"id": "x"}, []any{"p", nil, "y"}, "z"},
		Skeleton(),
	}
	for i, tree := range trees {
		once := Normalize(tree)
		twice := Normalize(once)
		if !Equal(once, twice) {
			t.Errorf("tree %d: normalize is not idempotent.\nOnce:  %#v\nTwice: %#v", i, once, twice)
		}
	}
}

func TestNormalizeDoesNotAlias(t *testing.T) {
	attrs := NewAttrs("id", "main")
	in := []any{"div", attrs}

	out := Normalize(in).([]any)
	out[1].(*Attrs).Set("id", "changed")

	if v, _ := attrs.Get("id"); v != "main" {
		t.Errorf("input attributes were modified: id=%v", v)
	}
}

func TestSanitizeKeys(t *testing.T) {
	tree := []any{"div", NewAttrs("data&dot;x", "1", "id", "a"), []any{"span", NewAttrs("a&dot;b&dot;c", "2")}}

	got := SanitizeKeys(tree, "&dot;", ".")
	want := []any{"div", NewAttrs("data.x", "1", "id", "a"), []any{"span", NewAttrs("a.b.c", "2")}}
	if !Equal(got, want) {
		t.Fatalf("SanitizeKeys mismatch.\nWant: %#v\nGot:  %#v", want, got)
	}

	keys := got.([]any)[1].(*Attrs).Keys()
	if len(keys) != 2 || keys[0] != "data.x" || keys[1] != "id" {
		t.Errorf("key order not kept: %v", keys)
	}

	if k := tree[1].(*Attrs).Keys(); k[0] != "data&dot;x" {
		t.Errorf("input was modified: %v", k)
	}
}

func TestSanitizeKeysCollision(t *testing.T) {
	tests := []struct {
		name     string
		attrs    *Attrs
		wantKeys []string
		wantVal  string
	}{
		{
			name:     "literal key first",
			attrs:    NewAttrs("a.b", "literal", "title", "t", "a&dot;b", "encoded"),
			wantKeys: []string{"a.b", "title"},
			wantVal:  "encoded",
		},
		{
			name:     "encoded key first",
			attrs:    NewAttrs("a&dot;b", "encoded", "a.b", "literal"),
			wantKeys: []string{"a.b"},
			wantVal:  "encoded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeKeys(tt.attrs, "&dot;", ".").(*Attrs)
			keys := got.Keys()
			if len(keys) != len(tt.wantKeys) {
				t.Fatalf("keys = %v, want %v", keys, tt.wantKeys)
			}
			for i := range keys {
				if keys[i] != tt.wantKeys[i] {
					t.Errorf("keys = %v, want %v", keys, tt.wantKeys)
				}
			}
			if v, _ := got.Get("a.b"); v != tt.wantVal {
				t.Errorf("a.b = %v, want %v", v, tt.wantVal)
			}
		})
	}
}

func TestDecodeJSONKeepsAttributeOrder(t *testing.T) {
	data := `["p",{"z":"1","a":"2","m":"3"},"text",["br",{}]]`

	tree, err := DecodeJSON([]byte(data))
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}

	keys := tree.([]any)[1].(*Attrs).Keys()
	if len(keys) != 3 || keys[0] != "z" || keys[1] != "a" || keys[2] != "m" {
		t.Errorf("Keys = %v", keys)
	}

	out, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != data {
		t.Errorf("Marshal mismatch.\nWant: %s\nGot:  %s", data, out)
	}
}

func TestEqualIgnoresAttributeOrder(t *testing.T) {
	a := []any{"p", NewAttrs("a", "1", "b", "2")}
	b := []any{"p", NewAttrs("b", "2", "a", "1")}
	if !Equal(a, b) {
		t.Error("expected trees to be equal")
	}
	if Equal(a, []any{"p", NewAttrs("a", "1")}) {
		t.Error("expected trees to differ")
	}
	if Equal("p", []any{"p"}) {
		t.Error("text and element compared equal")
	}
}

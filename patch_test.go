package htmlmirror

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestApplyCreatesSkeleton(t *testing.T) {
	got, err := Apply(nil, []Op{{P: Path{}, Oi: Skeleton()}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if Render(got, DefaultVoidTags) != "<html><body></body></html>" {
		t.Errorf("unexpected document: %#v", got)
	}
}

func TestApplyRejectsInvalid(t *testing.T) {
	base := mustParse(t, `<ul class="a"><li>A</li></ul>`)

	tests := []struct {
		name string
		ops  []Op
	}{
		{
			name: "Delete out of range",
			ops:  []Op{{P: Path{5}, Ld: []any{"li", NewAttrs(), "A"}}},
		},
		{
			name: "Delete value mismatch",
			ops:  []Op{{P: Path{2}, Ld: []any{"li", NewAttrs(), "B"}}},
		},
		{
			name: "Insert past the end",
			ops:  []Op{{P: Path{4}, Li: "x"}},
		},
		{
			name: "String delete mismatch",
			ops:  []Op{{P: Path{2, 2, 0}, Sd: "B"}},
		},
		{
			name: "List insert into text",
			ops:  []Op{{P: Path{2, 2, 0}, Li: "x"}},
		},
		{
			name: "Object delete mismatch",
			ops:  []Op{{P: Path{1, "class"}, Od: "b"}},
		},
		{
			name: "Key into a list",
			ops:  []Op{{P: Path{"class"}, Oi: "b"}},
		},
		{
			name: "Root replace mismatch",
			ops:  []Op{{P: Path{}, Od: Skeleton(), Oi: Skeleton()}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(base, tt.ops)
			if !errors.Is(err, ErrInvalidOp) {
				t.Errorf("expected ErrInvalidOp, got %v", err)
			}
		})
	}
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	base := mustParse(t, `<ul class="a"><li>A</li></ul>`)
	before := Render(base, DefaultVoidTags)

	_, err := Apply(base, []Op{
		{P: Path{1, "class"}, Od: "a", Oi: "b"},
		{P: Path{2, 2, 1}, Si: "!"},
		{P: Path{3}, Li: []any{"li", NewAttrs(), "B"}},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if after := Render(base, DefaultVoidTags); after != before {
		t.Errorf("input modified.\nBefore: %s\nAfter:  %s", before, after)
	}
}

func TestApplyListMove(t *testing.T) {
	base := mustParse(t, `<ul><li>A</li><li>B</li><li>C</li></ul>`)
	to := 2
	got, err := Apply(base, []Op{{P: Path{4}, Lm: &to}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if want := "<ul><li>C</li><li>A</li><li>B</li></ul>"; Render(got, DefaultVoidTags) != want {
		t.Errorf("Want %s, got %s", want, Render(got, DefaultVoidTags))
	}
}

func TestOpJSON(t *testing.T) {
	data := `[{"p":[2,2],"li":["p",{"b":"1","a":"2"},"Hi"]},{"p":[1,"class"],"oi":"b","od":"a"},{"p":[2,2,2,0],"si":"x"}]`

	var ops []Op
	if err := json.Unmarshal([]byte(data), &ops); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("Want 3 ops, got %d", len(ops))
	}
	if _, ok := ops[0].P[0].(int); !ok {
		t.Errorf("list index decoded as %T", ops[0].P[0])
	}
	if _, ok := ops[1].P[1].(string); !ok {
		t.Errorf("object key decoded as %T", ops[1].P[1])
	}
	if keys := ops[0].Li.([]any)[1].(*Attrs).Keys(); keys[0] != "b" {
		t.Errorf("attribute order lost: %v", keys)
	}

	out, err := json.Marshal(ops)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != data {
		t.Errorf("Marshal mismatch.\nWant: %s\nGot:  %s", data, out)
	}
}

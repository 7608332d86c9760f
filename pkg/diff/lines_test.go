package diff

import "testing"

func TestMyers_Basic(t *testing.T) {
	ops := myers([]string{"a", "b", "c"}, []string{"a", "x", "c"})

	wantTypes := []LineType{Equal, Delete, Insert, Equal}
	wantLines := []string{"a", "b", "x", "c"}
	if len(ops) != len(wantTypes) {
		t.Fatalf("got %d ops, want %d: %v", len(ops), len(wantTypes), ops)
	}
	for i, op := range ops {
		if op.Type != wantTypes[i] || op.Content != wantLines[i] {
			t.Errorf("op[%d] = {%v, %q}, want {%v, %q}", i, op.Type, op.Content, wantTypes[i], wantLines[i])
		}
	}
}

func TestMyers_OneSideEmpty(t *testing.T) {
	for _, tc := range []struct {
		a, b []string
		want LineType
	}{
		{nil, []string{"a", "b"}, Insert},
		{[]string{"a", "b"}, nil, Delete},
	} {
		ops := myers(tc.a, tc.b)
		if len(ops) != 2 {
			t.Fatalf("myers(%v, %v) = %d ops, want 2", tc.a, tc.b, len(ops))
		}
		for _, op := range ops {
			if op.Type != tc.want {
				t.Errorf("myers(%v, %v) op = %v, want type %v", tc.a, tc.b, op, tc.want)
			}
		}
	}
}

func TestMyers_Identical(t *testing.T) {
	a := []string{"a", "b", "c"}
	ops := myers(a, a)
	if len(ops) != len(a) {
		t.Fatalf("got %d ops, want %d", len(ops), len(a))
	}
	for _, op := range ops {
		if op.Type != Equal {
			t.Errorf("expected all Equal ops, got %v", op)
		}
	}
}

func TestLineDiff_ReconstructsBothSides(t *testing.T) {
	before := []byte("$class: A\nmembers:\n  - x: 1\n  - y: 2\n")
	after := []byte("$class: A\nmembers:\n  - x: 1\n  - z: 9\n  - y: 2\n")

	var gotBefore, gotAfter string
	for _, l := range LineDiff(before, after) {
		if l.Type != Insert {
			gotBefore += l.Content + "\n"
		}
		if l.Type != Delete {
			gotAfter += l.Content + "\n"
		}
	}
	if gotBefore != string(before) {
		t.Errorf("before side = %q, want %q", gotBefore, before)
	}
	if gotAfter != string(after) {
		t.Errorf("after side = %q, want %q", gotAfter, after)
	}
}

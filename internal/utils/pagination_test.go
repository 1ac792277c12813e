package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	if got := AtoiDefault("", 7); got != 7 {
		t.Fatalf("empty: got %d", got)
	}
	if got := AtoiDefault("42", 7); got != 42 {
		t.Fatalf("valid: got %d", got)
	}
	if got := AtoiDefault("abc", 7); got != 7 {
		t.Fatalf("malformed: got %d", got)
	}
	if got := AtoiDefault("-3", 7); got != -3 {
		t.Fatalf("negative: got %d", got)
	}
}

func TestParseSeq(t *testing.T) {
	// absent cursor
	if p, ok := ParseSeq(""); p != nil || !ok {
		t.Fatalf("empty: %v %v", p, ok)
	}

	// valid cursor
	p, ok := ParseSeq("42")
	if !ok || p == nil || *p != 42 {
		t.Fatalf("valid: %v %v", p, ok)
	}

	// zero and negative values parse; range policy lives upstream
	p, ok = ParseSeq("0")
	if !ok || p == nil || *p != 0 {
		t.Fatalf("zero: %v %v", p, ok)
	}

	// malformed
	if p, ok := ParseSeq("abc"); p != nil || ok {
		t.Fatalf("malformed: %v %v", p, ok)
	}
	if p, ok := ParseSeq("1.5"); p != nil || ok {
		t.Fatalf("float: %v %v", p, ok)
	}
}

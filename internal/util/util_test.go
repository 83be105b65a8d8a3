package util

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is far too long", 10, "this is..."},
		{"héllo wörld", 8, "héllo..."},
		{"abcdef", 2, "ab"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestPtr(t *testing.T) {
	p := Ptr(0.5)
	if p == nil || *p != 0.5 {
		t.Fatalf("Ptr(0.5) = %v", p)
	}
	*p = 1
	if q := Ptr(0.5); *q != 0.5 {
		t.Fatalf("Ptr shares storage between calls")
	}
}

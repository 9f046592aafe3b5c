package util

import "testing"

func TestParseInt(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"0", 0, true},
		{" 25 ", 25, true},
		{"-3", -3, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, err := ParseInt(c.in)
		if (err == nil) != c.ok || (c.ok && got != c.want) {
			t.Fatalf("ParseInt(%q) = %d, %v", c.in, got, err)
		}
	}
}

func TestParseInt64(t *testing.T) {
	v, err := ParseInt64(" 42")
	if err != nil || v != 42 {
		t.Fatalf("got %d %v", v, err)
	}
	if _, err := ParseInt64("x"); err == nil {
		t.Fatalf("expected error")
	}
}

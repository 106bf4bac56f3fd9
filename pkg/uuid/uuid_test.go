package uuid

import "testing"

func TestNew_Unique(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a == b {
		t.Fatalf("two generated UUIDs must differ")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	u, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	parsed, err := Parse(u.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", u.String(), err)
	}
	if parsed != u {
		t.Fatalf("round trip mismatch: got %s want %s", parsed, u)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		"",
		"not-a-uuid",
		"123e4567e89b12d3a456426614174000",
		"123e4567-e89b-12d3-a456-42661417400",
	}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Fatalf("Parse(%q) expected error", s)
		}
	}
}

func TestIsNil(t *testing.T) {
	var zero UUID
	if !zero.IsNil() {
		t.Fatal("zero value must be nil")
	}

	u, _ := New()
	if u.IsNil() {
		t.Fatal("generated UUID must not be nil")
	}
}

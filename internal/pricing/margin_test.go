package pricing

import "testing"

func TestParsePercent(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"45%", 0.45, true},
		{"0%", 0, true},
		{"100%", 1, true},
		{" 40% ", 0.40, true},
		{"", 0, false},
		{"%", 0, false},
		{"abc%", 0, false},
		{"12.5%", 0, false},
	}
	for _, tc := range cases {
		got, ok := tc.want, tc.ok
		parsed, parsedOK := ParsePercent(tc.in)
		if parsedOK != ok || parsed != got {
			t.Fatalf("ParsePercent(%q) = %v, %v; want %v, %v", tc.in, parsed, parsedOK, got, ok)
		}
	}
}

func TestResolveMarginSpecialWins(t *testing.T) {
	specials := MarginTable{"p1": "45%"}
	for _, def := range []string{"40%", "10%", "", "junk"} {
		if got := ResolveMargin("p1", specials, def); got != 0.45 {
			t.Fatalf("special margin must win over default %q, got %v", def, got)
		}
	}
}

func TestResolveMarginFallbackChain(t *testing.T) {
	if got := ResolveMargin("p1", nil, "30%"); got != 0.30 {
		t.Fatalf("expected customer default 0.30, got %v", got)
	}
	if got := ResolveMargin("p1", nil, ""); got != 0.40 {
		t.Fatalf("expected hard default 0.40, got %v", got)
	}
	if got := ResolveMargin("p1", nil, "not-a-percent"); got != 0.40 {
		t.Fatalf("malformed default must fall back to 0.40, got %v", got)
	}
	// A malformed special entry falls through to the customer default.
	if got := ResolveMargin("p1", MarginTable{"p1": "??"}, "25%"); got != 0.25 {
		t.Fatalf("malformed special must fall through, got %v", got)
	}
}

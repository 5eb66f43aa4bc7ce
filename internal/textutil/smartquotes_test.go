package textutil

import "testing"

func TestSmartQuotes(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"no quotes here", "no quotes here"},
		{"don't", "don’t"},
		{"'quoted'", "‘quoted’"},
		{`"quoted"`, "“quoted”"},
		{`she said "hi"`, "she said “hi”"},
		{`("nested")`, "(“nested”)"},
		{`'it's fine'`, "‘it’s fine’"},
		{"a 'b' c 'd'", "a ‘b’ c ‘d’"},
		{`"'both'"`, "“‘both’”"},
	}
	for _, c := range cases {
		if got := SmartQuotes(c.in); got != c.want {
			t.Fatalf("SmartQuotes(%q)=%q, want %q", c.in, got, c.want)
		}
	}
}

func TestSmartQuotesIdempotent(t *testing.T) {
	in := `she said "don't stop"`
	once := SmartQuotes(in)
	if twice := SmartQuotes(once); twice != once {
		t.Fatalf("not idempotent: %q then %q", once, twice)
	}
}

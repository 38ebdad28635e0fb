package xmlns

import "testing"

func TestStackLookup(t *testing.T) {
	var s Stack
	s.Push()
	s.Declare("a", "urn:a")
	s.Declare("", "urn:default")
	s.Push()
	s.Declare("a", "urn:inner")

	tests := []struct {
		prefix string
		want   string
		ok     bool
	}{
		{prefix: "a", want: "urn:inner", ok: true},
		{prefix: "", want: "urn:default", ok: true},
		{prefix: "xml", want: XML, ok: true},
		{prefix: "missing", ok: false},
	}
	for _, tt := range tests {
		got, ok := s.Lookup(tt.prefix)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("Lookup(%q) = %q, %v, want %q, %v", tt.prefix, got, ok, tt.want, tt.ok)
		}
	}

	s.Pop()
	if got, _ := s.Lookup("a"); got != "urn:a" {
		t.Fatalf("Lookup(a) after Pop = %q, want urn:a", got)
	}
}

func TestStackLookupPrefixShadowing(t *testing.T) {
	var s Stack
	s.Push()
	s.Declare("ex", "urn:ex")
	s.Push()
	s.Declare("ex", "urn:other")

	if p, ok := s.LookupPrefix("urn:ex"); ok {
		t.Fatalf("LookupPrefix(urn:ex) = %q, want shadowed", p)
	}
	if p, ok := s.LookupPrefix("urn:other"); !ok || p != "ex" {
		t.Fatalf("LookupPrefix(urn:other) = %q, %v, want ex", p, ok)
	}
	s.Pop()
	if p, ok := s.LookupPrefix("urn:ex"); !ok || p != "ex" {
		t.Fatalf("LookupPrefix(urn:ex) after Pop = %q, %v, want ex", p, ok)
	}
}

func TestStackDefaultPrefix(t *testing.T) {
	var s Stack
	s.Push()
	s.Declare("", "urn:d")
	if p, ok := s.LookupPrefix("urn:d"); !ok || p != "" {
		t.Fatalf("LookupPrefix(urn:d) = %q, %v, want empty prefix", p, ok)
	}
	if _, ok := s.LookupPrefix(""); ok {
		t.Fatalf("LookupPrefix(\"\") ok = true, want false")
	}
}

func TestStackDeclaredHere(t *testing.T) {
	var s Stack
	s.Declare("p", "urn:ignored")
	s.Push()
	s.Declare("p", "urn:p")
	if uri, ok := s.DeclaredHere("p"); !ok || uri != "urn:p" {
		t.Fatalf("DeclaredHere(p) = %q, %v", uri, ok)
	}
	s.Push()
	if _, ok := s.DeclaredHere("p"); ok {
		t.Fatalf("DeclaredHere(p) in child scope ok = true")
	}
	if got := s.Bindings()["p"]; got != "urn:p" {
		t.Fatalf("Bindings()[p] = %q", got)
	}
}

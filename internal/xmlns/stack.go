// Package xmlns tracks in-scope XML namespace bindings.
package xmlns

// Well-known namespaces.
const (
	XML   = "http://www.w3.org/XML/1998/namespace"
	XMLNS = "http://www.w3.org/2000/xmlns/"
)

type scope struct {
	prefixes   map[string]string
	order      []string
	defaultNS  string
	defaultSet bool
}

// Stack is a stack of namespace scopes, one per open element.
// The zero value is ready to use.
type Stack struct {
	scopes []scope
}

// Push opens a new, empty scope.
func (s *Stack) Push() {
	s.scopes = append(s.scopes, scope{})
}

// Pop discards the innermost scope.
func (s *Stack) Pop() {
	if len(s.scopes) == 0 {
		return
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

// Depth returns the number of open scopes.
func (s *Stack) Depth() int {
	return len(s.scopes)
}

// Declare binds prefix to uri in the innermost scope. The empty prefix
// declares the default namespace. Declaring with no open scope is a no-op.
func (s *Stack) Declare(prefix, uri string) {
	if len(s.scopes) == 0 {
		return
	}
	top := &s.scopes[len(s.scopes)-1]
	if prefix == "" {
		top.defaultNS = uri
		top.defaultSet = true
		return
	}
	if top.prefixes == nil {
		top.prefixes = make(map[string]string, 1)
	}
	if _, ok := top.prefixes[prefix]; !ok {
		top.order = append(top.order, prefix)
	}
	top.prefixes[prefix] = uri
}

// DeclaredHere returns the binding of prefix made in the innermost scope.
func (s *Stack) DeclaredHere(prefix string) (string, bool) {
	if len(s.scopes) == 0 {
		return "", false
	}
	top := s.scopes[len(s.scopes)-1]
	if prefix == "" {
		return top.defaultNS, top.defaultSet
	}
	uri, ok := top.prefixes[prefix]
	return uri, ok
}

// Lookup resolves prefix to a namespace URI. The empty prefix resolves to
// the default namespace, or "" when none is in scope.
func (s *Stack) Lookup(prefix string) (string, bool) {
	if prefix == "xml" {
		return XML, true
	}
	if prefix == "xmlns" {
		return XMLNS, true
	}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		sc := s.scopes[i]
		if prefix == "" {
			if sc.defaultSet {
				return sc.defaultNS, true
			}
			continue
		}
		if uri, ok := sc.prefixes[prefix]; ok {
			return uri, true
		}
	}
	if prefix == "" {
		return "", true
	}
	return "", false
}

// LookupPrefix returns the innermost prefix bound to uri that is not
// shadowed by a nearer binding. The default namespace yields "".
func (s *Stack) LookupPrefix(uri string) (string, bool) {
	if uri == XML {
		return "xml", true
	}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		sc := s.scopes[i]
		if sc.defaultSet && sc.defaultNS == uri && uri != "" {
			if bound, _ := s.Lookup(""); bound == uri {
				return "", true
			}
		}
		for _, p := range sc.order {
			if sc.prefixes[p] != uri {
				continue
			}
			if bound, ok := s.Lookup(p); ok && bound == uri {
				return p, true
			}
		}
	}
	return "", false
}

// Bindings returns every prefix binding in scope, innermost wins.
// The default namespace, when set, is keyed by "".
func (s *Stack) Bindings() map[string]string {
	out := make(map[string]string)
	for i := 0; i < len(s.scopes); i++ {
		sc := s.scopes[i]
		if sc.defaultSet {
			out[""] = sc.defaultNS
		}
		for p, uri := range sc.prefixes {
			out[p] = uri
		}
	}
	return out
}

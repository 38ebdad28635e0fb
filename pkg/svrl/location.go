package svrl

import (
	"strings"

	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// ToLocationPrefix rewrites every Q{uri} token in a location path to the
// prefix bound to uri in ctx. Tokens with no bound prefix are kept, except
// the empty namespace which is dropped when no default namespace is in scope.
func ToLocationPrefix(location string, ctx xmlwriter.NamespaceContext) string {
	if !strings.Contains(location, "Q{") {
		return location
	}
	var b strings.Builder
	rest := location
	for {
		i := strings.Index(rest, "Q{")
		if i < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[i+2:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		token := rest[i : i+2+end+1]
		uri := rest[i+2 : i+2+end]
		b.WriteString(replaceToken(token, uri, ctx))
		rest = rest[i+2+end+1:]
	}
	return b.String()
}

func replaceToken(token, uri string, ctx xmlwriter.NamespaceContext) string {
	if ctx == nil {
		return token
	}
	if uri == "" {
		if def, ok := ctx.Lookup(""); ok && def != "" {
			return token
		}
		return ""
	}
	prefix, ok := ctx.LookupPrefix(uri)
	if !ok {
		return token
	}
	if prefix == "" {
		return ""
	}
	return prefix + ":"
}

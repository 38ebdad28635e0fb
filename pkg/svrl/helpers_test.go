package svrl

import (
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

func nameOf(space, prefix, local string) xmlwriter.Name {
	return xmlwriter.Name{Space: space, Prefix: prefix, Local: local}
}

// ignoreWhitespaceText drops whitespace-only text runs from Content before
// comparing, so indented and compact serializations compare equal.
func ignoreWhitespaceText() cmp.Option {
	return cmp.Transformer("trimContent", func(c Content) Content {
		out := Content{}
		for _, ev := range c {
			if ev.Kind == EventCharacters && strings.TrimSpace(ev.Text) == "" {
				continue
			}
			out = append(out, ev)
		}
		return out
	})
}

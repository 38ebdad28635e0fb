package native

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/pkg/transform"
)

const maxIncludeDepth = 64

// includeStage replaces sch:include with the referenced element and
// sch:extends[@href] with the referenced element's children.
func includeStage(ctx context.Context, doc *xmlquery.Node, run transform.Run, _ string) error {
	root := dom.DocumentElement(doc)
	if root == nil {
		return fmt.Errorf("include: empty schema document")
	}
	inc := &includer{
		ctx:      ctx,
		resolver: run.Resolver,
		docs:     map[string]*xmlquery.Node{run.Document.SystemID: doc},
	}
	return inc.expand(root, run.Document.SystemID, []string{run.Document.SystemID})
}

type includer struct {
	ctx      context.Context
	resolver transform.Resolver
	docs     map[string]*xmlquery.Node
}

func (inc *includer) expand(n *xmlquery.Node, base string, chain []string) error {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type != xmlquery.ElementNode {
			c = next
			continue
		}
		switch {
		case isSchematron(c, "include"):
			el, err := inc.resolve(c, base, chain)
			if err != nil {
				return err
			}
			dom.Replace(c, el)
		case isSchematron(c, "extends") && dom.Attr(c, "href") != "":
			el, err := inc.resolve(c, base, chain)
			if err != nil {
				return err
			}
			children := dom.CloneChildren(el)
			for _, ch := range children {
				if ch.Type == xmlquery.ElementNode {
					copyNamespaces(ch, el)
				}
			}
			dom.Replace(c, children...)
		default:
			if err := inc.expand(c, base, chain); err != nil {
				return err
			}
		}
		c = next
	}
	return nil
}

// resolve loads the element referenced by ref@href and expands its own
// references relative to the document it came from.
func (inc *includer) resolve(ref *xmlquery.Node, base string, chain []string) (*xmlquery.Node, error) {
	if err := inc.ctx.Err(); err != nil {
		return nil, err
	}
	href := dom.Attr(ref, "href")
	if href == "" {
		return nil, fmt.Errorf("include in %s: %s without href", base, ref.Data)
	}
	if len(chain) >= maxIncludeDepth {
		return nil, fmt.Errorf("include %s: nesting deeper than %d", href, maxIncludeDepth)
	}
	path, fragment := transform.SplitFragment(href)
	systemID := base
	doc := inc.docs[base]
	if path != "" {
		loaded, err := transform.LoadDocument(inc.resolver, path, base)
		if err != nil {
			return nil, fmt.Errorf("include %s: %w", href, err)
		}
		systemID = loaded.SystemID
		if cached, ok := inc.docs[systemID]; ok {
			doc = cached
		} else {
			doc = loaded.Root
			inc.docs[systemID] = doc
		}
	}
	key := systemID + "#" + fragment
	if slices.Contains(chain, key) {
		return nil, fmt.Errorf("include %s: circular reference through %s", href, key)
	}
	var target *xmlquery.Node
	if fragment != "" {
		target = dom.FindByID(doc, fragment)
	} else {
		target = dom.DocumentElement(doc)
	}
	if target == nil || (path == "" && fragment == "") {
		return nil, fmt.Errorf("include %s: no element found in %s", href, systemID)
	}
	el := dom.Clone(target)
	copyNamespaces(el, target)
	holder := &xmlquery.Node{Type: xmlquery.DocumentNode}
	xmlquery.AddChild(holder, el)
	if err := inc.expand(holder, systemID, append(chain, key)); err != nil {
		return nil, err
	}
	el = dom.DocumentElement(holder)
	dom.Detach(el)
	return el, nil
}

// copyNamespaces declares on el every binding in scope on src.
func copyNamespaces(el, src *xmlquery.Node) {
	bindings := dom.InScopeNamespaces(src)
	for _, prefix := range slices.Sorted(maps.Keys(bindings)) {
		dom.DeclareNamespace(el, prefix, bindings[prefix])
	}
}

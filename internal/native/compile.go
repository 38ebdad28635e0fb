package native

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/pkg/transform"
)

// Phase names with special meaning.
const (
	PhaseAll     = "#ALL"
	PhaseDefault = "#DEFAULT"
)

// compileStage selects the active phase, drops inactive patterns and marks
// the schema with the run options the validator needs.
func compileStage(ctx context.Context, doc *xmlquery.Node, run transform.Run, version string) error {
	root, err := schemaElement(doc)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	phase := strings.TrimSpace(paramString(run.Params, transform.ParamPhase))
	if phase == "" || phase == PhaseDefault {
		phase = dom.Attr(root, "defaultPhase")
	}
	if phase == "" {
		phase = PhaseAll
	}

	var selected *xmlquery.Node
	for _, ph := range dom.Elements(root) {
		if isSchematron(ph, "phase") && dom.Attr(ph, "id") == phase {
			selected = ph
		}
	}
	if phase != PhaseAll && selected == nil {
		return errors.Compilation(errors.ErrUnknownPhase, nil, "phase %q is not defined", phase)
	}

	var active map[string]bool
	if selected != nil {
		active = make(map[string]bool)
		for _, a := range dom.Elements(selected) {
			if isSchematron(a, "active") {
				active[dom.Attr(a, "pattern")] = false
			}
		}
	}

	var firstPattern *xmlquery.Node
	for _, el := range dom.Elements(root) {
		switch {
		case isSchematron(el, "phase"):
			dom.Detach(el)
		case isSchematron(el, "pattern"):
			if active != nil {
				id := dom.Attr(el, "id")
				if _, ok := active[id]; !ok {
					dom.Detach(el)
					continue
				}
				active[id] = true
			}
			if firstPattern == nil {
				firstPattern = el
			}
		}
	}
	for _, id := range slices.Sorted(maps.Keys(active)) {
		if !active[id] {
			run.Listener.Warning(fmt.Errorf("phase %q activates unknown pattern %q", phase, id))
		}
	}

	// Phase variables are visible to every active pattern.
	if selected != nil {
		for _, let := range dom.Elements(selected) {
			if !isSchematron(let, "let") {
				continue
			}
			c := dom.Clone(let)
			copyNamespaces(c, let)
			if firstPattern != nil {
				dom.InsertBefore(firstPattern, c)
			} else {
				xmlquery.AddChild(root, c)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkSchema(root, run.Listener); err != nil {
		return err
	}

	dom.DeclareNamespace(root, toolPrefix, ToolNS)
	dom.SetAttr(root, ToolNS, toolPrefix, attrPhase, phase)
	dom.SetAttr(root, ToolNS, toolPrefix, attrVersion, version)
	dom.SetAttr(root, ToolNS, toolPrefix, attrSource, run.Document.SystemID)
	dom.SetAttr(root, ToolNS, toolPrefix, attrCompact, boolString(paramBool(run.Params, transform.ParamCompact)))
	dom.SetAttr(root, ToolNS, toolPrefix, attrMetadata, boolString(paramBool(run.Params, transform.ParamMetadata)))
	dom.SetAttr(root, ToolNS, toolPrefix, attrStreamable, boolString(paramBool(run.Params, transform.ParamStreamable)))
	return nil
}

// checkSchema reports structural problems of the patterns that remain.
func checkSchema(root *xmlquery.Node, l transform.Listener) error {
	declared := make(map[string]bool)
	for _, d := range descendants(root, func(n *xmlquery.Node) bool {
		return isSchematron(n, "diagnostic") || isSchematron(n, "property")
	}) {
		declared[d.Data+"#"+dom.Attr(d, "id")] = true
	}
	report := func(err error) error {
		return l.Error(errors.Compilation(errors.ErrStageFailed, err, "invalid schema"))
	}
	for _, p := range dom.Elements(root) {
		if !isSchematron(p, "pattern") {
			continue
		}
		for _, r := range dom.Elements(p) {
			if !isSchematron(r, "rule") {
				continue
			}
			if strings.TrimSpace(dom.Attr(r, "context")) == "" {
				if err := report(fmt.Errorf("rule %q in pattern %q has no context", dom.Attr(r, "id"), dom.Attr(p, "id"))); err != nil {
					return err
				}
			}
			for _, c := range dom.Elements(r) {
				if !isSchematron(c, "assert") && !isSchematron(c, "report") {
					continue
				}
				if strings.TrimSpace(dom.Attr(c, "test")) == "" {
					if err := report(fmt.Errorf("%s %q has no test", c.Data, dom.Attr(c, "id"))); err != nil {
						return err
					}
				}
				for _, ref := range strings.Fields(dom.Attr(c, "diagnostics")) {
					if !declared["diagnostic#"+ref] {
						l.Warning(fmt.Errorf("%s %q references unknown diagnostic %q", c.Data, dom.Attr(c, "id"), ref))
					}
				}
				for _, ref := range strings.Fields(dom.Attr(c, "properties")) {
					if !declared["property#"+ref] {
						l.Warning(fmt.Errorf("%s %q references unknown property %q", c.Data, dom.Attr(c, "id"), ref))
					}
				}
			}
		}
	}
	return nil
}

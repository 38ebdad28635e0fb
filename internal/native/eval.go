package native

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// maxInlineNodes bounds the size of a node-set variable that is bound by
// node identity. Larger node-sets are bound to their defining expression.
const maxInlineNodes = 256

// value is the result of an expression: bool, float64, string or []xpath.NodeNavigator.
type value any

// scope is a frame of variable bindings. Each binding holds the XPath text
// that replaces a $name reference.
type scope struct {
	parent *scope
	vars   map[string]string
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vars: make(map[string]string)}
}

func (s *scope) bind(name, text string) {
	s.vars[name] = text
}

func (s *scope) lookup(name string) (string, bool) {
	for f := s; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			return v, true
		}
	}
	return "", false
}

// substitute replaces variable references outside string literals.
func substitute(expr string, lookup func(string) (string, bool)) string {
	if !strings.Contains(expr, "$") {
		return expr
	}
	var b strings.Builder
	var quote byte
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
			i++
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
			i++
		case c == '$':
			j := scanName(expr, i+1)
			if v, ok := lookup(expr[i+1 : j]); ok && j > i+1 {
				b.WriteString(v)
			} else {
				b.WriteString(expr[i:j])
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// placeholder binds every variable to the context item. It is used to check
// expression syntax before any value is known.
func placeholder(string) (string, bool) {
	return "(.)", true
}

// literal renders v as an XPath expression that evaluates to v.
func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "''"
	case string:
		return stringLiteral(x)
	case bool:
		if x {
			return "true()"
		}
		return "false()"
	case float64:
		return numberLiteral(x)
	case float32:
		return numberLiteral(float64(x))
	case int:
		return intLiteral(int64(x))
	case int64:
		return intLiteral(x)
	case int32:
		return intLiteral(int64(x))
	case uint:
		return uintLiteral(uint64(x))
	case uint64:
		return uintLiteral(x)
	case time.Time:
		return stringLiteral(x.Format(time.RFC3339))
	case *xmlquery.Node:
		return stringLiteral(x.InnerText())
	case fmt.Stringer:
		return stringLiteral(x.String())
	default:
		return stringLiteral(fmt.Sprint(x))
	}
}

func stringLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, p := range parts {
		parts[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}

// maxExactInt is the largest magnitude an XPath number holds exactly.
const maxExactInt = 1 << 53

// intLiteral renders i as a number, or as its decimal string when a double
// would round it.
func intLiteral(i int64) string {
	s := strconv.FormatInt(i, 10)
	switch {
	case i > maxExactInt || i < -maxExactInt:
		return stringLiteral(s)
	case i < 0:
		return "(" + s + ")"
	default:
		return s
	}
}

func uintLiteral(u uint64) string {
	if u > maxExactInt {
		return stringLiteral(strconv.FormatUint(u, 10))
	}
	return strconv.FormatUint(u, 10)
}

func numberLiteral(f float64) string {
	switch {
	case math.IsNaN(f):
		return "(0 div 0)"
	case math.IsInf(f, 1):
		return "(1 div 0)"
	case math.IsInf(f, -1):
		return "(-1 div 0)"
	case f < 0:
		return "(" + strconv.FormatFloat(f, 'f', -1, 64) + ")"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// compileExpr compiles expr, turning parser panics into errors.
func compileExpr(expr string, ns map[string]string) (e *xpath.Expr, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, err = nil, fmt.Errorf("%v", r)
		}
	}()
	return xpath.CompileWithNS(expr, ns)
}

// materialize converts an evaluation result into a value.
func materialize(v any) value {
	it, ok := v.(*xpath.NodeIterator)
	if !ok {
		return v
	}
	var nodes []xpath.NodeNavigator
	for it.MoveNext() {
		nodes = append(nodes, it.Current().Copy())
	}
	return nodes
}

// toBool applies the XPath boolean() conversion.
func toBool(v value) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	case []xpath.NodeNavigator:
		return len(x) > 0
	default:
		return false
	}
}

// toString applies the XPath string() conversion. When all is set a
// node-set yields every node's value separated by spaces.
func toString(v value, all bool) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(x)
	case []xpath.NodeNavigator:
		if len(x) == 0 {
			return ""
		}
		if !all {
			return x[0].Value()
		}
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = n.Value()
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// binding returns the text that replaces references to a variable whose
// defining expression src evaluated to v.
func binding(src string, v value) string {
	nodes, ok := v.([]xpath.NodeNavigator)
	if !ok {
		return literal(v)
	}
	if len(nodes) == 0 {
		return "/.."
	}
	if len(nodes) > maxInlineNodes {
		return "(" + src + ")"
	}
	paths := make([]string, 0, len(nodes))
	for _, n := range nodes {
		p, ok := nodePath(n)
		if !ok {
			return "(" + src + ")"
		}
		paths = append(paths, p)
	}
	return "(" + strings.Join(paths, " | ") + ")"
}

// splitUnion splits a pattern into its top-level union branches.
func splitUnion(pattern string) []string {
	var out []string
	var quote byte
	depth, start := 0, 0
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == '|' && depth == 0:
			out = append(out, strings.TrimSpace(pattern[start:i]))
			start = i + 1
		}
	}
	out = append(out, strings.TrimSpace(pattern[start:]))
	return out
}

// matchExpr turns a pattern branch into a selection from the document root.
func matchExpr(branch string) string {
	if strings.HasPrefix(branch, "/") {
		return branch
	}
	return "//" + branch
}

package native

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/pkg/transform"
)

// outline lists the elements of doc as name#id[context].
func outline(doc *transform.Document) string {
	var parts []string
	for _, el := range descendants(doc.Root, func(*xmlquery.Node) bool { return true }) {
		s := el.Data
		if id := dom.Attr(el, "id"); id != "" {
			s += "#" + id
		}
		if c := dom.Attr(el, "context"); c != "" {
			s += "[" + c + "]"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func runStage(t *testing.T, name, schema string, fsys fstest.MapFS, params transform.Params, l transform.Listener) (*transform.Document, error) {
	t.Helper()
	return applyStage(t, New(), name, transform.Run{
		Document: parseDoc(t, schema, "main.sch"),
		Params:   params,
		Resolver: transform.NewFSResolver(fsys),
		Listener: l,
	})
}

func TestCompileUnknownProgram(t *testing.T) {
	_, err := New().Compile(context.Background(), parseDoc(t, `<other/>`, "x.xml"))
	require.Error(t, err)
	_, err = New().Compile(context.Background(), parseDoc(t, `<stage xmlns="`+ToolNS+`" name="nope"/>`, "x.xml"))
	require.Error(t, err)
}

func TestIncludeStage(t *testing.T) {
	fsys := fstest.MapFS{
		"parts/pattern.sch": {Data: []byte(`<sch:pattern ` + schNS + ` id="inc"><sch:rule context="a"><sch:assert test="b">b</sch:assert></sch:rule></sch:pattern>`)},
		"parts/rules.sch": {Data: []byte(`<lib xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:rule id="shared" context="c"><sch:assert test="d">d</sch:assert></sch:rule>
  <sch:rule id="other" context="e"/>
</lib>`)},
	}
	schema := `<sch:schema ` + schNS + `>
  <sch:include href="parts/pattern.sch"/>
  <sch:pattern id="local">
    <sch:rule context="x">
      <sch:extends href="parts/rules.sch#shared"/>
    </sch:rule>
  </sch:pattern>
</sch:schema>`
	doc, err := runStage(t, StageInclude, schema, fsys, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "schema pattern#inc rule[a] assert pattern#local rule[x] assert", outline(doc))
}

func TestIncludeNested(t *testing.T) {
	fsys := fstest.MapFS{
		"a/one.sch": {Data: []byte(`<sch:pattern ` + schNS + ` id="one"><sch:include href="two.sch"/></sch:pattern>`)},
		"a/two.sch": {Data: []byte(`<sch:rule ` + schNS + ` context="two"/>`)},
	}
	doc, err := runStage(t, StageInclude, `<sch:schema `+schNS+`><sch:include href="a/one.sch"/></sch:schema>`, fsys, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "schema pattern#one rule[two]", outline(doc))
}

func TestIncludeCycle(t *testing.T) {
	fsys := fstest.MapFS{
		"a.sch": {Data: []byte(`<sch:pattern ` + schNS + `><sch:include href="b.sch"/></sch:pattern>`)},
		"b.sch": {Data: []byte(`<sch:pattern ` + schNS + `><sch:include href="a.sch"/></sch:pattern>`)},
	}
	_, err := runStage(t, StageInclude, `<sch:schema `+schNS+`><sch:include href="a.sch"/></sch:schema>`, fsys, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestIncludeMissing(t *testing.T) {
	_, err := runStage(t, StageInclude, `<sch:schema `+schNS+`><sch:include href="none.sch"/></sch:schema>`, fstest.MapFS{}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none.sch")
}

func TestExpandAbstractPattern(t *testing.T) {
	schema := `<sch:schema ` + schNS + `>
  <sch:pattern abstract="true" id="required">
    <sch:rule context="$parent">
      <sch:assert test="$child">missing <sch:value-of select="'$child'"/></sch:assert>
    </sch:rule>
  </sch:pattern>
  <sch:pattern is-a="required" id="book-title">
    <sch:param name="parent" value="book"/>
    <sch:param name="child" value="title"/>
  </sch:pattern>
</sch:schema>`
	doc, err := runStage(t, StageExpand, schema, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "schema pattern#book-title rule[book] assert value-of", outline(doc))
	asserts := descendants(doc.Root, func(n *xmlquery.Node) bool { return isSchematron(n, "assert") })
	require.Len(t, asserts, 1)
	assert.Equal(t, "title", dom.Attr(asserts[0], "test"))
}

func TestExpandAbstractRule(t *testing.T) {
	schema := `<sch:schema ` + schNS + `>
  <sch:pattern>
    <sch:rule abstract="true" id="base"><sch:assert test="@id">id</sch:assert></sch:rule>
    <sch:rule abstract="true" id="derived"><sch:extends rule="base"/><sch:assert test="@name">name</sch:assert></sch:rule>
    <sch:rule context="item"><sch:extends rule="derived"/></sch:rule>
  </sch:pattern>
</sch:schema>`
	doc, err := runStage(t, StageExpand, schema, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "schema pattern rule[item] assert assert", outline(doc))
}

func TestExpandErrors(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		want   string
	}{
		{
			name:   "unknown abstract pattern",
			schema: `<sch:schema ` + schNS + `><sch:pattern is-a="nope"/></sch:schema>`,
			want:   "nope",
		},
		{
			name:   "unknown abstract rule",
			schema: `<sch:schema ` + schNS + `><sch:pattern><sch:rule context="a"><sch:extends rule="nope"/></sch:rule></sch:pattern></sch:schema>`,
			want:   "nope",
		},
		{
			name: "self extension",
			schema: `<sch:schema ` + schNS + `><sch:pattern>
  <sch:rule abstract="true" id="loop"><sch:extends rule="loop"/></sch:rule>
  <sch:rule context="a"><sch:extends rule="loop"/></sch:rule>
</sch:pattern></sch:schema>`,
			want: "loop",
		},
		{
			name:   "not a schema",
			schema: `<root/>`,
			want:   "sch:schema",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runStage(t, StageExpand, tt.schema, nil, nil, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

const phasedSchema = `<sch:schema ` + schNS + ` defaultPhase="quick">
  <sch:phase id="quick">
    <sch:active pattern="p1"/>
    <sch:let name="mode" value="'quick'"/>
  </sch:phase>
  <sch:phase id="full">
    <sch:active pattern="p1"/>
    <sch:active pattern="p2"/>
    <sch:active pattern="ghost"/>
  </sch:phase>
  <sch:pattern id="p1"><sch:rule context="a"><sch:assert test="b">b</sch:assert></sch:rule></sch:pattern>
  <sch:pattern id="p2"><sch:rule context="c"><sch:assert test="d">d</sch:assert></sch:rule></sch:pattern>
</sch:schema>`

type recordingListener struct {
	warnings []error
	errors   []error
}

func (l *recordingListener) Warning(err error) { l.warnings = append(l.warnings, err) }

func (l *recordingListener) Error(err error) error {
	l.errors = append(l.errors, err)
	return nil
}

func TestCompileStagePhases(t *testing.T) {
	tests := []struct {
		phase string
		want  string
	}{
		{phase: "", want: "schema let pattern#p1 rule[a] assert"},
		{phase: PhaseDefault, want: "schema let pattern#p1 rule[a] assert"},
		{phase: "full", want: "schema pattern#p1 rule[a] assert pattern#p2 rule[c] assert"},
		{phase: PhaseAll, want: "schema pattern#p1 rule[a] assert pattern#p2 rule[c] assert"},
	}
	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			l := &recordingListener{}
			doc, err := runStage(t, StageCompile, phasedSchema, nil, transform.Params{transform.ParamPhase: tt.phase}, l)
			require.NoError(t, err)
			assert.Equal(t, tt.want, outline(doc))
			root := doc.Element()
			wantPhase := tt.phase
			if wantPhase == "" || wantPhase == PhaseDefault {
				wantPhase = "quick"
			}
			assert.Equal(t, wantPhase, dom.AttrNS(root, ToolNS, attrPhase))
			assert.Equal(t, "1.0", dom.AttrNS(root, ToolNS, attrVersion))
			if tt.phase == "full" {
				require.Len(t, l.warnings, 1)
				assert.Contains(t, l.warnings[0].Error(), "ghost")
			}
		})
	}
}

func TestCompileStageUnknownPhase(t *testing.T) {
	_, err := runStage(t, StageCompile, phasedSchema, nil, transform.Params{transform.ParamPhase: "missing"}, nil)
	require.Error(t, err)
	e, ok := errors.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrUnknownPhase, e.Code)
	assert.ErrorIs(t, err, errors.ErrCompilation)
}

func TestCompileStageStructuralChecks(t *testing.T) {
	schema := `<sch:schema ` + schNS + `>
  <sch:pattern id="p">
    <sch:rule><sch:assert diagnostics="nope">x</sch:assert></sch:rule>
  </sch:pattern>
</sch:schema>`
	l := &recordingListener{}
	_, err := runStage(t, StageCompile, schema, nil, nil, l)
	require.NoError(t, err)
	assert.Len(t, l.errors, 2)
	assert.Len(t, l.warnings, 1)

	_, err = runStage(t, StageCompile, schema, nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCompilation)
}

func TestParamReplacement(t *testing.T) {
	params := map[string]string{"a": "x", "a-b": "y"}
	tests := map[string]string{
		"$a":        "x",
		"$a-b":      "y",
		"$a/$b":     "x/$b",
		"cost > $a": "cost > x",
		"$":         "$",
	}
	for in, want := range tests {
		if got := replaceParams(in, params); got != want {
			t.Fatalf("replaceParams(%q) = %q, want %q", in, got, want)
		}
	}
}

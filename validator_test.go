package schematron_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/schematron"
	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/pkg/transform"
)

const itemsSchema = `<?xml version="1.0"?>
<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron" defaultPhase="structure">
  <sch:title>Items</sch:title>
  <sch:phase id="structure">
    <sch:active pattern="items"/>
  </sch:phase>
  <sch:phase id="naming">
    <sch:active pattern="names"/>
  </sch:phase>
  <sch:pattern id="items">
    <sch:rule context="root">
      <sch:assert test="count(item) &gt; 0">at least one item is required</sch:assert>
      <sch:report test="count(item) &gt; 2">more than two items</sch:report>
    </sch:rule>
  </sch:pattern>
  <sch:pattern id="names">
    <sch:rule context="item">
      <sch:assert test="@name">item without a name</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`

func newValidator(t *testing.T, schema string, phase string, opts ...schematron.Option) *schematron.Validator {
	t.Helper()
	f := schematron.NewFactory(opts...)
	v, err := f.NewValidator(context.Background(), schematron.StringSource(schema, "items.sch"), phase)
	require.NoError(t, err)
	return v
}

func TestValidateMissingItem(t *testing.T) {
	v := newValidator(t, itemsSchema, "")
	res, err := v.Validate(context.Background(), schematron.StringSource(`<root/>`, "empty.xml"), nil)
	require.NoError(t, err)

	assert.Equal(t, "empty.xml", res.SystemID())
	assert.Equal(t, 1, res.AssertsCount())
	assert.Equal(t, 0, res.ReportsCount())
	assert.False(t, res.IsValid())

	failed, err := res.FailedAsserts()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "count(item) > 0", failed[0].Test)
	assert.Equal(t, []string{"[assert] /Q{}root[1] - at least one item is required"}, res.Messages(false))
}

func TestValidateCountsMatchReport(t *testing.T) {
	v := newValidator(t, itemsSchema, schematron.PhaseAll)
	doc := `<root><item/><item name="b"/><item/></root>`
	res, err := v.Validate(context.Background(), schematron.StringSource(doc, "doc.xml"), nil)
	require.NoError(t, err)

	out, err := res.Output()
	require.NoError(t, err)
	assert.Equal(t, len(out.FailedAsserts()), res.AssertsCount())
	assert.Equal(t, len(out.SuccessfulReports()), res.ReportsCount())
	assert.Equal(t, 2, res.AssertsCount())
	assert.Equal(t, 1, res.ReportsCount())
	assert.Equal(t, "Items", out.Title)
	assert.Len(t, out.ActivePatterns, 2)
}

func TestValidatePhases(t *testing.T) {
	doc := `<root><item/></root>`
	tests := []struct {
		phase   string
		asserts int
	}{
		{phase: "", asserts: 0},
		{phase: "#DEFAULT", asserts: 0},
		{phase: "naming", asserts: 1},
		{phase: "#ALL", asserts: 1},
	}
	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			v := newValidator(t, itemsSchema, tt.phase)
			res, err := v.Validate(context.Background(), schematron.StringSource(doc, "doc.xml"), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.asserts, res.AssertsCount())
		})
	}
}

func TestUnknownPhaseIsCompilationError(t *testing.T) {
	f := schematron.NewFactory()
	_, err := f.NewValidator(context.Background(), schematron.StringSource(itemsSchema, "items.sch"), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCompilation)
	e, ok := errors.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrUnknownPhase, e.Code)
	assert.Equal(t, "items.sch", e.SystemID)
}

func TestUnknownQueryBinding(t *testing.T) {
	schema := `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron" queryBinding="xquery"/>`
	f := schematron.NewFactory()
	_, err := f.NewValidator(context.Background(), schematron.StringSource(schema, "bad.sch"), "")
	assert.ErrorIs(t, err, errors.ErrConfiguration)
}

func TestNotASchema(t *testing.T) {
	f := schematron.NewFactory()
	_, err := f.NewValidator(context.Background(), schematron.StringSource(`<root/>`, "root.xml"), "")
	assert.ErrorIs(t, err, errors.ErrCompilation)
}

func TestValidateParams(t *testing.T) {
	schema := `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:let name="limit" value="1"/>
  <sch:pattern>
    <sch:rule context="root">
      <sch:assert test="count(item) &lt;= $limit">too many items</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`
	v := newValidator(t, schema, "")
	doc := schematron.StringSource(`<root><item/><item/></root>`, "doc.xml")

	res, err := v.Validate(context.Background(), doc, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AssertsCount())

	res, err = v.Validate(context.Background(), doc, transform.Params{"limit": 5})
	require.NoError(t, err)
	assert.True(t, res.IsValid())
}

func TestValidateInvalidDocument(t *testing.T) {
	v := newValidator(t, itemsSchema, "")
	_, err := v.Validate(context.Background(), schematron.StringSource(`<root>`, "broken.xml"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
	e, ok := errors.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrDocumentParse, e.Code)
	assert.Equal(t, "broken.xml", e.SystemID)
}

func TestValidateDynamicError(t *testing.T) {
	schema := `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern>
    <sch:rule context="root">
      <sch:assert test="$undefined = 1">never</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`
	v := newValidator(t, schema, "")
	_, err := v.Validate(context.Background(), schematron.StringSource(`<root/>`, "doc.xml"), nil)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestValidateUnsupportedEncoding(t *testing.T) {
	v := newValidator(t, itemsSchema, "")
	v = v.WithOptions(v.OutputOptions().WithEncoding("x-no-such-charset"))
	_, err := v.Validate(context.Background(), schematron.StringSource(`<root/>`, "doc.xml"), nil)
	assert.ErrorIs(t, err, errors.ErrEncoding)
}

func TestValidateLatin1Output(t *testing.T) {
	v := newValidator(t, itemsSchema, "")
	v = v.WithOptions(v.OutputOptions().WithEncoding("ISO-8859-1").WithOmitDeclaration(false))
	res, err := v.Validate(context.Background(), schematron.StringSource(`<root/>`, "doc.xml"), nil)
	require.NoError(t, err)
	data, err := res.Bytes()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `<?xml version="1.0" encoding="ISO-8859-1"?>`))
	assert.False(t, strings.HasPrefix(res.String(), "<?xml"))

	out, err := res.Output()
	require.NoError(t, err)
	assert.Len(t, out.FailedAsserts(), 1)
}

func TestValidateLatin1OutputWithoutDeclaration(t *testing.T) {
	schema := `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern>
    <sch:rule context="root">
      <sch:assert test="item">élément manquant</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`
	v := newValidator(t, schema, "")
	v = v.WithOptions(v.OutputOptions().WithEncoding("ISO-8859-1"))
	res, err := v.Validate(context.Background(), schematron.StringSource(`<root/>`, "doc.xml"), nil)
	require.NoError(t, err)

	data, err := res.Bytes()
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(string(data), "<?xml"))
	assert.Contains(t, string(data), "\xe9l\xe9ment manquant")
	assert.Contains(t, res.String(), "élément manquant")

	asserts, err := res.FailedAsserts()
	require.NoError(t, err)
	assert.Len(t, asserts, 1)
	assert.Equal(t, []string{"[assert] /Q{}root[1] - élément manquant"}, res.Messages(false))
}

var interElementSpace = regexp.MustCompile(`>\s+<`)

func TestIndentOnlyAddsWhitespace(t *testing.T) {
	v := newValidator(t, itemsSchema, schematron.PhaseAll)
	doc := schematron.StringSource(`<root><item/><item/><item/></root>`, "doc.xml")

	flat, err := v.Validate(context.Background(), doc, nil)
	require.NoError(t, err)
	indented, err := v.WithOptions(v.OutputOptions().WithIndent(true)).Validate(context.Background(), doc, nil)
	require.NoError(t, err)

	assert.Greater(t, len(indented.String()), len(flat.String()))
	assert.Equal(t,
		interElementSpace.ReplaceAllString(strings.TrimSpace(flat.String()), "><"),
		interElementSpace.ReplaceAllString(strings.TrimSpace(indented.String()), "><"))
}

func TestPrefixLocations(t *testing.T) {
	schema := `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:ns prefix="b" uri="urn:books"/>
  <sch:pattern>
    <sch:rule context="b:book">
      <sch:assert test="@isbn">missing isbn</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`
	f := schematron.NewFactory(schematron.WithMode(schematron.ModeLegacyCompat))
	v, err := f.NewValidator(context.Background(), schematron.StringSource(schema, "books.sch"), "")
	require.NoError(t, err)
	res, err := v.Validate(context.Background(), schematron.StringSource(`<b:books xmlns:b="urn:books"><b:book/></b:books>`, "doc.xml"), nil)
	require.NoError(t, err)

	failed, err := res.FailedAsserts()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "/b:books[1]/b:book[1]", failed[0].Location)
}

func TestCompactReport(t *testing.T) {
	f := schematron.NewFactory(schematron.WithCompileOptions(
		schematron.DefaultCompileOptions(schematron.ModeCurrent).WithCompact(true)))
	v, err := f.NewValidator(context.Background(), schematron.StringSource(itemsSchema, "items.sch"), schematron.PhaseAll)
	require.NoError(t, err)
	res, err := v.Validate(context.Background(), schematron.StringSource(`<root/>`, "doc.xml"), nil)
	require.NoError(t, err)

	assert.NotContains(t, res.String(), "active-pattern")
	out, err := res.Output()
	require.NoError(t, err)
	assert.True(t, out.Compact)
	require.Len(t, out.ActivePatterns, 1)
	assert.Len(t, out.FailedAsserts(), 1)
}

func TestValidateToFile(t *testing.T) {
	v := newValidator(t, itemsSchema, "")
	path := filepath.Join(t.TempDir(), "report.xml")
	res, err := v.ValidateToFile(context.Background(), schematron.StringSource(`<root/>`, "doc.xml"), nil, path)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	data, err := res.Bytes()
	require.NoError(t, err)
	assert.Equal(t, onDisk, data)
	assert.Equal(t, 1, res.AssertsCount())
}

func TestValidateTo(t *testing.T) {
	v := newValidator(t, itemsSchema, "")
	var b strings.Builder
	res, err := v.ValidateTo(context.Background(), schematron.StringSource(`<root/>`, "doc.xml"), nil, &b)
	require.NoError(t, err)
	assert.Contains(t, b.String(), "failed-assert")
	assert.Equal(t, 1, res.AssertsCount())
	assert.Nil(t, res.Messages(false))
}

func TestValidateCancelled(t *testing.T) {
	v := newValidator(t, itemsSchema, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.Validate(ctx, schematron.StringSource(`<root/>`, "doc.xml"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIncludeResolvedFromSourceFS(t *testing.T) {
	fsys := fstest.MapFS{
		"rules/main.sch": &fstest.MapFile{Data: []byte(`<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:include href="parts/items.sch"/>
</sch:schema>`)},
		"rules/parts/items.sch": &fstest.MapFile{Data: []byte(`<sch:pattern xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:rule context="root">
    <sch:assert test="item">no items</sch:assert>
  </sch:rule>
</sch:pattern>`)},
	}
	f := schematron.NewFactory()
	v, err := f.NewValidator(context.Background(), schematron.FSSource(fsys, "rules/main.sch"), "")
	require.NoError(t, err)
	assert.Equal(t, "rules/main.sch", v.SystemID())

	res, err := v.Validate(context.Background(), schematron.StringSource(`<root/>`, "doc.xml"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AssertsCount())
}

func TestFactoryResolverOverridesSource(t *testing.T) {
	schema := `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:include href="items.sch"/>
</sch:schema>`
	var calls []string
	resolver := transform.ResolverFunc(func(href, base string) (io.ReadCloser, string, error) {
		calls = append(calls, href)
		return io.NopCloser(strings.NewReader(`<sch:pattern xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:rule context="root"><sch:report test="true()">seen</sch:report></sch:rule>
</sch:pattern>`)), href, nil
	})
	f := schematron.NewFactory(schematron.WithResolver(resolver))
	v, err := f.NewValidator(context.Background(), schematron.StringSource(schema, "main.sch"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"items.sch"}, calls)

	res, err := v.Validate(context.Background(), schematron.StringSource(`<root/>`, "doc.xml"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReportsCount())
}

func TestValidatorConcurrent(t *testing.T) {
	v := newValidator(t, itemsSchema, schematron.PhaseAll)
	docs := []string{
		`<root/>`,
		`<root><item name="a"/></root>`,
		`<root><item/><item/><item/></root>`,
	}
	want := []int{1, 0, 3}

	const goroutines = 8
	const iterations = 20
	errCh := make(chan error, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			inst := v.NewInstance()
			for j := 0; j < iterations; j++ {
				k := (i + j) % len(docs)
				res, err := inst.Validate(context.Background(), schematron.StringSource(docs[k], "doc.xml"), nil)
				if err != nil {
					errCh <- err
					return
				}
				if res.AssertsCount() != want[k] {
					errCh <- fmt.Errorf("doc %d: asserts = %d, want %d", k, res.AssertsCount(), want[k])
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent Validate error: %v", err)
	}
}

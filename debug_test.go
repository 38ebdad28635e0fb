package schematron_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/schematron"
	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/pkg/transform"
)

func TestDebugFuncReceivesCompiledSchema(t *testing.T) {
	var gotID string
	var gotRoot string
	debug := schematron.DebugFunc(func(systemID string, compiled *transform.Document) error {
		gotID = systemID
		gotRoot = compiled.Element().Data
		return nil
	})
	newValidator(t, itemsSchema, "", schematron.WithDebug(debug))
	assert.Equal(t, "items.sch", gotID)
	assert.Equal(t, "schema", gotRoot)
}

func TestDebugFuncErrorAbortsCompilation(t *testing.T) {
	debug := schematron.DebugFunc(func(string, *transform.Document) error {
		return os.ErrPermission
	})
	f := schematron.NewFactory(schematron.WithDebug(debug))
	_, err := f.NewValidator(context.Background(), schematron.StringSource(itemsSchema, "items.sch"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCompilation)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestDebugDir(t *testing.T) {
	dir := t.TempDir()
	newValidator(t, itemsSchema, "naming", schematron.WithDebug(schematron.DebugDir(dir)))

	data, err := os.ReadFile(filepath.Join(dir, "items.compiled.xml"))
	require.NoError(t, err)
	compiled := string(data)
	assert.True(t, strings.HasPrefix(compiled, "<?xml"))
	assert.Contains(t, compiled, `id="names"`)
	assert.NotContains(t, compiled, `id="items"`)
	assert.NotContains(t, compiled, "sch:phase")
}

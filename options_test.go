package schematron_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jacoelho/schematron"
	"github.com/jacoelho/schematron/errors"
)

func TestDefaultCompileOptions(t *testing.T) {
	current := schematron.DefaultCompileOptions(schematron.ModeCurrent)
	assert.Equal(t, "xslt", current.DefaultQueryBinding())
	assert.False(t, current.Metadata())
	assert.False(t, current.Streamable())
	assert.False(t, current.Compact())

	legacy := schematron.DefaultCompileOptions(schematron.ModeLegacyCompat)
	assert.Equal(t, "xslt2", legacy.DefaultQueryBinding())
}

func TestCompileOptionsAreImmutable(t *testing.T) {
	base := schematron.DefaultCompileOptions(schematron.ModeCurrent)
	changed := base.WithMetadata(true).WithCompact(true).WithParameter("k", "v")

	assert.False(t, base.Metadata())
	assert.False(t, base.Compact())
	assert.Empty(t, base.Parameters())
	assert.True(t, changed.Metadata())
	assert.True(t, changed.Compact())
	assert.Equal(t, "v", changed.Parameters()["k"])

	params := changed.Parameters()
	params["k"] = "mutated"
	assert.Equal(t, "v", changed.Parameters()["k"])

	again := changed.WithParameter("other", 1)
	assert.Len(t, changed.Parameters(), 1)
	assert.Len(t, again.Parameters(), 2)
}

func TestCompileOptionsEqual(t *testing.T) {
	a := schematron.DefaultCompileOptions(schematron.ModeCurrent).WithStreamable(true).WithParameter("x", "1")
	b := schematron.DefaultCompileOptions(schematron.ModeCurrent).WithParameter("x", "1").WithStreamable(true)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(b.WithParameter("x", "2")))
	assert.False(t, a.Equal(a.WithDefaultQueryBinding("xslt3")))
}

func TestDefaultOutputOptions(t *testing.T) {
	current := schematron.DefaultOutputOptions(schematron.ModeCurrent)
	assert.Equal(t, "utf-8", current.Encoding())
	assert.False(t, current.Indent())
	assert.True(t, current.OmitDeclaration())
	assert.False(t, current.PrefixLocations())

	legacy := schematron.DefaultOutputOptions(schematron.ModeLegacyCompat)
	assert.True(t, legacy.Indent())
	assert.True(t, legacy.PrefixLocations())
	assert.Equal(t, current.WithIndent(true).WithPrefixLocations(true), legacy)
}

func TestOutputOptionsAreImmutable(t *testing.T) {
	base := schematron.DefaultOutputOptions(schematron.ModeCurrent)
	changed := base.WithEncoding("ISO-8859-1").WithOmitDeclaration(false)
	assert.Equal(t, "utf-8", base.Encoding())
	assert.True(t, base.OmitDeclaration())
	assert.Equal(t, "ISO-8859-1", changed.Encoding())
	assert.False(t, changed.OmitDeclaration())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "current", schematron.ModeCurrent.String())
	assert.Equal(t, "legacy-compat", schematron.ModeLegacyCompat.String())
	assert.Equal(t, "unknown", schematron.Mode(9).String())
}

func TestQueryBindingVersion(t *testing.T) {
	tests := []struct {
		binding string
		want    string
		wantErr bool
	}{
		{binding: "", want: schematron.Version1},
		{binding: "xslt", want: schematron.Version1},
		{binding: "xslt2", want: schematron.Version2},
		{binding: "xslt3", want: schematron.Version2},
		{binding: "XSLT2", wantErr: true},
		{binding: "xpath31", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.binding, func(t *testing.T) {
			got, err := schematron.QueryBindingVersion(tt.binding)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrConfiguration)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

package transform

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSystemID(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		href    string
		want    string
		wantErr bool
	}{
		{name: "sibling", base: "dir/a.sch", href: "b.sch", want: "dir/b.sch"},
		{name: "no base", href: "b.sch", want: "b.sch"},
		{name: "parent inside root", base: "dir/sub/a.sch", href: "../b.sch", want: "dir/b.sch"},
		{name: "escapes root", base: "a.sch", href: "../b.sch", wantErr: true},
		{name: "absolute", href: "/etc/passwd", wantErr: true},
		{name: "backslash", href: `a\b.sch`, wantErr: true},
		{name: "empty segment", href: "a//b.sch", wantErr: true},
		{name: "empty", href: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveSystemID(tt.base, tt.href)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveSystemID() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveSystemID() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ResolveSystemID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFSResolverLoadDocument(t *testing.T) {
	fsys := fstest.MapFS{
		"rules/common.sch": &fstest.MapFile{Data: []byte(`<pattern id="p"/>`)},
	}
	r := NewFSResolver(fsys)

	doc, err := LoadDocument(r, "common.sch", "rules/main.sch")
	require.NoError(t, err)
	assert.Equal(t, "rules/common.sch", doc.SystemID)
	assert.Equal(t, "pattern", doc.Element().Data)

	_, err = LoadDocument(r, "missing.sch", "rules/main.sch")
	require.Error(t, err)
	_, err = LoadDocument(nil, "common.sch", "")
	require.Error(t, err)
}

func TestSplitFragment(t *testing.T) {
	doc, frag := SplitFragment("lib.sch#rule-1")
	assert.Equal(t, "lib.sch", doc)
	assert.Equal(t, "rule-1", frag)
	doc, frag = SplitFragment("lib.sch")
	assert.Equal(t, "lib.sch", doc)
	assert.Equal(t, "", frag)
}

func TestParamsCopies(t *testing.T) {
	base := Params{"a": 1}
	merged := base.Merge(Params{"b": "x"})
	merged["a"] = 2
	assert.Equal(t, Params{"a": 1}, base)
	assert.Equal(t, Params{"a": 2, "b": "x"}, merged)
}

func TestListeners(t *testing.T) {
	boom := errors.New("boom")
	Quiet.Warning(boom)
	assert.Same(t, boom, Quiet.Error(boom))

	var buf bytes.Buffer
	l := LogListener(slog.New(slog.NewTextHandler(&buf, nil)))
	l.Warning(boom)
	assert.ErrorIs(t, l.Error(boom), boom)
	assert.True(t, strings.Contains(buf.String(), "transform warning"))
	assert.Equal(t, Quiet, LogListener(nil))
	assert.Equal(t, Quiet, ListenerOrQuiet(nil))
}

func TestResolverFunc(t *testing.T) {
	r := ResolverFunc(func(href, base string) (io.ReadCloser, string, error) {
		return io.NopCloser(strings.NewReader("<x/>")), base + "|" + href, nil
	})
	doc, err := LoadDocument(r, "h", "b")
	require.NoError(t, err)
	assert.Equal(t, "b|h", doc.SystemID)
}

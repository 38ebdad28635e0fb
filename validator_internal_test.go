package schematron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/pkg/transform"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// blockingProgram writes an empty report once release is closed.
type blockingProgram struct {
	entered chan struct{}
	release chan struct{}
}

func (p blockingProgram) NewSession() transform.Session { return p }

func (p blockingProgram) Apply(ctx context.Context, _ transform.Run, w xmlwriter.Writer) error {
	close(p.entered)
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := w.WriteStartDocument(); err != nil {
		return err
	}
	if err := w.WriteEmptyElement(xmlwriter.Name{Space: "http://purl.oclc.org/dsdl/svrl", Prefix: "svrl", Local: "schematron-output"}); err != nil {
		return err
	}
	if err := w.WriteNamespace("svrl", "http://purl.oclc.org/dsdl/svrl"); err != nil {
		return err
	}
	return w.WriteEndDocument()
}

func TestInstanceRejectsReentry(t *testing.T) {
	prog := blockingProgram{entered: make(chan struct{}), release: make(chan struct{})}
	v := &Validator{
		program:  prog,
		systemID: "blocking.sch",
		output:   DefaultOutputOptions(ModeCurrent),
		logger:   loggerOrDiscard(nil),
	}
	inst := v.NewInstance()

	done := make(chan error, 1)
	go func() {
		_, err := inst.Validate(context.Background(), StringSource(`<doc/>`, "first.xml"), nil)
		done <- err
	}()
	<-prog.entered

	_, err := inst.Validate(context.Background(), StringSource(`<doc/>`, "second.xml"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrState)
	e, ok := errors.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrInstanceBusy, e.Code)
	assert.Equal(t, "second.xml", e.SystemID)

	close(prog.release)
	require.NoError(t, <-done)
	assert.False(t, inst.busy.Load())
}

func TestValidatorCopiesShareProgram(t *testing.T) {
	prog := blockingProgram{}
	v := &Validator{program: prog, systemID: "s.sch", output: DefaultOutputOptions(ModeCurrent)}
	indented := v.WithOptions(v.OutputOptions().WithIndent(true))
	resolved := v.WithResolver(transform.NewFSResolver(nil))

	assert.False(t, v.OutputOptions().Indent())
	assert.True(t, indented.OutputOptions().Indent())
	assert.Nil(t, v.resolver)
	assert.NotNil(t, resolved.resolver)
	assert.Equal(t, v.program, indented.program)
	assert.Equal(t, "s.sch", resolved.SystemID())
}

func TestStripDeclaration(t *testing.T) {
	tests := map[string]string{
		`<?xml version="1.0" encoding="utf-8"?>` + "\n<a/>": "<a/>",
		`<?xml version="1.0"?><a/>`:                          "<a/>",
		"<a/>":                                               "<a/>",
		"":                                                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripDeclaration(in), in)
	}
}

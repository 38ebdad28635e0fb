package schematron

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/pkg/svrl"
	"github.com/jacoelho/schematron/pkg/transform"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// Validator is a compiled schema. It is immutable and safe for concurrent
// use; WithOptions and WithResolver return validators sharing the compiled
// program.
type Validator struct {
	program  transform.Program
	systemID string
	output   OutputOptions
	resolver transform.Resolver
	logger   *slog.Logger
}

// SystemID returns the identifier of the schema the validator was built from.
func (v *Validator) SystemID() string { return v.systemID }

// OutputOptions returns the options used to write reports.
func (v *Validator) OutputOptions() OutputOptions { return v.output }

// WithOptions returns a validator writing reports with o.
func (v *Validator) WithOptions(o OutputOptions) *Validator {
	out := *v
	out.output = o
	return &out
}

// WithResolver returns a validator resolving documents referenced during
// validation with r instead of the resolver of each validated source.
func (v *Validator) WithResolver(r transform.Resolver) *Validator {
	out := *v
	out.resolver = r
	return &out
}

// NewInstance returns a reusable validation context.
func (v *Validator) NewInstance() *Instance {
	return &Instance{validator: v, session: v.program.NewSession()}
}

// Validate validates src with a fresh Instance and keeps the report in
// memory.
func (v *Validator) Validate(ctx context.Context, src Source, params transform.Params) (*Result, error) {
	return v.NewInstance().Validate(ctx, src, params)
}

// ValidateTo validates src with a fresh Instance and writes the report to w.
func (v *Validator) ValidateTo(ctx context.Context, src Source, params transform.Params, w io.Writer) (*Result, error) {
	return v.NewInstance().ValidateTo(ctx, src, params, w)
}

// ValidateToFile validates src with a fresh Instance and writes the report to
// the file at path.
func (v *Validator) ValidateToFile(ctx context.Context, src Source, params transform.Params, path string) (*Result, error) {
	return v.NewInstance().ValidateToFile(ctx, src, params, path)
}

// Instance validates documents one at a time, reusing its run state.
// Calling Validate while another call on the same Instance is in progress
// fails with a state error.
type Instance struct {
	validator *Validator
	session   transform.Session
	busy      atomic.Bool
}

// Validate validates src and keeps the report in memory.
func (i *Instance) Validate(ctx context.Context, src Source, params transform.Params) (*Result, error) {
	var buf bytes.Buffer
	res, err := i.run(ctx, src, params, &buf)
	if err != nil {
		return nil, err
	}
	res.data = buf.Bytes()
	return res, nil
}

// ValidateTo validates src and writes the report to w.
func (i *Instance) ValidateTo(ctx context.Context, src Source, params transform.Params, w io.Writer) (*Result, error) {
	return i.run(ctx, src, params, w)
}

// ValidateToFile validates src and writes the report to the file at path.
func (i *Instance) ValidateToFile(ctx context.Context, src Source, params transform.Params, path string) (res *Result, err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Encoding(errors.ErrWrite, err, "create report file").In("validate", src.SystemID())
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			res, err = nil, errors.Encoding(errors.ErrWrite, closeErr, "close report file %s", path).In("validate", src.SystemID())
		}
	}()
	res, err = i.run(ctx, src, params, f)
	if err != nil {
		return nil, err
	}
	res.path = path
	return res, nil
}

func (i *Instance) run(ctx context.Context, src Source, params transform.Params, w io.Writer) (*Result, error) {
	const op = "validate"
	if !i.busy.CompareAndSwap(false, true) {
		return nil, errors.State("instance of %s is already validating", i.validator.systemID).In(op, src.SystemID())
	}
	defer i.busy.Store(false)

	doc, err := src.parse()
	if err != nil {
		return nil, errors.Validation(errors.ErrDocumentParse, err, "parse document").In(op, src.SystemID())
	}
	out := i.validator.output
	enc, err := xmlwriter.NewEncoder(w, out.encoding)
	if err != nil {
		return nil, withContext(err, op, src.SystemID())
	}
	sw := svrl.NewStreamWriter(enc, out.streamOptions())
	resolver := i.validator.resolver
	if resolver == nil {
		resolver = src.resolver
	}
	run := transform.Run{
		Document: doc,
		Params:   params.Clone(),
		Resolver: resolver,
		Listener: transform.LogListener(i.validator.logger),
	}
	if err := i.session.Apply(ctx, run, sw); err != nil {
		return nil, validationError(err, op, src.SystemID())
	}
	if err := sw.Flush(); err != nil {
		return nil, validationError(err, op, src.SystemID())
	}
	i.validator.logger.Debug("validated document",
		slog.String("document", src.SystemID()),
		slog.String("schema", i.validator.systemID),
		slog.Int("failedAsserts", sw.AssertsCount()),
		slog.Int("successfulReports", sw.ReportsCount()))
	return &Result{
		systemID: src.SystemID(),
		encoding: out.encoding,
		asserts:  sw.AssertsCount(),
		reports:  sw.ReportsCount(),
	}, nil
}

// validationError keeps classified errors raised by the writer or the
// engine and wraps anything else, cancellation included, as a validation
// error.
func validationError(err error, op, systemID string) error {
	if e, ok := errors.AsError(err); ok {
		return e.In(op, systemID)
	}
	return errors.Validation(errors.ErrDynamic, err, "validation failed").In(op, systemID)
}

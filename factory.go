package schematron

import (
	"context"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/internal/native"
	"github.com/jacoelho/schematron/internal/stages"
	"github.com/jacoelho/schematron/pkg/svrl"
	"github.com/jacoelho/schematron/pkg/transform"
)

// Phase names accepted by NewValidator besides the ids of sch:phase
// elements. An empty phase is the same as PhaseDefault.
const (
	PhaseAll     = native.PhaseAll
	PhaseDefault = native.PhaseDefault
)

// Factory compiles schemas into validators. A Factory is safe for concurrent
// use once constructed.
type Factory struct {
	engine   transform.Engine
	stages   fs.FS
	cache    *PipelineCache
	compile  CompileOptions
	output   OutputOptions
	resolver transform.Resolver
	listener transform.Listener
	debug    DebugOutput
	logger   *slog.Logger
}

// Option configures a Factory.
type Option interface{ apply(*Factory) }

type optionFunc func(*Factory)

func (f optionFunc) apply(cfg *Factory) {
	if cfg == nil {
		return
	}
	f(cfg)
}

// WithEngine sets the transformation engine that compiles stage programs and
// validators.
func WithEngine(e transform.Engine) Option {
	return optionFunc(func(f *Factory) {
		f.engine = e
	})
}

// WithStages sets the file system holding the stage programs, laid out as
// <version>/<stage>.xml.
func WithStages(fsys fs.FS) Option {
	return optionFunc(func(f *Factory) {
		f.stages = fsys
	})
}

// WithPipelineCache shares a pipeline cache between factories.
func WithPipelineCache(c *PipelineCache) Option {
	return optionFunc(func(f *Factory) {
		if c != nil {
			f.cache = c
		}
	})
}

// WithCompileOptions sets the compile options.
func WithCompileOptions(o CompileOptions) Option {
	return optionFunc(func(f *Factory) {
		f.compile = o
	})
}

// WithOutputOptions sets the output options given to new validators.
func WithOutputOptions(o OutputOptions) Option {
	return optionFunc(func(f *Factory) {
		f.output = o
	})
}

// WithResolver overrides how schema references are resolved. Validators
// built by the factory also use it for their input documents.
func WithResolver(r transform.Resolver) Option {
	return optionFunc(func(f *Factory) {
		f.resolver = r
	})
}

// WithListener sets the sink for stage warnings and errors.
func WithListener(l transform.Listener) Option {
	return optionFunc(func(f *Factory) {
		f.listener = l
	})
}

// WithDebug sets where compiled schemas are written.
func WithDebug(d DebugOutput) Option {
	return optionFunc(func(f *Factory) {
		f.debug = d
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(f *Factory) {
		f.logger = l
	})
}

// WithMode applies the compile and output defaults of mode.
func WithMode(m Mode) Option {
	return optionFunc(func(f *Factory) {
		f.compile = DefaultCompileOptions(m)
		f.output = DefaultOutputOptions(m)
	})
}

// NewFactory returns a Factory using the built-in engine and stage programs
// unless options say otherwise.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		stages:  stages.FS(),
		compile: DefaultCompileOptions(ModeCurrent),
		output:  DefaultOutputOptions(ModeCurrent),
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(f)
		}
	}
	f.logger = loggerOrDiscard(f.logger)
	if f.engine == nil {
		f.engine = native.New(native.WithLogger(f.logger))
	}
	if f.cache == nil {
		f.cache = NewPipelineCache()
	}
	if f.listener == nil {
		f.listener = transform.LogListener(f.logger)
	}
	return f
}

// CompileOptions returns the factory compile options.
func (f *Factory) CompileOptions() CompileOptions { return f.compile }

// OutputOptions returns the factory output options.
func (f *Factory) OutputOptions() OutputOptions { return f.output }

// Pipeline returns the pipeline for version, building and caching it on
// first use.
func (f *Factory) Pipeline(ctx context.Context, version string) (*Pipeline, error) {
	return f.cache.Get(ctx, version, NewPrecompiler(f.engine, f.stages, f.logger))
}

// NewValidator compiles the schema read from src. An empty phase selects the
// schema's default phase.
func (f *Factory) NewValidator(ctx context.Context, src Source, phase string) (*Validator, error) {
	const op = "new validator"
	start := time.Now()
	doc, err := src.parse()
	if err != nil {
		return nil, errors.Compilation(errors.ErrSchemaParse, err, "parse schema").In(op, src.SystemID())
	}
	root := doc.Element()
	if !dom.Is(root, svrl.SchematronURI, "schema") {
		return nil, errors.Compilation(errors.ErrSchemaParse, nil, "document element is not sch:schema").In(op, src.SystemID())
	}
	binding := dom.Attr(root, "queryBinding")
	if binding == "" {
		binding = f.compile.DefaultQueryBinding()
		dom.SetAttr(root, "", "", "queryBinding", binding)
	}
	version, err := QueryBindingVersion(binding)
	if err != nil {
		return nil, withContext(err, op, src.SystemID())
	}
	pipeline, err := f.Pipeline(ctx, version)
	if err != nil {
		return nil, withContext(err, op, src.SystemID())
	}

	resolver := f.resolver
	if resolver == nil {
		resolver = src.resolver
	}
	compiler := Compiler{
		Pipeline: pipeline,
		Params:   f.compile.stageParams(phase),
		Resolver: resolver,
		Listener: f.listener,
		Logger:   f.logger,
	}
	compiled, err := compiler.Compile(ctx, doc)
	if err != nil {
		return nil, err
	}
	if f.debug != nil {
		if err := f.debug.WriteCompiled(src.SystemID(), compiled); err != nil {
			return nil, errors.Compilation(errors.ErrDebugOutput, err, "write compiled schema").In(op, src.SystemID())
		}
	}
	prog, err := f.engine.Compile(ctx, compiled)
	if err != nil {
		return nil, stageError(err, "validator", src.SystemID())
	}
	f.logger.Debug("compiled schema",
		slog.String("schema", src.SystemID()),
		slog.String("queryBinding", binding),
		slog.String("phase", phase),
		slog.Duration("elapsed", time.Since(start)))
	return &Validator{
		program:  prog,
		systemID: src.SystemID(),
		output:   f.output,
		resolver: f.resolver,
		logger:   f.logger,
	}, nil
}

// withContext annotates err with op and systemID when it is an *errors.Error.
func withContext(err error, op, systemID string) error {
	if e, ok := err.(*errors.Error); ok {
		return e.In(op, systemID)
	}
	return err
}

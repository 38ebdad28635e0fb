package schematron

import (
	"bytes"
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/internal/stages"
	"github.com/jacoelho/schematron/pkg/transform"
)

// Stage is one compiled step of a Pipeline. It is immutable and safe for
// concurrent use.
type Stage struct {
	name    string
	program transform.Program
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// Pipeline is the ordered list of stages that compile a schema for one
// query language version. It never changes after construction.
type Pipeline struct {
	version string
	stages  []*Stage
}

// Version returns the query language version the pipeline compiles.
func (p *Pipeline) Version() string { return p.version }

// Stages returns the stage names in application order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.name
	}
	return names
}

// Precompiler builds pipelines from stage programs stored as
// <version>/<stage>.xml in a file system.
type Precompiler struct {
	engine transform.Engine
	fsys   fs.FS
	logger *slog.Logger
}

// NewPrecompiler returns a Precompiler reading stage programs from fsys.
func NewPrecompiler(engine transform.Engine, fsys fs.FS, logger *slog.Logger) *Precompiler {
	return &Precompiler{engine: engine, fsys: fsys, logger: loggerOrDiscard(logger)}
}

// Create builds the pipeline for version. A missing stage program is a
// configuration error; a stage program that does not compile is a
// compilation error.
func (p *Precompiler) Create(ctx context.Context, version string) (*Pipeline, error) {
	if p.fsys == nil {
		return nil, errors.Configuration(errors.ErrStageMissing, "no stage programs configured").In("create pipeline", version)
	}
	if p.engine == nil {
		return nil, errors.Configuration(errors.ErrNoEngine, "no transformation engine configured").In("create pipeline", version)
	}
	start := time.Now()
	pl := &Pipeline{version: version}
	for _, name := range stages.Names {
		path := stages.Path(version, name)
		data, err := fs.ReadFile(p.fsys, path)
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil, errors.Configuration(errors.ErrStageMissing, "stage program %s not found", path).AtStage(name).In("create pipeline", version)
			}
			return nil, errors.Compilation(errors.ErrStageCompile, err, "read stage program %s", path).AtStage(name).In("create pipeline", version)
		}
		src, err := transform.Parse(bytes.NewReader(data), path)
		if err != nil {
			return nil, errors.Compilation(errors.ErrStageCompile, err, "parse stage program %s", path).AtStage(name).In("create pipeline", version)
		}
		prog, err := p.engine.Compile(ctx, src)
		if err != nil {
			return nil, errors.Compilation(errors.ErrStageCompile, err, "compile stage program %s", path).AtStage(name).In("create pipeline", version)
		}
		pl.stages = append(pl.stages, &Stage{name: name, program: prog})
	}
	p.logger.Debug("built pipeline",
		slog.String("version", version),
		slog.Int("stages", len(pl.stages)),
		slog.Duration("elapsed", time.Since(start)))
	return pl, nil
}

// PipelineCache holds at most one pipeline per version. Concurrent builds of
// the same version may race; the first stored pipeline wins and the others
// are discarded. A cache must only be shared between factories using the
// same engine and stage programs.
type PipelineCache struct {
	slots map[string]*atomic.Pointer[Pipeline]
}

// NewPipelineCache returns an empty cache for the supported versions.
func NewPipelineCache() *PipelineCache {
	return &PipelineCache{slots: map[string]*atomic.Pointer[Pipeline]{
		Version1: new(atomic.Pointer[Pipeline]),
		Version2: new(atomic.Pointer[Pipeline]),
	}}
}

// Lookup returns the cached pipeline for version, if any.
func (c *PipelineCache) Lookup(version string) (*Pipeline, bool) {
	slot, ok := c.slots[version]
	if !ok {
		return nil, false
	}
	p := slot.Load()
	return p, p != nil
}

// Get returns the cached pipeline for version, building it with p on a
// miss.
func (c *PipelineCache) Get(ctx context.Context, version string, p *Precompiler) (*Pipeline, error) {
	slot, ok := c.slots[version]
	if !ok {
		return nil, errors.Configuration(errors.ErrUnknownQueryBinding, "unsupported pipeline version %q", version)
	}
	if cached := slot.Load(); cached != nil {
		p.logger.Debug("pipeline cache hit", slog.String("version", version))
		return cached, nil
	}
	built, err := p.Create(ctx, version)
	if err != nil {
		return nil, err
	}
	if slot.CompareAndSwap(nil, built) {
		return built, nil
	}
	return slot.Load(), nil
}

// Compiler feeds a schema through the stages of a pipeline.
type Compiler struct {
	Pipeline *Pipeline
	Params   transform.Params
	Resolver transform.Resolver
	Listener transform.Listener
	Logger   *slog.Logger
}

// Compile applies every stage in order, each stage reading the output of
// the previous one. The first failure aborts the chain.
func (c Compiler) Compile(ctx context.Context, doc *transform.Document) (*transform.Document, error) {
	if c.Pipeline == nil {
		return nil, errors.Configuration(errors.ErrStageMissing, "no pipeline").In("compile schema", doc.SystemID)
	}
	logger := loggerOrDiscard(c.Logger)
	for _, s := range c.Pipeline.stages {
		if err := ctx.Err(); err != nil {
			return nil, errors.Compilation(errors.ErrStageFailed, err, "compilation interrupted").AtStage(s.name).In("compile schema", doc.SystemID)
		}
		start := time.Now()
		b := dom.NewBuilder()
		run := transform.Run{
			Document: doc,
			Params:   c.Params,
			Resolver: c.Resolver,
			Listener: transform.ListenerOrQuiet(c.Listener),
		}
		if err := s.program.NewSession().Apply(ctx, run, b); err != nil {
			return nil, stageError(err, s.name, doc.SystemID)
		}
		doc = &transform.Document{Root: b.Document(), SystemID: doc.SystemID}
		logger.Debug("applied stage",
			slog.String("stage", s.name),
			slog.String("schema", doc.SystemID),
			slog.Duration("elapsed", time.Since(start)))
	}
	return doc, nil
}

func stageError(err error, stage, systemID string) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Kind == errors.KindCompilation {
		return e.AtStage(stage).In("compile schema", systemID)
	}
	return errors.Compilation(errors.ErrStageFailed, err, "stage %s failed", stage).AtStage(stage).In("compile schema", systemID)
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

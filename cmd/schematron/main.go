package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jacoelho/schematron"
	"github.com/jacoelho/schematron/pkg/transform"
)

const (
	exitValid   = 0
	exitInvalid = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return runWithArgs(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func runWithArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := exitValid
	root := newRootCommand(stdout, stderr, &code)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitUsage
	}
	return code
}

func newRootCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "schematron",
		Short:         "Validate XML documents against Schematron schemas",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCommand(stdout, stderr, code))
	return root
}

func newValidateCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	var (
		cfg        config
		configPath string
		params     []string
		verbose    bool
		cpuProfile string
		memProfile string
	)
	cmd := &cobra.Command{
		Use:   "validate -s schema.sch -i doc.xml [-i doc.xml ...]",
		Short: "Validate documents and print the findings",
		Long: `Validate one or more XML documents against a Schematron schema.

Findings are printed one per line unless --svrl is set, in which case the
SVRL report is written instead. Several inputs are validated concurrently;
with --svrl their reports are collected into a single fileset document.

Exit status is 0 when every document is valid, 1 when an assertion failed
and 2 on any other error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				fileCfg, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = fileCfg.override(cfg, cmd.Flags().Changed)
			}
			if len(params) > 0 {
				parsed, err := parseParams(params)
				if err != nil {
					return err
				}
				if cfg.Params == nil {
					cfg.Params = map[string]string{}
				}
				for k, v := range parsed {
					cfg.Params[k] = v
				}
			}
			if err := cfg.check(); err != nil {
				return err
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

			prof := &profiles{cpuPath: cpuProfile, heapPath: memProfile}
			if err := prof.start(); err != nil {
				return err
			}
			defer func() {
				if err := prof.stop(); err != nil {
					logger.Error("write profiles", slog.Any("error", err))
				}
			}()

			valid, err := validate(cmd.Context(), cfg, logger, stdout)
			if err != nil {
				return err
			}
			if !valid {
				*code = exitInvalid
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&cfg.Inputs, "input", "i", nil, "path to an XML file to validate (repeatable)")
	f.StringVarP(&cfg.Schematron, "schematron", "s", "", "path to the Schematron schema")
	f.StringVarP(&cfg.Output, "output", "o", "", "write results to this file instead of stdout")
	f.BoolVarP(&cfg.Detail, "detail", "d", false, "include diagnostics in text output")
	f.BoolVarP(&cfg.SVRL, "svrl", "v", false, "write the SVRL report instead of text")
	f.BoolVarP(&cfg.Metadata, "metadata", "m", false, "include metadata in the SVRL report")
	f.BoolVarP(&cfg.Prefix, "prefix-in-location", "p", false, "use namespace prefixes in locations")
	f.BoolVarP(&cfg.Compact, "compact", "c", false, "omit active-pattern and fired-rule elements")
	f.BoolVarP(&cfg.Indent, "indent", "t", false, "indent the SVRL report")
	f.StringVar(&cfg.Phase, "phase", "", "phase to validate (default: the schema's defaultPhase)")
	f.StringArrayVar(&params, "param", nil, "schema parameter as name=value (repeatable)")
	f.BoolVar(&cfg.Compat, "compat", false, "use the defaults of earlier releases")
	f.IntVar(&cfg.Jobs, "jobs", runtime.GOMAXPROCS(0), "maximum documents validated at once")
	f.StringVar(&cfg.DebugDir, "debug-dir", "", "write the compiled schema to this directory")
	f.StringVar(&configPath, "config", "", "YAML file with default option values")
	f.BoolVar(&verbose, "verbose", false, "log pipeline activity to stderr")
	f.StringVar(&cpuProfile, "cpuprofile", "", "write CPU profile to file")
	f.StringVar(&memProfile, "memprofile", "", "write memory profile to file")
	return cmd
}

func parseParams(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, kv := range values {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: want name=value", kv)
		}
		out[name] = value
	}
	return out, nil
}

func validate(ctx context.Context, cfg config, logger *slog.Logger, stdout io.Writer) (valid bool, err error) {
	opts := []schematron.Option{
		schematron.WithMode(cfg.mode()),
		schematron.WithLogger(logger),
	}
	compile := schematron.DefaultCompileOptions(cfg.mode()).
		WithMetadata(cfg.Metadata).
		WithCompact(cfg.Compact)
	output := schematron.DefaultOutputOptions(cfg.mode())
	if cfg.Indent {
		output = output.WithIndent(true)
	}
	if cfg.Prefix {
		output = output.WithPrefixLocations(true)
	}
	opts = append(opts, schematron.WithCompileOptions(compile), schematron.WithOutputOptions(output))
	if cfg.DebugDir != "" {
		opts = append(opts, schematron.WithDebug(schematron.DebugDir(cfg.DebugDir)))
	}

	factory := schematron.NewFactory(opts...)
	validator, err := factory.NewValidator(ctx, schematron.FileSource(cfg.Schematron), cfg.Phase)
	if err != nil {
		return false, err
	}

	params := make(transform.Params, len(cfg.Params))
	for k, v := range cfg.Params {
		params[k] = v
	}

	results := make([]*schematron.Result, len(cfg.Inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Jobs, 1))
	for i, input := range cfg.Inputs {
		g.Go(func() error {
			res, err := validator.NewInstance().Validate(gctx, schematron.FileSource(input), params)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	w := stdout
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return false, fmt.Errorf("create output: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close output %s: %w", cfg.Output, closeErr)
			}
		}()
		w = f
	}
	if err := writeResults(w, cfg, results); err != nil {
		return false, err
	}

	valid = true
	for _, res := range results {
		valid = valid && res.IsValid()
	}
	return valid, nil
}

func writeResults(w io.Writer, cfg config, results []*schematron.Result) error {
	if cfg.SVRL {
		if len(results) == 1 {
			_, err := fmt.Fprintln(w, results[0].String())
			return err
		}
		report := schematron.NewReport()
		report.Add(results...)
		if _, err := report.WriteTo(w); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w)
		return err
	}
	for _, res := range results {
		for _, msg := range res.Messages(cfg.Detail) {
			if len(results) > 1 {
				msg = res.SystemID() + ": " + msg
			}
			if _, err := fmt.Fprintln(w, msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// profiles holds the optional CPU and heap profiles of one run.
type profiles struct {
	cpuPath  string
	heapPath string
	cpu      *os.File
}

func (p *profiles) start() error {
	if p.cpuPath == "" {
		return nil
	}
	f, err := os.Create(p.cpuPath)
	if err != nil {
		return fmt.Errorf("cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		return stderrors.Join(fmt.Errorf("cpu profile: %w", err), f.Close())
	}
	p.cpu = f
	return nil
}

// stop ends CPU profiling and writes the heap profile.
func (p *profiles) stop() error {
	var errs []error
	if p.cpu != nil {
		pprof.StopCPUProfile()
		if err := p.cpu.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cpu profile: %w", err))
		}
		p.cpu = nil
	}
	if p.heapPath != "" {
		if err := writeHeapProfile(p.heapPath); err != nil {
			errs = append(errs, fmt.Errorf("heap profile: %w", err))
		}
	}
	return stderrors.Join(errs...)
}

func writeHeapProfile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = stderrors.Join(err, f.Close()) }()
	runtime.GC()
	return pprof.Lookup("heap").WriteTo(f, 0)
}

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jacoelho/schematron"
)

// config holds the validate options. A YAML file given with --config
// provides defaults; flags set on the command line win.
type config struct {
	Schematron string            `yaml:"schematron"`
	Inputs     []string          `yaml:"inputs,omitempty"`
	Output     string            `yaml:"output,omitempty"`
	Phase      string            `yaml:"phase,omitempty"`
	Params     map[string]string `yaml:"params,omitempty"`
	Detail     bool              `yaml:"detail,omitempty"`
	SVRL       bool              `yaml:"svrl,omitempty"`
	Metadata   bool              `yaml:"metadata,omitempty"`
	Prefix     bool              `yaml:"prefix_in_location,omitempty"`
	Compact    bool              `yaml:"compact,omitempty"`
	Indent     bool              `yaml:"indent,omitempty"`
	Compat     bool              `yaml:"compat,omitempty"`
	Jobs       int               `yaml:"jobs,omitempty"`
	DebugDir   string            `yaml:"debug_dir,omitempty"`
}

func loadConfig(path string) (config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// override returns c with every field whose flag was changed taken from
// flags.
func (c config) override(flags config, changed func(name string) bool) config {
	if changed("schematron") {
		c.Schematron = flags.Schematron
	}
	if changed("input") {
		c.Inputs = flags.Inputs
	}
	if changed("output") {
		c.Output = flags.Output
	}
	if changed("phase") {
		c.Phase = flags.Phase
	}
	if changed("detail") {
		c.Detail = flags.Detail
	}
	if changed("svrl") {
		c.SVRL = flags.SVRL
	}
	if changed("metadata") {
		c.Metadata = flags.Metadata
	}
	if changed("prefix-in-location") {
		c.Prefix = flags.Prefix
	}
	if changed("compact") {
		c.Compact = flags.Compact
	}
	if changed("indent") {
		c.Indent = flags.Indent
	}
	if changed("compat") {
		c.Compat = flags.Compat
	}
	if changed("jobs") || c.Jobs == 0 {
		c.Jobs = flags.Jobs
	}
	if changed("debug-dir") {
		c.DebugDir = flags.DebugDir
	}
	return c
}

func (c config) check() error {
	if c.Schematron == "" {
		return fmt.Errorf("no schema specified, use -s")
	}
	if len(c.Inputs) == 0 {
		return fmt.Errorf("no input specified, use -i")
	}
	for _, path := range append([]string{c.Schematron}, c.Inputs...) {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%s is not a file", path)
		}
	}
	return nil
}

func (c config) mode() schematron.Mode {
	if c.Compat {
		return schematron.ModeLegacyCompat
	}
	return schematron.ModeCurrent
}

// Package config loads stencil.yaml files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/neurodesk/stencil/pkg/engine"
	sl "github.com/neurodesk/stencil/pkg/starlark"
	"github.com/neurodesk/stencil/pkg/template"
	v "github.com/neurodesk/stencil/pkg/validator"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "stencil.yaml"

type Alias struct {
	Ext    string `yaml:"ext"`
	Target string `yaml:"target"`
}

func (a Alias) Validate() error {
	return v.All(
		v.NotEmpty(a.Ext, "extensions.ext"),
		v.NotEmpty(a.Target, "extensions.target"),
		func() error {
			if normExt(a.Ext) == normExt(a.Target) {
				return fmt.Errorf("extension %s aliases itself", a.Ext)
			}
			return nil
		}(),
	)
}

type Config struct {
	Path         string   `yaml:"path,omitempty"`
	Mode         string   `yaml:"mode,omitempty"`
	Escape       string   `yaml:"escape,omitempty"`
	AdjustIndent bool     `yaml:"adjust_indent,omitempty"`
	Reload       bool     `yaml:"reload,omitempty"`
	Debug        bool     `yaml:"debug,omitempty"`
	Delimiters   []string `yaml:"delimiters,omitempty"`
	CacheDir     string   `yaml:"cache_dir,omitempty"`
	Watch        bool     `yaml:"watch,omitempty"`
	Listen       string   `yaml:"listen,omitempty"`
	// Extensions maps template file extensions to the file extension read
	// from disk.
	Extensions []Alias `yaml:"extensions,omitempty"`
	// Templates lists the file extensions treated as templates.
	Templates []string `yaml:"templates,omitempty"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = "."
	}
	if c.Mode == "" {
		c.Mode = string(sl.ModeHTML)
	}
	if c.Escape == "" {
		c.Escape = string(sl.EscapeCommon)
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if len(c.Templates) == 0 {
		c.Templates = []string{".html"}
	}
	for i, t := range c.Templates {
		c.Templates[i] = normExt(t)
	}
}

func normExt(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

func (c *Config) Validate() error {
	return v.All(
		v.NotEmpty(c.Path, "path"),
		v.OneOf(c.Mode, []string{string(sl.ModeHTML), string(sl.ModePlain)}, "mode"),
		v.OneOf(c.Escape, []string{string(sl.EscapeCommon), string(sl.EscapeAll)}, "escape"),
		func() error {
			switch len(c.Delimiters) {
			case 0:
				return nil
			case 2:
				return v.All(
					v.NotEmpty(c.Delimiters[0], "delimiters[0]"),
					v.NotEmpty(c.Delimiters[1], "delimiters[1]"),
				)
			default:
				return fmt.Errorf("delimiters must be a pair [open, close], got %d values", len(c.Delimiters))
			}
		}(),
		v.NoDuplicates(c.Templates, "templates"),
		v.Each(c.Extensions, "extensions"),
		func() error {
			exts := make([]string, len(c.Extensions))
			for i, a := range c.Extensions {
				exts[i] = normExt(a.Ext)
			}
			return v.NoDuplicates(exts, "extensions")
		}(),
	)
}

// Decode reads a configuration from r, rejecting unknown fields.
func Decode(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// Load reads the configuration file at path. A missing DefaultFile yields
// the default configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultFile {
			return Default(), nil
		}
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// EngineOptions converts the configuration into engine options.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.Options{
		Path:         c.Path,
		Mode:         sl.Mode(c.Mode),
		Escape:       sl.Escape(c.Escape),
		AdjustIndent: c.AdjustIndent,
		Reload:       c.Reload,
		Debug:        c.Debug,
		CacheDir:     c.CacheDir,
	}
	if len(c.Delimiters) == 2 {
		opts.Delimiters = template.Delimiters{Open: c.Delimiters[0], Close: c.Delimiters[1]}
	}
	return opts
}

// NewEngine creates an engine with the configured options and aliases.
func (c *Config) NewEngine() (*engine.Engine, error) {
	e := engine.New(c.EngineOptions())
	for _, a := range c.Extensions {
		alias := engine.AliasExtension{From: normExt(a.Ext), To: normExt(a.Target)}
		if err := e.UseExtension(alias); err != nil {
			return nil, err
		}
	}
	return e, nil
}

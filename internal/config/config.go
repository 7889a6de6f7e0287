// Package config loads the bypassd YAML configuration.
//
// The raw document is checked against the embedded CUE schema (schema.cue)
// before it is decoded. Defaults are applied after decoding, and relative
// paths are resolved against the directory holding the config file. A bare
// engine binary name is left alone for PATH lookup.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/bypassd/internal/catalog"
	"github.com/roach88/bypassd/internal/learning"
)

//go:embed schema.cue
var schemaSource string

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Defaults.
const (
	DefaultStopTimeout = 5 * time.Second
	DefaultExcludeFlag = "--hostlist-exclude"
	DefaultWorkDir     = "work"
	DefaultStorePath   = "learned.db"
	DefaultFlushEvery  = 5
	DefaultQueueSize   = 256
)

// Config is the full bypassd configuration.
type Config struct {
	Engine      EngineConfig   `yaml:"engine"`
	Catalog     CatalogConfig  `yaml:"catalog"`
	Store       StoreConfig    `yaml:"store"`
	Learning    LearningConfig `yaml:"learning"`
	Debug       DebugConfig    `yaml:"debug"`
	QueueSize   int            `yaml:"queue_size"`
	MetricsAddr string         `yaml:"metrics_addr"`

	// Dir is the directory relative paths were resolved against.
	Dir string `yaml:"-"`
}

// EngineConfig describes the external engine executable.
type EngineConfig struct {
	Binary       string        `yaml:"binary"`
	WorkDir      string        `yaml:"work_dir"`
	SupportFiles []string      `yaml:"support_files"`
	ExtraArgs    []string      `yaml:"extra_args"`
	StopTimeout  time.Duration `yaml:"stop_timeout"`
	ExcludeFlag  string        `yaml:"exclude_flag"`
}

// CatalogConfig locates the strategy templates.
type CatalogConfig struct {
	TLSTemplate  string `yaml:"tls_template"`
	HTTPTemplate string `yaml:"http_template"`
	Marker       string `yaml:"marker"`
	Separator    string `yaml:"separator"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LearningConfig tunes the learning store.
type LearningConfig struct {
	AutoLockThreshold int `yaml:"auto_lock_threshold"`
	FlushEvery        int `yaml:"flush_every"`
}

// DebugConfig controls the raw engine output log.
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Keep    bool   `yaml:"keep"`
}

// Load reads, validates and decodes the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes a YAML document. Relative paths resolve
// against dir.
func Parse(data []byte, dir string) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.Dir = dir
	cfg.applyDefaults()
	cfg.resolvePaths()
	return &cfg, nil
}

func validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Engine.WorkDir == "" {
		c.Engine.WorkDir = DefaultWorkDir
	}
	if c.Engine.StopTimeout == 0 {
		c.Engine.StopTimeout = DefaultStopTimeout
	}
	if c.Engine.ExcludeFlag == "" {
		c.Engine.ExcludeFlag = DefaultExcludeFlag
	}
	if c.Catalog.Marker == "" {
		c.Catalog.Marker = catalog.DefaultMarker
	}
	if c.Catalog.Separator == "" {
		c.Catalog.Separator = catalog.DefaultSeparator
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Learning.AutoLockThreshold == 0 {
		c.Learning.AutoLockThreshold = learning.DefaultAutoLockThreshold
	}
	if c.Learning.FlushEvery == 0 {
		c.Learning.FlushEvery = DefaultFlushEvery
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
}

func (c *Config) resolvePaths() {
	if strings.ContainsRune(c.Engine.Binary, filepath.Separator) {
		c.Engine.Binary = c.resolve(c.Engine.Binary)
	}
	c.Engine.WorkDir = c.resolve(c.Engine.WorkDir)
	for i, f := range c.Engine.SupportFiles {
		c.Engine.SupportFiles[i] = c.resolve(f)
	}
	c.Catalog.TLSTemplate = c.resolve(c.Catalog.TLSTemplate)
	c.Catalog.HTTPTemplate = c.resolve(c.Catalog.HTTPTemplate)
	c.Store.Path = c.resolve(c.Store.Path)
	c.Debug.Path = c.resolve(c.Debug.Path)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

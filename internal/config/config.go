// Package config loads chainvault settings.
//
// A settings file (.cue, .yaml, .yml or .json) is unified with an embedded
// CUE schema that supplies defaults and rejects unknown fields, then
// decoded into Config. Relative paths resolve under DataDir.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/chainvault/internal/fault"
)

//go:embed schema.cue
var schemaSource []byte

// FileName is the settings file `chainvault init` writes into the data dir.
const FileName = "config.yaml"

// Chain backends.
const (
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

type Config struct {
	DataDir  string        `json:"data_dir" yaml:"data_dir"`
	Chain    ChainConfig   `json:"chain" yaml:"chain"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Keys     KeysConfig    `json:"keys" yaml:"keys"`
	Runtime  RuntimeConfig `json:"runtime" yaml:"runtime"`
	LogLevel string        `json:"log_level" yaml:"log_level"`
}

type ChainConfig struct {
	Backend string `json:"backend" yaml:"backend"`
}

type StorageConfig struct {
	Database string `json:"database" yaml:"database"`
	Compress bool   `json:"compress" yaml:"compress"`
}

type KeysConfig struct {
	Dir  string `json:"dir" yaml:"dir"`
	Bits int    `json:"bits" yaml:"bits"`
}

type RuntimeConfig struct {
	DedupWindow string `json:"dedup_window" yaml:"dedup_window"`
	MaxWrites   int    `json:"max_writes" yaml:"max_writes"`
}

// Default returns the schema defaults.
func Default() (*Config, error) {
	return decode(nil, "")
}

// Load reads the settings file at path. The format follows the extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidArgument, "config.Load", err)
	}
	return Parse(data, path)
}

// Parse decodes settings from data; name selects the format by extension
// and labels error positions.
func Parse(data []byte, name string) (*Config, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fault.Wrap(fault.KindInvalidArgument, "config.Parse", fmt.Errorf("%s: %w", name, err))
		}
		if doc == nil {
			doc = map[string]any{}
		}
		return decode(doc, name)
	case ".cue", ".json":
		return decode(data, name)
	default:
		return nil, fault.New(fault.KindInvalidArgument, "config.Parse",
			fmt.Sprintf("%s: unsupported config format (want .cue, .yaml, .yml or .json)", name))
	}
}

// decode unifies src (CUE/JSON bytes, a decoded YAML document, or nil for
// defaults only) with the schema.
func decode(src any, name string) (*Config, error) {
	const op = "config.Parse"
	cctx := cuecontext.New()

	schema := cctx.CompileBytes(schemaSource, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	v := schema
	switch s := src.(type) {
	case []byte:
		v = v.Unify(cctx.CompileBytes(s, cue.Filename(name)))
	case nil:
	default:
		v = v.Unify(cctx.Encode(s))
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fault.New(fault.KindInvalidArgument, op, describe(err))
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fault.New(fault.KindInvalidArgument, op, describe(err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func describe(err error) string {
	return strings.TrimSpace(cueerrors.Details(err, nil))
}

// Validate checks the constraints CUE does not express.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Runtime.DedupWindow); err != nil {
		return fault.New(fault.KindInvalidArgument, "config.Validate",
			fmt.Sprintf("runtime.dedup_window: %v", err))
	}
	return nil
}

// Resolve returns p, or p under DataDir when p is relative.
func (c *Config) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// DatabasePath returns the SQLite record database path.
func (c *Config) DatabasePath() string { return c.Resolve(c.Storage.Database) }

// KeysDir returns the key pair directory.
func (c *Config) KeysDir() string { return c.Resolve(c.Keys.Dir) }

// ChainPath returns the block store location for the file and leveldb
// backends.
func (c *Config) ChainPath() string {
	if c.Chain.Backend == BackendLevelDB {
		return c.Resolve("chain.ldb")
	}
	return c.Resolve("chain")
}

// DedupWindow returns runtime.dedup_window parsed.
func (c *Config) DedupWindow() time.Duration {
	d, _ := time.ParseDuration(c.Runtime.DedupWindow)
	return d
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Write stores c as YAML at path.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

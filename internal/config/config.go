// Package config resolves rxn settings.
//
// Sources, lowest precedence first:
//
//  1. Defaults
//  2. An optional CUE file, validated against an embedded schema
//  3. Environment: RXN_API_URL, RXN_DB, RXN_TOKEN, RXN_TIMEOUT
//  4. Explicit flags
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/rxn/internal/api"
)

//go:embed schema.cue
var schemaSource string

// Environment variable names.
const (
	EnvAPIURL  = "RXN_API_URL"
	EnvDB      = "RXN_DB"
	EnvToken   = "RXN_TOKEN"
	EnvTimeout = "RXN_TIMEOUT"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	APIURL  string        `json:"api_url"`
	DBPath  string        `json:"db"`
	Token   string        `json:"-"`
	Timeout time.Duration `json:"timeout"`
	Format  string        `json:"format"`
}

// Overrides are explicit flag values. Zero values mean "not set".
type Overrides struct {
	APIURL  string
	DBPath  string
	Token   string
	Timeout time.Duration
	Format  string
}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIURL:  api.DefaultBaseURL,
		DBPath:  DefaultDBPath(),
		Timeout: api.DefaultTimeout,
		Format:  FormatText,
	}
}

// DefaultDBPath is rxn/rxn.db under the user config directory, or rxn.db in
// the working directory when that is unavailable.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "rxn.db"
	}
	return filepath.Join(dir, "rxn", "rxn.db")
}

// Resolve layers the sources. path may be empty to skip the file; lookup
// may be nil to skip the environment.
func Resolve(path string, lookup LookupFunc, flags Overrides) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := applyFile(&cfg, path, data); err != nil {
			return Config{}, err
		}
	}

	if lookup != nil {
		if err := applyEnv(&cfg, lookup); err != nil {
			return Config{}, err
		}
	}

	applyOverrides(&cfg, flags)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors #Config in schema.cue.
type fileConfig struct {
	APIURL  string `json:"api_url,omitempty"`
	DB      string `json:"db,omitempty"`
	Token   string `json:"token,omitempty"`
	Timeout string `json:"timeout,omitempty"`
	Format  string `json:"format,omitempty"`
}

// parseFile validates CUE source against the embedded schema and returns
// the fields it sets. filename is used in error positions.
func parseFile(filename string, data []byte) (fileConfig, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fileConfig{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	val := ctx.CompileBytes(data, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return fileConfig{}, fmt.Errorf("%w: %s", ErrInvalid, cueerrors.Details(err, nil))
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fileConfig{}, fmt.Errorf("%w: %s", ErrInvalid, cueerrors.Details(err, nil))
	}

	var fc fileConfig
	if err := unified.Decode(&fc); err != nil {
		return fileConfig{}, fmt.Errorf("decode config: %w", err)
	}
	return fc, nil
}

func applyFile(cfg *Config, filename string, data []byte) error {
	fc, err := parseFile(filename, data)
	if err != nil {
		return err
	}
	if fc.APIURL != "" {
		cfg.APIURL = fc.APIURL
	}
	if fc.DB != "" {
		cfg.DBPath = fc.DB
	}
	if fc.Token != "" {
		cfg.Token = fc.Token
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("%w: timeout %q: %v", ErrInvalid, fc.Timeout, err)
		}
		cfg.Timeout = d
	}
	if fc.Format != "" {
		cfg.Format = fc.Format
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		cfg.APIURL = v
	}
	if v, ok := lookup(EnvDB); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := lookup(EnvToken); ok && v != "" {
		cfg.Token = v
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvTimeout, v, err)
		}
		cfg.Timeout = d
	}
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.APIURL != "" {
		cfg.APIURL = o.APIURL
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.Token != "" {
		cfg.Token = o.Token
	}
	if o.Timeout != 0 {
		cfg.Timeout = o.Timeout
	}
	if o.Format != "" {
		cfg.Format = o.Format
	}
}

// Validate checks the resolved values.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api url %q must be an absolute http(s) URL", ErrInvalid, c.APIURL)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db path is empty", ErrInvalid)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalid, c.Timeout)
	}
	if c.Format != FormatText && c.Format != FormatJSON {
		return fmt.Errorf("%w: format must be %q or %q, got %q", ErrInvalid, FormatText, FormatJSON, c.Format)
	}
	return nil
}

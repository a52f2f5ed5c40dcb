// Package config loads evaluator settings from YAML.
package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
	"github.com/wippyai/nix-runtime/runtime"
)

// Engine backends.
const (
	EngineNative = "native"
	EngineWasm   = "wasm"
)

// Display controls value rendering.
type Display struct {
	MaxDepth int `yaml:"max_depth" validate:"min=1"`
}

// Config holds evaluator settings.
type Config struct {
	Engine     string            `yaml:"engine" validate:"oneof=native wasm"`
	WasmPath   string            `yaml:"wasm_path" validate:"required_if=Engine wasm"`
	WasmMounts map[string]string `yaml:"wasm_mounts" validate:"dive,keys,startswith=/,endkeys,required"`
	Store      string            `yaml:"store"`
	BasePath   string            `yaml:"base_path"`
	LogLevel   string            `yaml:"log_level" validate:"oneof=debug info warn error"`
	LookupPath []string          `yaml:"lookup_path" validate:"dive,required"`
	Display    Display           `yaml:"display"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Engine:   EngineNative,
		Store:    "auto",
		BasePath: runtime.DefaultBasePath,
		LogLevel: "warn",
		Display:  Display{MaxDepth: runtime.DefaultMaxDepth},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "config file "+path)
		}
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config file "+path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// WasmConfig returns the wasm backend settings.
func (c *Config) WasmConfig() *engine.WasmConfig {
	return &engine.WasmConfig{Mounts: c.WasmMounts}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid config")
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.WarnLevel
	}
	return lvl
}

// SessionOptions converts the settings into session options.
func (c *Config) SessionOptions() []runtime.Option {
	opts := []runtime.Option{
		runtime.WithStore(runtime.ParseStoreType(c.Store)),
		runtime.WithBasePath(c.BasePath),
		runtime.WithDisplay(runtime.DisplayOptions{MaxDepth: c.Display.MaxDepth}),
	}
	if len(c.LookupPath) > 0 {
		opts = append(opts, runtime.WithLookupPath(c.LookupPath...))
	}
	return opts
}

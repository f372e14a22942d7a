// Package config loads the Synchrony YAML configuration file.
//
// Every field has a default, so an absent file or an empty document yields
// a usable Config. Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/synchrony/internal/engine"
	"github.com/roach88/synchrony/internal/executor"
	"github.com/roach88/synchrony/internal/prover"
)

// Oracle names.
const (
	OracleBuiltin = "builtin"
	OracleSMTLib  = "smtlib"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config is the engine and CLI configuration.
type Config struct {
	Workers         int           `yaml:"workers"`
	Timeout         time.Duration `yaml:"timeout"`
	Atomic          bool          `yaml:"atomic"`
	MaxTransactions int           `yaml:"max_transactions"`
	Oracle          string        `yaml:"oracle"`
	SolverPath      string        `yaml:"solver_path"`
	SolverArgs      []string      `yaml:"solver_args"`
	Backend         string        `yaml:"backend"`
	DB              string        `yaml:"db"`
	LogLevel        string        `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workers:         executor.DefaultWorkers(),
		Timeout:         executor.DefaultTimeout,
		MaxTransactions: engine.DefaultMaxTransactions,
		Oracle:          OracleBuiltin,
		SolverPath:      "z3",
		SolverArgs:      []string{"-in", "-smt2"},
		Backend:         BackendSQLite,
		DB:              "./synchrony.db",
		LogLevel:        "info",
	}
}

// Error reports an invalid configuration value.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsError checks if an error is a config Error.
func IsError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates it.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return &Error{Field: "workers", Message: fmt.Sprintf("must be at least 1, got %d", c.Workers)}
	case c.Timeout <= 0:
		return &Error{Field: "timeout", Message: fmt.Sprintf("must be positive, got %s", c.Timeout)}
	case c.MaxTransactions < 0:
		return &Error{Field: "max_transactions", Message: fmt.Sprintf("must not be negative, got %d", c.MaxTransactions)}
	}

	switch c.Oracle {
	case OracleBuiltin:
	case OracleSMTLib:
		if c.SolverPath == "" {
			return &Error{Field: "solver_path", Message: "required for the smtlib oracle"}
		}
	default:
		return &Error{Field: "oracle", Message: fmt.Sprintf("unknown oracle %q (want builtin or smtlib)", c.Oracle)}
	}

	switch c.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return &Error{Field: "backend", Message: fmt.Sprintf("unknown backend %q (want sqlite or badger)", c.Backend)}
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &Error{Field: "log_level", Message: err.Error()}
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// NewOracle returns the configured proof oracle.
func (c Config) NewOracle() prover.Oracle {
	if c.Oracle == OracleSMTLib {
		return prover.ExecOracle{Path: c.SolverPath, Args: c.SolverArgs}
	}
	return prover.LinearOracle{}
}

// EngineOptions returns the engine options the configuration implies.
// Persistence, clocks and metrics are wired by the caller.
func (c Config) EngineOptions(logger *slog.Logger) []engine.Option {
	return []engine.Option{
		engine.WithWorkers(c.Workers),
		engine.WithTimeout(c.Timeout),
		engine.WithAtomic(c.Atomic),
		engine.WithMaxTransactions(c.MaxTransactions),
		engine.WithOracle(c.NewOracle()),
		engine.WithLogger(logger),
	}
}

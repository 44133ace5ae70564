package config

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/iley/tacc/internal/codegen"
	"github.com/iley/tacc/internal/opt"
)

type Config struct {
	// Optimization level, 0 to 3.
	OptLevel int    `yaml:"opt_level"`
	Target   string `yaml:"target"`
	// Debug annotates the assembly with the IR each instruction came from.
	Debug bool `yaml:"debug"`
	// Bound on optimizer pipeline rounds per function.
	MaxIterations int `yaml:"max_iterations"`
	// Verify re-checks IR invariants after every optimizer pass.
	Verify bool `yaml:"verify"`
}

func Default() Config {
	return Config{
		OptLevel:      2,
		Target:        codegen.DefaultTarget,
		MaxIterations: opt.DefaultMaxIterations,
		Verify:        true,
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, errors.Wrap(err, "%v", path)
	}

	return cfg, nil
}

// Decode reads YAML on top of the defaults. Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()

	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	// An empty document leaves the defaults alone.
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.OptLevel < 0 || c.OptLevel > 3 {
		return errors.New("optimization level must be between 0 and 3, got %d", c.OptLevel)
	}

	if !codegen.IsTarget(c.Target) {
		return errors.New("unknown target: %s", c.Target)
	}

	if c.MaxIterations < 1 {
		return errors.New("max_iterations must be positive, got %d", c.MaxIterations)
	}

	return nil
}

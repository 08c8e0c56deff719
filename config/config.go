// Package config loads bgdemo settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/Swind/go-bgtask/core"
)

const (
	// EnvConfigPath names the config file when --config is not given.
	EnvConfigPath = "BGTASKCONFIG"

	EnvPoolCapacity    = "BGTASK_POOL_CAPACITY"
	EnvWorkerStepDelay = "BGTASK_WORKER_STEP_DELAY"
	EnvLogLevel        = "BGTASK_LOG_LEVEL"
	EnvMetricsAddr     = "BGTASK_METRICS_ADDR"

	DefaultPath = "bgtask.yaml"
)

type Config struct {
	Pool    Pool    `yaml:"pool"`
	Worker  Worker  `yaml:"worker"`
	Log     Log     `yaml:"log"`
	Metrics Metrics `yaml:"metrics"`
}

type Pool struct {
	Name            string `yaml:"name"`
	Capacity        int    `yaml:"capacity"`
	HistoryCapacity int    `yaml:"history_capacity"`
}

type Worker struct {
	Name      string        `yaml:"name"`
	StepDelay time.Duration `yaml:"step_delay"`
	// RateLimit caps steps per second; 0 disables it. It replaces StepDelay when set.
	RateLimit       float64 `yaml:"rate_limit"`
	Burst           int     `yaml:"burst"`
	CheckpointEvery int     `yaml:"checkpoint_every"`
}

type Log struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

type Metrics struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Namespace    string        `yaml:"namespace"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the settings used when no file exists. The step delay
// matches the one-second simulated work of the multiply demo.
func Default() Config {
	return Config{
		Pool: Pool{
			Name:            "bgdemo",
			Capacity:        4,
			HistoryCapacity: 100,
		},
		Worker: Worker{
			Name:            "multiply",
			StepDelay:       time.Second,
			Burst:           1,
			CheckpointEvery: 1,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Metrics: Metrics{
			Addr:         "127.0.0.1:9464",
			Namespace:    "bgtask",
			PollInterval: 5 * time.Second,
		},
	}
}

// ResolvePath picks the config path: the flag value, then $BGTASKCONFIG, then DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if p, ok := os.LookupEnv(EnvConfigPath); ok && p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error when allowMissing is set.
func Load(path string, allowMissing bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && allowMissing:
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML, refusing to overwrite an existing file unless force is set.
func Save(path string, cfg Config, force bool) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return f.Close()
}

// Write renders cfg as YAML to w.
func Write(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// ApplyEnv overrides fields from the BGTASK_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPoolCapacity); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPoolCapacity, err)
		}
		c.Pool.Capacity = n
	}
	if v, ok := lookup(EnvWorkerStepDelay); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkerStepDelay, err)
		}
		c.Worker.StepDelay = d
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok && v != "" {
		c.Metrics.Addr = v
		c.Metrics.Enabled = true
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Pool.Capacity < 1 || c.Pool.Capacity > 10000 {
		errs = append(errs, fmt.Errorf("pool.capacity must be in [1, 10000], got %d", c.Pool.Capacity))
	}
	if c.Pool.HistoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("pool.history_capacity must not be negative"))
	}
	if c.Worker.StepDelay < 0 {
		errs = append(errs, fmt.Errorf("worker.step_delay must not be negative"))
	}
	if c.Worker.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("worker.rate_limit must not be negative"))
	}
	if c.Worker.RateLimit > 0 && c.Worker.Burst < 1 {
		errs = append(errs, fmt.Errorf("worker.burst must be at least 1 when rate_limit is set"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, fmt.Errorf("metrics.addr is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}

// Logger builds the slog-backed core logger described by c.Log.
func (c Config) Logger(w io.Writer) *core.SlogLogger {
	return core.NewSlogLoggerTo(w, c.Log.Format, c.Log.Level)
}

// PoolConfig translates the pool section into a core.WorkerPoolConfig.
func (c Config) PoolConfig(logger core.Logger, metrics core.Metrics) *core.WorkerPoolConfig {
	cfg := core.DefaultWorkerPoolConfig(c.Pool.Capacity)
	cfg.Name = c.Pool.Name
	cfg.HistoryCapacity = c.Pool.HistoryCapacity
	if logger != nil {
		cfg.Logger = logger
		cfg.PanicHandler = &core.DefaultPanicHandler{Logger: logger}
		cfg.RejectedTaskHandler = &core.DefaultRejectedTaskHandler{Logger: logger}
	}
	if metrics != nil {
		cfg.Metrics = metrics
	}
	return cfg
}

// WorkerOptions translates the worker section into core worker options.
func (c Config) WorkerOptions(logger core.Logger) []core.WorkerOption {
	opts := []core.WorkerOption{
		core.WithWorkerName(c.Worker.Name),
		core.WithCheckpointEvery(c.Worker.CheckpointEvery),
	}
	if c.Worker.RateLimit > 0 {
		opts = append(opts, core.WithRateLimit(rate.Limit(c.Worker.RateLimit), c.Worker.Burst))
	} else {
		opts = append(opts, core.WithStepDelay(c.Worker.StepDelay))
	}
	if logger != nil {
		opts = append(opts, core.WithWorkerLogger(logger))
	}
	return opts
}

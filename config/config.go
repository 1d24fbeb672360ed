// Package config loads the demo's runtime configuration.
//
// A YAML file is read into a generic map, dotted-key overrides (see
// configkeys) are merged over it, and the result is decoded into Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/on-the-ground/lifecycle_ive_go/config/configkeys"
	"github.com/on-the-ground/lifecycle_ive_go/effects/engine"
	"github.com/on-the-ground/lifecycle_ive_go/effects/log"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Demo    DemoConfig    `mapstructure:"demo" yaml:"demo"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

type EngineConfig struct {
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
	NumWorkers int `mapstructure:"num_workers" yaml:"num_workers"`
}

type LogConfig struct {
	Level       log.LogLevel `mapstructure:"level" yaml:"level"`
	Development bool         `mapstructure:"development" yaml:"development"`
}

type DemoConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	PulseInterval time.Duration `mapstructure:"pulse_interval" yaml:"pulse_interval"`
	Duration      time.Duration `mapstructure:"duration" yaml:"duration"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `mapstructure:"addr" yaml:"addr"`
}

func Default() Config {
	ec := engine.NewConfig(0, 0)
	return Config{
		Engine: EngineConfig{BufferSize: ec.BufferSize, NumWorkers: ec.NumWorkers},
		Log:    LogConfig{Level: log.LogInfo},
		Demo: DemoConfig{
			TickInterval:  time.Second,
			PulseInterval: 250 * time.Millisecond,
			Duration:      5 * time.Second,
		},
	}
}

// EngineConfig converts the engine section for engine.New.
func (c Config) EngineConfig() engine.Config {
	return engine.NewConfig(c.Engine.BufferSize, c.Engine.NumWorkers)
}

func (c Config) Validate() error {
	var errs []error
	if c.Engine.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", configkeys.EngineBufferSize))
	}
	if c.Engine.NumWorkers < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", configkeys.EngineNumWorkers))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", configkeys.LogLevel, err))
	}
	if c.Demo.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", configkeys.DemoTickInterval))
	}
	if c.Demo.PulseInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", configkeys.DemoPulseInterval))
	}
	if c.Demo.Duration < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", configkeys.DemoDuration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Load reads path (skipped when empty), applies overrides keyed by dotted
// configkeys, and decodes the result over Default. The config is validated.
func Load(path string, overrides map[string]any) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}
	for key, value := range overrides {
		if err := set(raw, configkeys.Split(key), value); err != nil {
			return Config{}, fmt.Errorf("%w: override %s: %w", ErrInvalidConfig, key, err)
		}
	}

	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			secondsToDuration,
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// secondsToDuration reads bare YAML numbers as seconds.
func secondsToDuration(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return data, nil
	}
}

func set(m map[string]any, path []string, value any) error {
	for i, key := range path {
		if key == "" {
			return errors.New("empty key segment")
		}
		if i == len(path)-1 {
			m[key] = value
			return nil
		}
		next, ok := m[key]
		if !ok {
			child := map[string]any{}
			m[key] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is not a section", key)
		}
		m = child
	}
	return nil
}

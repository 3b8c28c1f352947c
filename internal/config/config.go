// Package config loads the YAML configuration shared by the algo-patch
// applications.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no explicit path is given. A missing file at
// this path is not an error.
const DefaultPath = "~/.config/algo-patch/config.yaml"

// ErrInvalid is returned for unreadable or out-of-range configuration.
var ErrInvalid = errors.New("config: invalid")

// Config is the application configuration.
type Config struct {
	Audio  Audio  `yaml:"audio"`
	Engine Engine `yaml:"engine"`
	Store  Store  `yaml:"store"`
	Log    Log    `yaml:"log"`
	MIDI   MIDI   `yaml:"midi"`
}

// Audio configures the output stream.
type Audio struct {
	SampleRate float64 `yaml:"sample_rate"`
	BlockSize  int     `yaml:"block_size"`
}

// Engine configures the patch graph.
type Engine struct {
	LoadTimeout  time.Duration `yaml:"load_timeout"`
	AnalyserSize int           `yaml:"analyser_size"`
	// ModulesDir replaces the embedded module descriptions when set.
	ModulesDir string `yaml:"modules_dir"`
}

// Store configures named patch slots.
type Store struct {
	Dir string `yaml:"dir"`
}

// Log configures the application logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MIDI configures controller input. Channel -1 listens on all channels.
type MIDI struct {
	Port     string         `yaml:"port"`
	Channel  int            `yaml:"channel"`
	Bindings map[int]string `yaml:"bindings"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Audio:  Audio{SampleRate: 48000, BlockSize: 256},
		Engine: Engine{LoadTimeout: 5 * time.Second, AnalyserSize: 2048},
		Store:  Store{Dir: "~/.config/algo-patch/patches"},
		Log:    Log{Level: "info", Format: "text"},
		MIDI: MIDI{
			Channel:  -1,
			Bindings: map[int]string{74: "vcf.cutoff", 71: "vcf.resonance"},
		},
	}
}

// Load reads the file at path over the defaults. An empty path reads
// DefaultPath and tolerates its absence. Paths inside the file may start
// with '~'.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}

	data, err := os.ReadFile(expanded)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return Default().expand()
	}

	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected. A bindings table in the file replaces the default one.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	defaults := cfg.MIDI.Bindings
	cfg.MIDI.Bindings = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if cfg.MIDI.Bindings == nil {
		cfg.MIDI.Bindings = defaults
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg.expand()
}

func (c Config) expand() (Config, error) {
	var err error

	if c.Store.Dir, err = homedir.Expand(c.Store.Dir); err != nil {
		return Config{}, fmt.Errorf("%w: store.dir: %w", ErrInvalid, err)
	}

	if c.Engine.ModulesDir, err = homedir.Expand(c.Engine.ModulesDir); err != nil {
		return Config{}, fmt.Errorf("%w: engine.modules_dir: %w", ErrInvalid, err)
	}

	return c, nil
}

// Validate checks every field range.
func (c Config) Validate() error {
	var errs []error

	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %v", c.Audio.SampleRate))
	}

	if c.Audio.BlockSize < 32 || c.Audio.BlockSize > 8192 {
		errs = append(errs, fmt.Errorf("audio.block_size must be in [32, 8192], got %d", c.Audio.BlockSize))
	}

	if c.Engine.LoadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.load_timeout must be positive, got %v", c.Engine.LoadTimeout))
	}

	if n := c.Engine.AnalyserSize; n < 32 || n > 32768 || n&(n-1) != 0 {
		errs = append(errs, fmt.Errorf("engine.analyser_size must be a power of two in [32, 32768], got %d", n))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if c.MIDI.Channel < -1 || c.MIDI.Channel > 15 {
		errs = append(errs, fmt.Errorf("midi.channel must be in [-1, 15], got %d", c.MIDI.Channel))
	}

	for cc, target := range c.MIDI.Bindings {
		if cc < 0 || cc > 127 {
			errs = append(errs, fmt.Errorf("midi.bindings: controller %d out of range", cc))
		}

		module, param, ok := strings.Cut(target, ".")
		if !ok || module == "" || param == "" || strings.Contains(param, ".") {
			errs = append(errs, fmt.Errorf("midi.bindings[%d]: target %q is not module.param", cc, target))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}

	return level, nil
}

// Logger builds the configured logger writing to w.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	opts := &slog.HandlerOptions{Level: level}

	switch c.Log.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. NOTECAPTURE_SERVER_PORT.
const EnvPrefix = "NOTECAPTURE"

type Config struct {
	Audio      AudioConfig      `mapstructure:"audio" yaml:"audio"`
	Recorder   RecorderConfig   `mapstructure:"recorder" yaml:"recorder"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Transcript TranscriptConfig `mapstructure:"transcript" yaml:"transcript"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

type AudioConfig struct {
	Device              string `mapstructure:"device" yaml:"device"` // input device name, empty for the system default
	PreferredSampleRate int    `mapstructure:"preferred_sample_rate" yaml:"preferred_sample_rate" validate:"min=8000,max=192000"`
	MaxSampleRate       int    `mapstructure:"max_sample_rate" yaml:"max_sample_rate" validate:"min=8000,max=192000"`
	FramesPerBuffer     int    `mapstructure:"frames_per_buffer" yaml:"frames_per_buffer" validate:"min=0,max=16384"`
}

type RecorderConfig struct {
	SettleDelayMs   int  `mapstructure:"settle_delay_ms" yaml:"settle_delay_ms" validate:"min=0,max=2000"`
	LevelIntervalMs int  `mapstructure:"level_interval_ms" yaml:"level_interval_ms" validate:"min=10,max=1000"`
	StrictFormat    bool `mapstructure:"strict_format" yaml:"strict_format"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory" validate:"required"`
	MainFile  string `mapstructure:"main_file" yaml:"main_file" validate:"required"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

type TranscriptConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	IntervalMs int  `mapstructure:"interval_ms" yaml:"interval_ms" validate:"min=50,max=60000"`
}

type LoggingConfig struct {
	File       string `mapstructure:"file" yaml:"file"` // empty logs to stderr only
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"min=1"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"min=0"`
}

// SettleDelay returns the pause settle delay as a duration.
func (c RecorderConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// LevelInterval returns the level broadcast period as a duration.
func (c RecorderConfig) LevelInterval() time.Duration {
	return time.Duration(c.LevelIntervalMs) * time.Millisecond
}

// Interval returns the transcript emit period as a duration.
func (c TranscriptConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			PreferredSampleRate: 16000,
			MaxSampleRate:       44100,
		},
		Recorder: RecorderConfig{
			SettleDelayMs:   50,
			LevelIntervalMs: 50,
		},
		Output: OutputConfig{
			Directory: filepath.Join(os.Getenv("HOME"), "Documents", "NoteCapture"),
			MainFile:  "audio.wav",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Transcript: TranscriptConfig{
			Enabled:    true,
			IntervalMs: 300,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// DefaultPath is the config file used when --config is not given.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/notecapture.yaml")
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("audio.device", d.Audio.Device)
	v.SetDefault("audio.preferred_sample_rate", d.Audio.PreferredSampleRate)
	v.SetDefault("audio.max_sample_rate", d.Audio.MaxSampleRate)
	v.SetDefault("audio.frames_per_buffer", d.Audio.FramesPerBuffer)
	v.SetDefault("recorder.settle_delay_ms", d.Recorder.SettleDelayMs)
	v.SetDefault("recorder.level_interval_ms", d.Recorder.LevelIntervalMs)
	v.SetDefault("recorder.strict_format", d.Recorder.StrictFormat)
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("output.main_file", d.Output.MainFile)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("transcript.enabled", d.Transcript.Enabled)
	v.SetDefault("transcript.interval_ms", d.Transcript.IntervalMs)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile on top of the defaults and environment. A missing
// file is not an error; a malformed one is.
func Load(configFile string) (*Config, error) {
	v := newViper()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed '%s' check (value: %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	if err := validateSampleRates(c.Audio); err != nil {
		return err
	}
	return validateMainFile(c.Output.MainFile)
}

func validateSampleRates(a AudioConfig) error {
	if a.PreferredSampleRate > a.MaxSampleRate {
		return fmt.Errorf("audio.preferred_sample_rate (%d) must not exceed audio.max_sample_rate (%d)",
			a.PreferredSampleRate, a.MaxSampleRate)
	}
	return nil
}

func validateMainFile(name string) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("output.main_file must be a plain file name, got: %s", name)
	}
	if !strings.EqualFold(filepath.Ext(name), ".wav") {
		return fmt.Errorf("output.main_file must have a .wav extension, got: %s", name)
	}
	return nil
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("error writing config file %s: %w", path, err)
	}
	return nil
}

// WriteDefault writes the default configuration to path unless it exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	return Default().Save(path)
}

// Set updates one key in configFile and validates the result before writing.
func Set(configFile, key, value string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := newViper()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if !isKnownKey(v, key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	v.Set(key, value)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.Save(configFile)
}

func isKnownKey(v *viper.Viper, key string) bool {
	for _, k := range v.AllKeys() {
		if k == strings.ToLower(key) {
			return true
		}
	}
	return false
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

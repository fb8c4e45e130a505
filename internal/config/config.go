package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig   `mapstructure:"paths"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	LogLevel string        `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelPath      string `mapstructure:"model_path"`
	WeightsPath    string `mapstructure:"weights_path"`
	CapabilityPath string `mapstructure:"capability_path"`
}

type RuntimeConfig struct {
	// Backends lists accelerator backends in priority order. The CPU
	// backend always runs last and is not listed here.
	Backends       []string `mapstructure:"backends"`
	Threads        int      `mapstructure:"threads"`
	ORTLibraryPath string   `mapstructure:"ort_library_path"`
	ORTVersion     uint32   `mapstructure:"ort_version"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelPath:      "models/model.json",
			WeightsPath:    "",
			CapabilityPath: "",
		},
		Runtime: RuntimeConfig{
			Backends:       nil,
			Threads:        4,
			ORTLibraryPath: "",
			ORTVersion:     0,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Path to model graph file")
	fs.String("paths-weights-path", defaults.Paths.WeightsPath, "Path to safetensors weights file")
	fs.String("paths-capability-path", defaults.Paths.CapabilityPath, "Path to backend capability file")
	fs.StringSlice("runtime-backends", defaults.Runtime.Backends, "Accelerator backends in priority order")
	fs.Int("runtime-threads", defaults.Runtime.Threads, "ONNX Runtime intra-op thread count")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.Uint32("runtime-ort-version", defaults.Runtime.ORTVersion, "ONNX Runtime API version")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("GRAPHSPLIT")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "GRAPHSPLIT_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("graphsplit")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	for i, b := range cfg.Runtime.Backends {
		normalized, err := NormalizeBackend(b)
		if err != nil {
			return Config{}, err
		}

		cfg.Runtime.Backends[i] = normalized
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.weights_path", c.Paths.WeightsPath)
	v.SetDefault("paths.capability_path", c.Paths.CapabilityPath)
	v.SetDefault("runtime.backends", c.Runtime.Backends)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.model_path", "paths-model-path")
	v.RegisterAlias("paths.weights_path", "paths-weights-path")
	v.RegisterAlias("paths.capability_path", "paths-capability-path")
	v.RegisterAlias("runtime.backends", "runtime-backends")
	v.RegisterAlias("runtime.threads", "runtime-threads")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("runtime.ort_version", "runtime-ort-version")
	v.RegisterAlias("log_level", "log-level")
}

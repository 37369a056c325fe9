package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the mlcchat configuration file ($XDG_CONFIG_HOME/mlcchat/config.yaml).
// Numeric fields are pointers so an explicit zero can be told apart from unset.
type Config struct {
	LocalID      string `yaml:"local_id"`
	Model        string `yaml:"model"`
	Quantization string `yaml:"quantization"`
	ArtifactPath string `yaml:"artifact_path"`
	RuntimeLib   string `yaml:"runtime_lib"`

	DeviceName string `yaml:"device_name"`
	DeviceID   *int64 `yaml:"device_id"`

	StreamInterval *int64 `yaml:"stream_interval"`
	StreamMode     string `yaml:"stream_mode"`
	EraseMode      string `yaml:"erase_mode"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mlcchat", "config.yaml")
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig copies config file values into flag variables the user did not
// set on the command line or through the environment.
func applyConfig(c *cli.Command, cfg Config) {
	setString := func(flag, value string, dst *string) {
		if value != "" && !c.IsSet(flag) {
			*dst = value
		}
	}
	setInt := func(flag string, value *int64, dst *int64) {
		if value != nil && !c.IsSet(flag) {
			*dst = *value
		}
	}

	setString("local-id", cfg.LocalID, &localID)
	setString("model", cfg.Model, &modelName)
	setString("quantization", cfg.Quantization, &quantization)
	setString("artifact-path", cfg.ArtifactPath, &artifactPath)
	setString("runtime-lib", cfg.RuntimeLib, &runtimeLib)
	setString("device-name", cfg.DeviceName, &deviceName)
	setInt("device_id", cfg.DeviceID, &deviceID)
	setInt("stream-interval", cfg.StreamInterval, &streamInterval)
	setString("stream-mode", cfg.StreamMode, &streamMode)
	setString("erase-mode", cfg.EraseMode, &eraseMode)
	setString("log-level", cfg.LogLevel, &logLevel)
	setString("log-format", cfg.LogFormat, &logFormat)
}

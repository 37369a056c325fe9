package main

import (
	"strings"

	"github.com/urfave/cli/v3"
)

const envPrefix = "MLC_CHAT_"

var (
	localID        string
	modelName      string
	quantization   string
	deviceName     string
	deviceID       int64
	artifactPath   string
	runtimeLib     string
	evaluate       bool
	streamInterval int64
	streamMode     string
	eraseMode      string
	configFile     string
	logLevel       string
	logFormat      string
	debug          bool
)

// envVars maps a flag name to its MLC_CHAT_* variable.
func envVars(name string) cli.ValueSourceChain {
	key := strings.ToUpper(strings.NewReplacer("-", "_").Replace(name))
	return cli.EnvVars(envPrefix + key)
}

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "local-id",
			Usage:       "model identifier to load; overrides --model and --quantization",
			Sources:     envVars("local-id"),
			Destination: &localID,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "model name used to derive identifiers",
			Value:       "vicuna-v1-7b",
			Sources:     envVars("model"),
			Destination: &modelName,
		},
		&cli.StringFlag{
			Name:        "quantization",
			Usage:       "quantization preset, or auto to try every preset",
			Value:       "auto",
			Sources:     envVars("quantization"),
			Destination: &quantization,
		},
		&cli.StringFlag{
			Name:        "device-name",
			Usage:       "backend (auto, cuda, metal, vulkan, opencl, cpu)",
			Value:       "auto",
			Sources:     envVars("device-name"),
			Destination: &deviceName,
		},
		&cli.Int64Flag{
			Name:        "device_id",
			Aliases:     []string{"device-id"},
			Usage:       "device ordinal",
			Sources:     envVars("device-id"),
			Destination: &deviceID,
		},
		&cli.StringFlag{
			Name:        "artifact-path",
			Usage:       "root directory of compiled models",
			Value:       "dist",
			Sources:     envVars("artifact-path"),
			Destination: &artifactPath,
		},
		&cli.StringFlag{
			Name:        "runtime-lib",
			Usage:       "path to the chat runtime library (default: search {artifact-path}/lib and the executable directory)",
			Sources:     envVars("runtime-lib"),
			Destination: &runtimeLib,
		},
	}
}

func chatFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "evaluate",
			Usage:       "run the engine benchmark once instead of chatting",
			Sources:     envVars("evaluate"),
			Destination: &evaluate,
		},
		&cli.Int64Flag{
			Name:        "stream-interval",
			Usage:       "decode steps between screen refreshes",
			Value:       2,
			Sources:     envVars("stream-interval"),
			Destination: &streamInterval,
		},
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "output mode (typewriter, quiet)",
			Value:       "typewriter",
			Sources:     envVars("stream-mode"),
			Destination: &streamMode,
		},
		&cli.StringFlag{
			Name:        "erase-mode",
			Usage:       "how redraws erase text (cluster, width)",
			Value:       "cluster",
			Sources:     envVars("erase-mode"),
			Destination: &eraseMode,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file (default $XDG_CONFIG_HOME/mlcchat/config.yaml)",
			Sources:     envVars("config"),
			Destination: &configFile,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     envVars("log-level"),
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Sources:     envVars("log-format"),
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Sources:     envVars("debug"),
			Destination: &debug,
		},
	}
}

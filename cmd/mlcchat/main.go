package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mlcchat/internal/logger"
)

func main() {
	if err := loadDotEnv(".env"); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "warning: load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// The first signal lets the current reply finish; a second one kills.
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := rootCmd(defaultHost()).Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCmd(h *host) *cli.Command {
	flags := append([]cli.Flag{}, modelFlags()...)
	flags = append(flags, chatFlags()...)
	flags = append(flags, loggingFlags()...)

	return &cli.Command{
		Name:  "mlcchat",
		Usage: "Chat with a compiled language model from the terminal",
		Flags: flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyConfig(c, cfg)

			log, err := newLogger()
			if err != nil {
				return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			opts, err := optionsFromFlags()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := h.run(ctx, opts); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return nil
		},
		Commands: []*cli.Command{
			listModelsCmd(),
			versionCmd(),
		},
	}
}

func newLogger() (logger.Logger, error) {
	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return nil, err
	}
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	return logger.Open(os.Stderr, format, level), nil
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/samcharles93/mlcchat/internal/artifact"
	"github.com/samcharles93/mlcchat/internal/device"
	"github.com/samcharles93/mlcchat/internal/engine"
	"github.com/samcharles93/mlcchat/internal/logger"
)

// runEvaluate initializes the engine and runs its built-in benchmark once.
func runEvaluate(ctx context.Context, w io.Writer, eng engine.Engine, lib engine.Library, set artifact.Set, dev device.Descriptor) error {
	log := logger.FromContext(ctx)

	log.Info("loading model for evaluation", "model", set.LocalID, "device", dev.String())
	loadStart := time.Now()
	if err := eng.Reload(lib, set.ModelPath); err != nil {
		return fmt.Errorf("initialize chat: %w", err)
	}
	loadDuration := time.Since(loadStart)

	evalStart := time.Now()
	if err := eng.Evaluate(); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	evalDuration := time.Since(evalStart)

	stats, err := eng.RuntimeStatsText()
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	fmt.Fprintln(w, "=== Evaluate ===")
	fmt.Fprintf(w, "Model:    %s\n", set.LocalID)
	fmt.Fprintf(w, "Device:   %s\n", dev)
	fmt.Fprintf(w, "Load:     %s\n", loadDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Evaluate: %s\n", evalDuration.Round(time.Millisecond))
	if stats != "" {
		fmt.Fprintf(w, "Stats:    %s\n", stats)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mlcchat/internal/artifact"
	"github.com/samcharles93/mlcchat/internal/logger"
)

func listModelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "list-models",
		Aliases: []string{"ls", "models"},
		Usage:   "List model identifiers under the artifact path",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := listModels(ctx, os.Stdout, artifactPath); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return nil
		},
	}
}

func listModels(ctx context.Context, w io.Writer, root string) error {
	log := logger.FromContext(ctx)

	models, err := artifact.Discover(root)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		log.Info("no models found", "path", root)
		return nil
	}

	fmt.Fprintf(w, "Models in %s:\n\n", root)
	for _, m := range models {
		layout := "params"
		if m.Prebuilt {
			layout = "prebuilt"
		}
		manifest, err := artifact.LoadParamsManifest(m.ModelPath)
		if err != nil {
			log.Debug("params manifest unreadable", "model", m.ID, "error", err)
			fmt.Fprintf(w, "  %-40s %10s  (%s)\n", m.ID, "-", layout)
			continue
		}
		fmt.Fprintf(w, "  %-40s %10s  (%s, %d shards)\n",
			m.ID, artifact.FormatSize(manifest.TotalBytes), layout, manifest.Shards)
	}
	fmt.Fprintf(w, "\n%d model(s) found\n", len(models))
	return nil
}

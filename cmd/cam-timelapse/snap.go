// cmd/cam-timelapse/snap.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sua-org/cam-timelapse/internal/core"
	"github.com/sua-org/cam-timelapse/internal/fetcher"
	"github.com/sua-org/cam-timelapse/internal/layout"
	"github.com/sua-org/cam-timelapse/internal/retry"
)

var snapOutDir string

// snap faz uma busca lógica (com retries) para uma câmera e sai; útil para
// testar credenciais e URL antes de instalar o serviço.
var snapCmd = &cobra.Command{
	Use:   "snap <camera>",
	Short: "Fetch one snapshot from a single camera and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cam, ok := cfg.Camera(name)
		if !ok {
			if err := layout.ValidateCamera(name); err != nil {
				return err
			}
			cam = core.Camera{ID: name, SnapshotURL: cfg.SnapshotURLFor(name)}
			slog.Info("camera not configured, using url pattern", "camera", name, "url", cam.SnapshotURL)
		}

		root := cfg.ImageOutputPath
		if snapOutDir != "" {
			root = snapOutDir
		}
		dir, err := layout.NewResolver(root).EnsureDirectoryFor(cam.ID, time.Now())
		if err != nil {
			return err
		}

		// Ctrl+C pra cancelar
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, cfg.Deadline())
		defer cancel()

		client := fetcher.NewHTTPClient(cfg.InsecureTLS, 1)
		defer client.CloseIdleConnections()

		task := fetcher.NewTask(
			fetcher.NewImageFetcher(client, slog.Default()),
			retry.New(cfg.FetchMaxRetries, cfg.RetryDelay()),
			cfg.Timeout(),
			nil,
			slog.Default(),
		)
		out := task.Run(ctx, cam, dir)

		fmt.Println(out.String())
		if out.Kind != core.OutcomeSaved {
			return fmt.Errorf("snapshot for %s not saved: %s", cam.ID, out)
		}
		fmt.Println(out.Path)
		return nil
	},
}

func init() {
	snapCmd.Flags().StringVar(&snapOutDir, "out", "", "image root override (defaults to image_output_path)")
}

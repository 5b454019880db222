// cmd/cam-timelapse/root.go
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/sua-org/cam-timelapse/internal/config"
)

var (
	cfgFile       string
	serviceAction string // install, uninstall, start, stop, restart

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cam-timelapse",
	Short: "Periodically fetch camera snapshots for timelapse material",
	Long: `Fetches one JPEG per configured camera every interval, concurrently,
and stores it under <image root>/<camera>/<YYYY>/<MM>/<DD>.
Can be installed as a system service.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.NewViper()
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		}
		for key, flag := range map[string]string{
			"logging_level": "log-level",
			"http_addr":     "http-addr",
		} {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}

		c, err := config.LoadFrom(v)
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		setupLogging(c.LoggingLevel)
		cfg = c
		return nil
	},
	RunE: runService,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./timelapse.yaml or /etc/cam-timelapse/timelapse.yaml)")
	rootCmd.PersistentFlags().String("log-level", "INFO", "log level (DEBUG, INFO, WARNING, ERROR)")
	rootCmd.Flags().String("http-addr", "", "status server address, e.g. :8080 (empty disables it)")
	rootCmd.Flags().StringVar(&serviceAction, "service", "", "Service action: install, uninstall, start, stop, restart")

	rootCmd.AddCommand(snapCmd)
}

func setupLogging(level string) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func runService(cmd *cobra.Command, args []string) error {
	svcConfig := &service.Config{
		Name:        "cam-timelapse",
		DisplayName: "Camera Timelapse Fetcher",
		Description: "Fetches periodic camera snapshots for timelapse material.",
	}
	if cfgFile != "" {
		svcConfig.Arguments = []string{"--config", cfgFile}
	}

	prg := &program{cfg: cfg}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	if serviceAction != "" {
		if err := service.Control(s, serviceAction); err != nil {
			return fmt.Errorf("failed to %s service: %w", serviceAction, err)
		}
		fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
		return nil
	}

	// Bloqueia até o service manager (ou Ctrl+C no modo interativo) chamar Stop.
	if err := s.Run(); err != nil {
		return err
	}
	return prg.err
}

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pvescope/internal/config"
)

var (
	configPath string
	verbose    bool
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pvescope",
		Short:         "Cluster-wide capacity and inventory reporting for Proxmox VE",
		Long:          "pvescope polls one or more Proxmox VE servers, aggregates node and guest\nresources across the cluster and reports utilization, capacity headroom and\nthe full guest inventory.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./pvescope.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newMonitorCommand())
	root.AddCommand(newVMsCommand())
	return root
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func buildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		cfg.LogLevel = "debug"
	}
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, hOpts))
}

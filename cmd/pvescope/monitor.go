package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pvescope/internal/capacity"
	"pvescope/internal/config"
	"pvescope/internal/model"
	"pvescope/internal/poll"
	"pvescope/internal/render"
	"pvescope/internal/report"
	"pvescope/internal/stream"
)

func newMonitorCommand() *cobra.Command {
	var (
		listVMs    bool
		exportJSON bool
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll all configured servers and show the cluster dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := buildLogger(cfg)

			runner := poll.NewRunner(cfg, logger)
			snap := runner.Run(cmd.Context())
			if len(snap.Servers) == 0 {
				for _, f := range snap.Failures {
					logger.Error("server unreachable", "server", f.Host, "reason", f.Reason)
				}
				return errors.New("no server could be polled")
			}

			thresholds := capacity.Thresholds{
				Warning:  cfg.Thresholds.Warning,
				Critical: cfg.Thresholds.Critical,
			}
			rep, err := report.Build(snap, thresholds)
			if err != nil {
				return err
			}

			p := render.NewPrinter(cmd.OutOrStdout())
			p.Dashboard(rep)
			p.Failures(snap.Failures)
			if listVMs {
				fmt.Fprintln(cmd.OutOrStdout())
				p.VMSummary(snap.VMs())
			}

			if exportJSON {
				payload := report.ClusterExport{ExportedAt: time.Now().UTC(), Report: rep}
				path := outputPath
				if path == "" {
					path = fmt.Sprintf("cluster_report_%s.json", time.Now().Format("20060102_150405"))
				}
				if err := writeJSONFile(path, payload); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report exported to %s\n", path)
			}

			return pushReport(cmd.Context(), cfg, logger, rep)
		},
	}

	cmd.Flags().BoolVar(&listVMs, "list-vms", false, "also list every guest across the cluster")
	cmd.Flags().BoolVar(&exportJSON, "export", false, "write the full report to a JSON file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "export file path (default cluster_report_<ts>.json)")
	return cmd
}

func pushReport(ctx context.Context, cfg config.Config, logger *slog.Logger, rep model.UtilizationReport) error {
	sink, err := stream.NewSinkFromConfig(cfg.Push, nil, logger)
	if err != nil {
		return err
	}
	if sink == nil {
		return nil
	}
	defer func() {
		_ = sink.Close(ctx)
	}()

	pushCtx := ctx
	if cfg.Push.Timeout > 0 {
		var cancel context.CancelFunc
		pushCtx, cancel = context.WithTimeout(ctx, cfg.Push.Timeout)
		defer cancel()
	}
	if err := sink.SendReport(pushCtx, rep); err != nil {
		logger.Warn("report push failed", "error", err)
	}
	return nil
}

func writeJSONFile(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

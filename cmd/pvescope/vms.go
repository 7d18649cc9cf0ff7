package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pvescope/internal/model"
	"pvescope/internal/poll"
	"pvescope/internal/render"
	"pvescope/internal/report"
)

func newVMsCommand() *cobra.Command {
	var (
		statusFilter string
		nameFilter   string
		detailed     bool
		stats        bool
		exportJSON   bool
		outputPath   string
	)

	cmd := &cobra.Command{
		Use:   "vms",
		Short: "List guests across all configured servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if statusFilter != "" {
				switch model.VMState(statusFilter) {
				case model.StateRunning, model.StateStopped, model.StateTemplate:
				default:
					return fmt.Errorf("invalid status %q (want running, stopped or template)", statusFilter)
				}
			}

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
			for _, f := range snap.Failures {
				logger.Warn("server skipped", "server", f.Host, "reason", f.Reason)
			}

			vms := filterVMs(snap.VMs(), statusFilter, nameFilter)
			p := render.NewPrinter(cmd.OutOrStdout())
			switch {
			case stats:
				p.Statistics(vms)
			case detailed:
				p.VMDetails(vms)
			default:
				p.VMSummary(vms)
			}

			if exportJSON {
				filtered := snap
				filtered.Servers = filteredInventories(snap.Servers, statusFilter, nameFilter)
				payload := report.ExportVMs(filtered, time.Now())
				path := outputPath
				if path == "" {
					path = fmt.Sprintf("vm_export_%s.json", time.Now().Format("20060102_150405"))
				}
				if err := writeJSONFile(path, payload); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d VMs to %s\n", payload.TotalVMs, path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "only guests in this state (running, stopped, template)")
	cmd.Flags().StringVar(&nameFilter, "name", "", "only guests whose name contains this substring (case-insensitive)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "full per-guest breakdown instead of the summary table")
	cmd.Flags().BoolVar(&stats, "stats", false, "aggregate statistics instead of per-guest rows")
	cmd.Flags().BoolVar(&exportJSON, "export", false, "write the matching guests to a JSON file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "export file path (default vm_export_<ts>.json)")
	return cmd
}

func filterVMs(vms []model.VM, status, name string) []model.VM {
	name = strings.ToLower(name)
	out := make([]model.VM, 0, len(vms))
	for _, vm := range vms {
		if status != "" && vm.State != model.VMState(status) {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(vm.Name), name) {
			continue
		}
		out = append(out, vm)
	}
	return out
}

func filteredInventories(servers []model.ServerInventory, status, name string) []model.ServerInventory {
	out := make([]model.ServerInventory, 0, len(servers))
	for _, srv := range servers {
		srv.VMs = filterVMs(srv.VMs, status, name)
		out = append(out, srv)
	}
	return out
}

// Package render writes the human-facing views: the cluster dashboard, the
// guest summary/detail tables and the statistics block. Tables go through
// tabwriter; severity accents use lipgloss styles.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pvescope/internal/model"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	sectionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	unknownStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func tierStyle(t model.Tier) lipgloss.Style {
	switch t {
	case model.TierOK:
		return okStyle
	case model.TierWarning:
		return warningStyle
	case model.TierCritical:
		return criticalStyle
	default:
		return unknownStyle
	}
}

// Printer renders reports to a writer.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Dashboard writes per-node capacity rows, cluster totals, the utilization
// tiers and the growth prediction.
func (p *Printer) Dashboard(rep model.UtilizationReport) {
	snap := rep.Snapshot
	fmt.Fprintln(p.w, headerStyle.Render(
		fmt.Sprintf("Cluster Dashboard - %s", snap.CollectedAt.Format("2006-01-02 15:04:05"))))

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tNODE\tRUNNING\tSTOPPED\tCPU USED/MAX\tMEM USED/MAX\tDISK USED/MAX")
	for _, srv := range snap.Servers {
		running, stopped := countByState(srv.VMs)
		for _, n := range srv.Nodes {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.1f/%d\t%s/%s\t%s/%s\n",
				srv.Host, n.Name, running, stopped,
				n.CPUUsedCores, n.CPUCores,
				formatBytes(n.MemoryUsedBytes), formatBytes(n.MemoryTotalBytes),
				formatBytes(n.DiskUsedBytes), formatBytes(n.DiskTotalBytes))
		}
	}
	tw.Flush()

	fmt.Fprintf(p.w, "\nTotal VMs running: %d, stopped: %d, templates: %d\n",
		snap.Totals.VMsByState[model.StateRunning],
		snap.Totals.VMsByState[model.StateStopped],
		snap.Totals.VMsByState[model.StateTemplate])

	fmt.Fprintln(p.w, sectionStyle.Render("\nResource Utilization"))
	for _, res := range rep.Resources {
		fmt.Fprintf(p.w, "  %-6s  usage %s  allocation %s\n",
			res.Resource,
			tierStyle(res.UsageTier).Render(formatRatio(res.Usage)),
			tierStyle(res.AllocationTier).Render(formatRatio(res.Allocation)))
	}

	fmt.Fprintf(p.w, "\nPredicted additional VMs the cluster can support: %s (limited by %s)\n",
		predictionStyle(rep.Prediction.AdditionalVMs).Render(fmt.Sprintf("%d", rep.Prediction.AdditionalVMs)),
		rep.Prediction.LimitingResource)
}

// Failures lists the servers that contributed nothing and why.
func (p *Printer) Failures(failures []model.ServerFailure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(p.w, criticalStyle.Render("\nFailed servers"))
	for _, f := range failures {
		fmt.Fprintf(p.w, "  %s: %s\n", f.Host, f.Reason)
	}
}

// VMSummary writes the one-line-per-guest table, ordered by
// (server, node, vmid).
func (p *Printer) VMSummary(vms []model.VM) {
	if len(vms) == 0 {
		fmt.Fprintln(p.w, "No VMs found matching the criteria.")
		return
	}
	fmt.Fprintln(p.w, headerStyle.Render(fmt.Sprintf("VM Summary - %d VMs", len(vms))))

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tNODE\tVMID\tNAME\tSTATE\tCPU\tRAM\tDISK\tUPTIME\tCPU%\tOS")
	for _, vm := range sortedVMs(vms) {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%dC/%dS\t%s\t%s\t%s\t%s\t%s\n",
			shortHost(vm.Server), vm.Node, vm.VMID, truncate(vm.Name, 24), vm.State,
			vm.Cores, vm.Sockets,
			formatBytes(vm.MemoryBytes), formatBytes(vm.AllocatedDiskBytes()),
			formatUptime(vm.UptimeSeconds), formatLiveCPU(vm), vm.OSType)
	}
	tw.Flush()
}

// VMDetails writes the full per-guest breakdown.
func (p *Printer) VMDetails(vms []model.VM) {
	for _, vm := range sortedVMs(vms) {
		fmt.Fprintln(p.w, headerStyle.Render(
			fmt.Sprintf("\nVM: %s (ID %d) on %s/%s", vm.Name, vm.VMID, vm.Server, vm.Node)))

		fmt.Fprintf(p.w, "  State: %s\n", tierStyle(stateTier(vm.State)).Render(string(vm.State)))
		fmt.Fprintf(p.w, "  OS Type: %s  Machine: %s  BIOS: %s  Agent: %v\n",
			orNA(vm.OSType), orNA(vm.Machine), orNA(vm.BIOS), vm.AgentEnabled)
		if vm.Description != "" {
			fmt.Fprintf(p.w, "  Description: %s\n", vm.Description)
		}
		if vm.Tags != "" {
			fmt.Fprintf(p.w, "  Tags: %s\n", vm.Tags)
		}

		fmt.Fprintf(p.w, "  CPU: %d cores x %d sockets  Memory: %s\n",
			vm.Cores, vm.Sockets, formatBytes(vm.MemoryBytes))
		if vm.State == model.StateRunning {
			fmt.Fprintf(p.w, "  Live: cpu %s, memory %s, uptime %s\n",
				formatLiveCPU(vm), formatLiveMem(vm), formatUptime(vm.UptimeSeconds))
		}

		if len(vm.Disks) > 0 {
			fmt.Fprintln(p.w, sectionStyle.Render("  Disks"))
			for _, d := range vm.Disks {
				fmt.Fprintf(p.w, "    %s: %s on %s\n", d.Interface, formatBytes(d.SizeBytes), d.Storage)
			}
			fmt.Fprintf(p.w, "    total: %s\n", formatBytes(vm.AllocatedDiskBytes()))
		}
		if len(vm.Nets) > 0 {
			fmt.Fprintln(p.w, sectionStyle.Render("  Network"))
			for _, n := range vm.Nets {
				fmt.Fprintf(p.w, "    %s: %s on %s", n.Name, orNA(n.Model), orNA(n.Bridge))
				if n.MAC != "" {
					fmt.Fprintf(p.w, " (%s)", n.MAC)
				}
				fmt.Fprintln(p.w)
			}
		}
		if vm.BootOrder != "" {
			fmt.Fprintf(p.w, "  Boot Order: %s\n", vm.BootOrder)
		}
	}
}

// Statistics writes counts by state, running resource totals and the OS
// distribution (templates excluded).
func (p *Printer) Statistics(vms []model.VM) {
	fmt.Fprintln(p.w, headerStyle.Render("VM Statistics"))

	var running, stopped, templates int
	var runCores, runMem uint64
	var disk uint64
	osDist := map[string]int{}
	for _, vm := range vms {
		disk += vm.AllocatedDiskBytes()
		switch vm.State {
		case model.StateRunning:
			running++
			runCores += vm.Cores * max(vm.Sockets, 1)
			runMem += vm.MemoryBytes
		case model.StateTemplate:
			templates++
			continue
		default:
			stopped++
		}
		os := vm.OSType
		if os == "" {
			os = "unknown"
		}
		osDist[os]++
	}

	fmt.Fprintf(p.w, "Total VMs: %d (running %s, stopped %s, templates %d)\n",
		len(vms), okStyle.Render(fmt.Sprintf("%d", running)),
		criticalStyle.Render(fmt.Sprintf("%d", stopped)), templates)
	fmt.Fprintf(p.w, "Running allocation: %d cores, %s memory\n", runCores, formatBytes(runMem))
	fmt.Fprintf(p.w, "Total disk allocation (all VMs): %s\n", formatBytes(disk))

	if len(osDist) > 0 {
		fmt.Fprintln(p.w, sectionStyle.Render("OS Distribution"))
		names := make([]string, 0, len(osDist))
		for name := range osDist {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if osDist[names[i]] != osDist[names[j]] {
				return osDist[names[i]] > osDist[names[j]]
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			fmt.Fprintf(p.w, "  %s: %d\n", name, osDist[name])
		}
	}
}

func countByState(vms []model.VM) (running, stopped int) {
	for _, vm := range vms {
		switch vm.State {
		case model.StateRunning:
			running++
		case model.StateStopped:
			stopped++
		}
	}
	return running, stopped
}

func sortedVMs(vms []model.VM) []model.VM {
	out := append([]model.VM(nil), vms...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return out[i].Server < out[j].Server
		}
		if out[i].Node != out[j].Node {
			return out[i].Node < out[j].Node
		}
		return out[i].VMID < out[j].VMID
	})
	return out
}

func stateTier(s model.VMState) model.Tier {
	switch s {
	case model.StateRunning:
		return model.TierOK
	case model.StateStopped:
		return model.TierCritical
	default:
		return model.TierUnknown
	}
}

func predictionStyle(n int) lipgloss.Style {
	switch {
	case n > 10:
		return okStyle
	case n > 3:
		return warningStyle
	default:
		return criticalStyle
	}
}

func formatRatio(r model.Ratio) string {
	if !r.Defined {
		return "unknown"
	}
	return fmt.Sprintf("%.1f%%", r.Value*100)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%c", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatUptime(seconds *uint64) string {
	if seconds == nil {
		return "n/a"
	}
	d := time.Duration(*seconds) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

func formatLiveCPU(vm model.VM) string {
	if vm.CPUUsedCores == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f cores", *vm.CPUUsedCores)
}

func formatLiveMem(vm model.VM) string {
	if vm.MemoryUsedBytes == nil {
		return "n/a"
	}
	return formatBytes(*vm.MemoryUsedBytes)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func shortHost(host string) string {
	short, _, _ := strings.Cut(host, ".")
	return short
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

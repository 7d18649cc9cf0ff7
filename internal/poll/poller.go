// Package poll orchestrates one polling cycle: every configured server is
// fetched concurrently, guest queries within a server run through a bounded
// worker pool, and all results meet at a single barrier before the
// single-threaded aggregation merge. A failing server never aborts the run;
// it becomes a failure entry next to the surviving servers' data.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"pvescope/internal/aggregate"
	"pvescope/internal/config"
	"pvescope/internal/fetch"
	"pvescope/internal/model"
	"pvescope/internal/normalize"
	"pvescope/internal/proxmox"
)

// Gateway is the per-server API surface the runner polls. *proxmox.Client
// implements it; tests substitute fakes.
type Gateway interface {
	ListNodes(ctx context.Context) ([]proxmox.RawNode, error)
	NodeStatus(ctx context.Context, node string) (proxmox.RawNodeStatus, error)
	ListVMs(ctx context.Context, node string) ([]proxmox.RawVM, error)
	VMConfig(ctx context.Context, node string, vmid uint64) (proxmox.RawVMConfig, error)
	VMStatus(ctx context.Context, node string, vmid uint64) (proxmox.RawVMStatus, error)
	ListStorage(ctx context.Context, node string) ([]proxmox.RawStorage, error)
	StorageStatus(ctx context.Context, node, storage string) (proxmox.RawStorageStatus, error)
}

// GatewayFactory builds a gateway for one configured server.
type GatewayFactory func(config.ServerConfig) Gateway

type Runner struct {
	cfg        config.Config
	logger     *slog.Logger
	newGateway GatewayFactory
}

func NewRunner(cfg config.Config, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: logger,
		newGateway: func(sc config.ServerConfig) Gateway {
			return proxmox.NewClient(sc, cfg.Fetch.Timeout, logger)
		},
	}
}

// NewRunnerWithGateway is NewRunner with a custom gateway factory.
func NewRunnerWithGateway(cfg config.Config, logger *slog.Logger, factory GatewayFactory) *Runner {
	r := NewRunner(cfg, logger)
	r.newGateway = factory
	return r
}

// Run executes one polling cycle and returns the snapshot. Each server task
// owns its own result buffer; the aggregation merge happens only after
// every task has finished.
func (r *Runner) Run(ctx context.Context) model.ClusterSnapshot {
	results := make([]aggregate.ServerResult, len(r.cfg.Servers))

	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range r.cfg.Servers {
		g.Go(func() error {
			r.logger.Info("polling server", "server", sc.Host)
			results[i] = r.collectServer(gctx, sc)
			if results[i].Err != nil {
				r.logger.Error("server poll failed", "server", sc.Host, "error", results[i].Err)
			} else {
				r.logger.Info("server poll finished", "server", sc.Host,
					"nodes", len(results[i].Nodes), "vms", len(results[i].VMs))
			}
			return nil
		})
	}
	// Barrier: tasks never return errors, so Wait only synchronizes.
	_ = g.Wait()

	return aggregate.Build(results, time.Now())
}

func (r *Runner) collectServer(ctx context.Context, sc config.ServerConfig) aggregate.ServerResult {
	gw := r.newGateway(sc)
	fcfg := fetch.Config{
		MaxAttempts: r.cfg.Fetch.MaxAttempts,
		BaseDelay:   r.cfg.Fetch.BaseDelay,
		MaxDelay:    r.cfg.Fetch.MaxDelay,
	}
	res := aggregate.ServerResult{Host: sc.Host}

	rawNodes, err := fetch.Do(ctx, r.logger, fcfg, sc.Host, "list nodes", gw.ListNodes)
	if err != nil {
		res.Err = err
		return res
	}

	short := sc.ShortName()
	for _, rawNode := range rawNodes {
		// Only nodes matching the server's short hostname belong to it.
		if rawNode.Node != short {
			continue
		}
		node, vms, err := r.collectNode(ctx, gw, fcfg, sc.Host, rawNode)
		if err != nil {
			res.Err = err
			return res
		}
		res.Nodes = append(res.Nodes, node)
		res.VMs = append(res.VMs, vms...)
	}
	return res
}

func (r *Runner) collectNode(ctx context.Context, gw Gateway, fcfg fetch.Config, host string, rawNode proxmox.RawNode) (model.Node, []model.VM, error) {
	nodeName := rawNode.Node

	status, err := fetch.Do(ctx, r.logger, fcfg, host, "node status "+nodeName, func(ctx context.Context) (proxmox.RawNodeStatus, error) {
		return gw.NodeStatus(ctx, nodeName)
	})
	if err != nil {
		return model.Node{}, nil, err
	}

	diskTotal, diskUsed, err := r.collectStorage(ctx, gw, fcfg, host, nodeName)
	if err != nil {
		return model.Node{}, nil, err
	}
	node := normalize.Node(host, rawNode, status, diskTotal, diskUsed)

	rawVMs, err := fetch.Do(ctx, r.logger, fcfg, host, "list vms "+nodeName, func(ctx context.Context) ([]proxmox.RawVM, error) {
		return gw.ListVMs(ctx, nodeName)
	})
	if err != nil {
		return model.Node{}, nil, err
	}

	vms, err := r.collectVMs(ctx, gw, fcfg, host, nodeName, rawVMs)
	if err != nil {
		return model.Node{}, nil, err
	}
	return node, vms, nil
}

// collectStorage sums total and used bytes over the node's local storage
// pools. A pool whose status query fails is skipped with a warning; some
// storage types do not report status.
func (r *Runner) collectStorage(ctx context.Context, gw Gateway, fcfg fetch.Config, host, nodeName string) (uint64, uint64, error) {
	pools, err := fetch.Do(ctx, r.logger, fcfg, host, "list storage "+nodeName, func(ctx context.Context) ([]proxmox.RawStorage, error) {
		return gw.ListStorage(ctx, nodeName)
	})
	if err != nil {
		return 0, 0, err
	}

	var total, used uint64
	for _, pool := range pools {
		if !normalize.LocalStorage(pool) {
			continue
		}
		status, err := fetch.Do(ctx, r.logger, fcfg, host, "storage status "+pool.Storage, func(ctx context.Context) (proxmox.RawStorageStatus, error) {
			return gw.StorageStatus(ctx, nodeName, pool.Storage)
		})
		if err != nil {
			r.logger.Warn("storage status unavailable, skipping pool",
				"server", host, "node", nodeName, "storage", pool.Storage, "error", err)
			continue
		}
		t, _ := status.Total.Uint64()
		u, _ := status.Used.Uint64()
		total += t
		used += u
	}
	return total, used, nil
}

// collectVMs fetches config (and live status for running guests) through a
// worker pool bounded by fetch.max_concurrent, then normalizes. Results are
// written by index so the gateway's listing order is preserved.
func (r *Runner) collectVMs(ctx context.Context, gw Gateway, fcfg fetch.Config, host, nodeName string, rawVMs []proxmox.RawVM) ([]model.VM, error) {
	vms := make([]model.VM, len(rawVMs))
	workers := r.cfg.Fetch.MaxConcurrent
	if workers <= 0 {
		workers = 4
	}
	sem := semaphore.NewWeighted(int64(workers))

	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range rawVMs {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			vmid, _ := raw.VMID.Uint64()
			cfg, err := fetch.Do(ctx, r.logger, fcfg, host, fmt.Sprintf("vm config %d", vmid), func(ctx context.Context) (proxmox.RawVMConfig, error) {
				return gw.VMConfig(ctx, nodeName, vmid)
			})
			if err != nil {
				return err
			}

			var status *proxmox.RawVMStatus
			if raw.Status == string(model.StateRunning) {
				st, err := fetch.Do(ctx, r.logger, fcfg, host, fmt.Sprintf("vm status %d", vmid), func(ctx context.Context) (proxmox.RawVMStatus, error) {
					return gw.VMStatus(ctx, nodeName, vmid)
				})
				if err != nil {
					// Live data stays unknown; the guest record survives.
					r.logger.Warn("vm status unavailable", "server", host, "node", nodeName, "vmid", vmid, "error", err)
				} else {
					status = &st
				}
			}

			vms[i] = normalize.VM(r.logger, host, nodeName, raw, cfg, status)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vms, nil
}

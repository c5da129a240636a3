// Package serve wires the daemon's cobra command: load config, build
// the driver clients, bind the three engines to a shared store.Gateway
// and rpc.Hub, and run until interrupted.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/riddopic/distcloud/internal/appconfig"
	"github.com/riddopic/distcloud/internal/audit"
	"github.com/riddopic/distcloud/internal/driver"
	"github.com/riddopic/distcloud/internal/lock"
	"github.com/riddopic/distcloud/internal/model"
	"github.com/riddopic/distcloud/internal/orchestrator"
	"github.com/riddopic/distcloud/internal/rpc"
	"github.com/riddopic/distcloud/internal/store"
	"github.com/riddopic/distcloud/internal/syncengine"
	"github.com/riddopic/distcloud/pkg/logging"
)

const component = "dcorchestratord"

// workerScanInterval bounds how often the daemon reconciles sync engine
// workers against the current subcloud/endpoint set.
const workerScanInterval = 30 * time.Second

// Command returns the root cobra command.
func Command() *cobra.Command {
	var configPath string
	var endpointDomain string

	cmd := &cobra.Command{
		Use:   "dcorchestratord",
		Short: "Distributed cloud subcloud lifecycle control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, endpointDomain)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (optional; defaults apply)")
	cmd.Flags().StringVar(&endpointDomain, "endpoint-domain", "distcloud.local", "domain suffix used to derive per-region service base URLs")
	return cmd
}

func run(ctx context.Context, configPath, endpointDomain string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway := store.NewMemory()
	hub := rpc.NewHub()

	httpClient := driver.NewHTTPClient(cfg.Driver.SessionTimeout, cfg.Driver.RetryMax)
	baseURL := func(service string) func(region string) string {
		return func(region string) string {
			return fmt.Sprintf("https://%s.%s.%s", service, region, endpointDomain)
		}
	}

	identity := driver.NewIdentityHTTPClient(httpClient, baseURL("identity"))
	sysinv := driver.NewSysinvHTTPClient(httpClient, baseURL("sysinv"), identity)
	patching := driver.NewPatchingHTTPClient(httpClient, baseURL("patching"), identity)
	vim := driver.NewVimHTTPClient(httpClient, baseURL("vim"), identity)
	fm := driver.NewFmHTTPClient(httpClient, baseURL("fm"), identity)
	firmware := driver.NewFirmwareHTTPClient(httpClient, baseURL("firmware"), identity)
	rootca := driver.NewKubeRootCAHTTPClient(httpClient, baseURL("kube-rootca"), identity)
	identityResources := driver.NewIdentityResourceHTTPClient(httpClient, baseURL("identity"), identity)

	auditEngine := audit.New(gateway, sysinv, patching, fm, firmware, rootca, cfg.Audit)
	auditEngine.Hub = hub

	registry := syncengine.NewIdentityRegistry(identityResources)
	syncEngine := syncengine.New(gateway, registry, lock.NewLocal(), cfg.Sync)
	syncEngine.Hub = hub

	orchestrators := buildOrchestrators(gateway, sysinv, patching, vim, firmware, rootca, cfg.Orchestrator, hub)

	go runAuditLoop(ctx, auditEngine, cfg.Audit)
	for _, eng := range orchestrators {
		go eng.Run(ctx)
	}
	go monitorSubcloudWorkers(ctx, gateway, syncEngine)

	logging.Info(component, "dcorchestratord started")
	<-ctx.Done()
	logging.Info(component, "dcorchestratord shutting down")
	return nil
}

func buildOrchestrators(gateway store.Gateway, sysinv driver.SysinvClient, patching driver.PatchingClient, vim driver.VimClient, firmware driver.FirmwareClient, rootca driver.KubeRootCAClient, cfg appconfig.OrchestratorConfig, hub *rpc.Hub) []*orchestrator.Engine {
	deps := &orchestrator.Deps{
		Gateway:  gateway,
		Sysinv:   sysinv,
		Patching: patching,
		Vim:      vim,
		Firmware: firmware,
		RootCA:   rootca,
		Cfg:      cfg,
		Hub:      hub,
	}

	executors := []orchestrator.StepExecutor{
		orchestrator.PatchExecutor{},
		orchestrator.UpgradeExecutor{},
		orchestrator.KubernetesExecutor{},
		orchestrator.FirmwareExecutor{},
		orchestrator.KubeRootCAExecutor{},
	}

	strategyLock := lock.NewLocal()
	engines := make([]*orchestrator.Engine, 0, len(executors))
	for _, exec := range executors {
		engines = append(engines, orchestrator.New(gateway, deps, exec, strategyLock))
	}
	return engines
}

func runAuditLoop(ctx context.Context, eng *audit.Engine, cfg appconfig.AuditConfig) {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.RunOnce(ctx); err != nil {
				logging.Warn(component, "audit pass failed: %v", err)
			}
		}
	}
}

// monitorSubcloudWorkers keeps the sync engine's per-(subcloud, endpoint)
// workers in step with ListEndpointStatus, launching a worker for every
// managed, initial-sync-completed endpoint and tearing down any whose
// subcloud is no longer managed or has not completed initial sync.
func monitorSubcloudWorkers(ctx context.Context, gateway store.Gateway, eng *syncengine.Engine) {
	ticker := time.NewTicker(workerScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scanSubcloudWorkers(ctx, gateway, eng)
		}
	}
}

func scanSubcloudWorkers(ctx context.Context, gateway store.Gateway, eng *syncengine.Engine) {
	subclouds, err := gateway.ListSubclouds(ctx)
	if err != nil {
		logging.Warn(component, "list subclouds for worker scan failed: %v", err)
		return
	}
	for _, sc := range subclouds {
		statuses, err := gateway.ListEndpointStatus(ctx, sc.ID)
		if err != nil {
			logging.Warn(component, "list endpoint status for subcloud %d failed: %v", sc.ID, err)
			continue
		}
		for _, st := range statuses {
			if sc.Management == model.ManagementManaged && sc.InitialSyncState == model.InitialSyncCompleted {
				eng.EnsureWorker(ctx, sc, st.Endpoint)
			} else {
				eng.TeardownWorker(sc.ID, st.Endpoint)
			}
		}
	}
}

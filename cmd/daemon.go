package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/config"
	"github.com/harismuzaffer/antfleet/internal/daemonmetrics"
	"github.com/harismuzaffer/antfleet/internal/maintain"
	"github.com/harismuzaffer/antfleet/internal/registry"
	"github.com/harismuzaffer/antfleet/pkg/logging"
)

var (
	daemonListen      string
	daemonTargetCount int
	daemonInterval    time.Duration
	daemonServiceUser string
	daemonVersion     string
	daemonNoNAT       bool
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon run",
		Short: "Run the fleet manager as a long-lived process, maintaining the target count and serving /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings()
			reg, err := registry.Load(settings.RegistryPath)
			if err != nil {
				return err
			}

			metrics := daemonmetrics.New()
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			server := &http.Server{Addr: daemonListen, Handler: mux}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logging.Error("daemon", err, "metrics server stopped")
				}
			}()

			runMaintainLoop(ctx, reg, metrics, settings)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&daemonListen, "listen", ":9090", "address the /metrics endpoint listens on")
	cmd.Flags().IntVar(&daemonTargetCount, "target-count", 0, "desired number of running nodes, re-asserted every interval")
	cmd.Flags().DurationVar(&daemonInterval, "interval", time.Minute, "how often to run a maintenance pass")
	cmd.Flags().StringVar(&daemonServiceUser, "user", "", "OS user to own newly provisioned service directories")
	cmd.Flags().StringVar(&daemonVersion, "version", "", "node binary version to fetch when provisioning is needed")
	cmd.Flags().BoolVar(&daemonNoNAT, "no-nat-detection", false, "skip the opportunistic NAT-reachability probe on first start")
	return cmd
}

// runMaintainLoop re-asserts the target running count on a fixed
// interval until ctx is cancelled, recording the outcome of each pass on
// metrics. It is the daemon-mode counterpart to the one-shot `maintain`
// command: the same Maintenance Controller, driven on a timer instead of
// a single dispatcher task.
func runMaintainLoop(ctx context.Context, reg *registry.Registry, metrics *daemonmetrics.Metrics, settings config.Settings) {
	engine := maintain.NewEngine()
	ctl := buildController()
	watcher := buildWatcher()
	fetcher := buildFetcher()
	prober := buildProber()

	opts := maintain.Options{
		TargetCount:     daemonTargetCount,
		RunNATDetection: settings.RunNATDetection && !daemonNoNAT,
		ServiceUser:     daemonServiceUser,
		Version:         daemonVersion,
	}

	runOnce := func() {
		start := time.Now()
		batch, err := engine.Maintain(ctx, opts, reg, ctl, watcher, fetcher, prober, settings)
		metrics.RecordMaintain(time.Since(start), len(reg.RunningNodes()), len(reg.ActiveNodes()), err != nil)
		if err != nil {
			logging.Warn("daemon", "maintain pass completed with failures: %v", err)
		}
		if batch != nil {
			for name, ferr := range batch.Failed {
				logging.Warn("daemon", "%s: %v", name, ferr)
			}
		}
	}

	runOnce()

	ticker := time.NewTicker(daemonInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

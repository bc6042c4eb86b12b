package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/centavo-app/centavo/internal/ledger/dashboard"
	"github.com/centavo-app/centavo/internal/ledger/engine"
	"github.com/centavo-app/centavo/internal/ledger/gateway"
	"github.com/centavo-app/centavo/internal/ledger/ingest"
	"github.com/centavo-app/centavo/internal/ledger/netmon"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the long-lived process that keeps local data flowing to the
backend: a connectivity prober, the debounced sync engine, the receipt
inbox watcher and (optionally) the status dashboard.

Example usage:
  centavo daemon
  centavo daemon --dashboard --dashboard-port 9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Sync.Endpoint == "" {
			return fmt.Errorf("sync is disabled; set sync.endpoint in the config")
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Connectivity.
		prober := netmon.NewProber(netmon.ProberConfig{
			URL:      cfg.Sync.ProbeURL,
			Interval: cfg.Sync.ProbeInterval,
		})

		// Optional dashboard.
		var (
			server  *dashboard.Server
			handler *dashboard.Handler
			hooks   engine.Hooks
		)
		wantDashboard, _ := cmd.Flags().GetBool("dashboard")
		if wantDashboard || cfg.Dashboard.Enabled {
			port := cfg.Dashboard.Port
			if cmd.Flags().Changed("dashboard-port") {
				port, _ = cmd.Flags().GetInt("dashboard-port")
			}
			server = dashboard.NewServer(&dashboard.Config{
				Port:   port,
				Logger: newLogger("[dashboard] "),
			})
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					newLogger("[daemon] ").Printf("Dashboard shutdown error: %v", err)
				}
			}()
			handler = dashboard.NewHandler(server, env.queue, newLogger("[dashboard] "))
			hooks = handler
			fmt.Printf("Dashboard: ws://localhost:%d/ws\n", port)
		}

		// The engine consumes the prober's event stream; the dashboard gets
		// a teed copy.
		var monitor netmon.Monitor = prober
		if handler != nil {
			monitor = teeMonitor(ctx, prober, handler.OnConnectivity)
		}

		gw := gateway.NewHTTP(cfg.Sync.Endpoint,
			gateway.WithAPIKey(cfg.Sync.APIKey),
			gateway.WithCallTimeout(cfg.Sync.CallTimeout),
		)

		eng := engine.New(env.store, env.queue, gw, monitor, &engine.Config{
			DebounceInterval: cfg.Sync.Debounce,
			BatchSize:        cfg.Sync.BatchSize,
			CallTimeout:      cfg.Sync.CallTimeout,
			Logger:           newLogger("[engine] "),
			Hooks:            hooks,
		})
		env.store.SetNotify(eng.Notify)

		prober.Start(ctx)
		defer prober.Stop()
		eng.Start(ctx)
		defer eng.Stop()

		// Receipt inbox watcher.
		if cfg.Ingest.Enabled {
			watcher, err := ingest.New(env.store, &ingest.Config{
				InboxDir:        cfg.Ingest.InboxDir,
				OwnerID:         env.user.ID,
				DefaultCategory: cfg.Ingest.DefaultCategory,
				Logger:          newLogger("[ingest] "),
			})
			if err != nil {
				return fmt.Errorf("failed to create inbox watcher: %w", err)
			}
			if err := os.MkdirAll(cfg.Ingest.InboxDir, 0755); err != nil {
				return fmt.Errorf("failed to create inbox: %w", err)
			}
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("failed to start inbox watcher: %w", err)
			}
			defer func() {
				if err := watcher.Stop(); err != nil {
					newLogger("[daemon] ").Printf("Watcher shutdown error: %v", err)
				}
			}()
			fmt.Printf("Receipt inbox: %s\n", cfg.Ingest.InboxDir)
		}

		// Anything queued while the daemon was down syncs without waiting
		// for a fresh mutation.
		eng.Notify()

		fmt.Printf("Syncing to %s for %s\n", cfg.Sync.Endpoint, env.user.Email)
		fmt.Println("Press Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		return nil
	},
}

// teeMonitor wraps a monitor so connectivity transitions also reach fn.
// The returned monitor owns the underlying event stream.
func teeMonitor(ctx context.Context, m netmon.Monitor, fn func(bool)) netmon.Monitor {
	t := &teed{inner: m, events: make(chan bool, 8)}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case online, ok := <-m.Events():
				if !ok {
					return
				}
				fn(online)
				select {
				case t.events <- online:
				default:
				}
			}
		}
	}()
	return t
}

type teed struct {
	inner  netmon.Monitor
	events chan bool
}

func (t *teed) Online() bool        { return t.inner.Online() }
func (t *teed) Events() <-chan bool { return t.events }

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "serve the status dashboard")
	daemonCmd.Flags().Int("dashboard-port", 8484, "dashboard port")

	rootCmd.AddCommand(daemonCmd)
}

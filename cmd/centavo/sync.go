package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/engine"
	"github.com/centavo-app/centavo/internal/ledger/gateway"
	"github.com/centavo-app/centavo/internal/ledger/netmon"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Drain the outbox now",
	Long: `Drain all pending outbox entries to the remote backend immediately,
bypassing the debounce. Fails fast when the device is offline.

Example usage:
  centavo sync
  centavo sync status
  centavo sync retry`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Sync.Endpoint == "" {
			return fmt.Errorf("sync is disabled; set sync.endpoint in the config")
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		// One-shot probe; the command runs a single drain, not a daemon.
		monitor := netmon.NewManual(probeOnce())

		gw := gateway.NewHTTP(cfg.Sync.Endpoint,
			gateway.WithAPIKey(cfg.Sync.APIKey),
			gateway.WithCallTimeout(cfg.Sync.CallTimeout),
		)

		eng := engine.New(env.store, env.queue, gw, monitor, &engine.Config{
			BatchSize:   cfg.Sync.BatchSize,
			CallTimeout: cfg.Sync.CallTimeout,
			Logger:      newLogger("[engine] "),
		})

		for {
			r, err := eng.SyncNow(cmd.Context())
			if err == engine.ErrOffline {
				return fmt.Errorf("device is offline; changes stay queued")
			}
			if err != nil {
				return err
			}

			fmt.Printf("Synced %d, skipped %d, failed %d\n", r.Synced, r.Skipped, r.Failed)

			summary, serr := env.queue.Summary(cmd.Context())
			if serr != nil {
				return serr
			}
			// Stop when the queue is empty or the cycle made no forward
			// progress (skips alone can repeat forever).
			if summary.Pending == 0 || (r.Synced == 0 && r.Failed == 0) {
				if summary.Failed > 0 {
					fmt.Printf("%d entries failed permanently; run 'centavo sync retry' to retry them\n", summary.Failed)
				}
				return nil
			}
		}
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync queue health",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.queue.Summary(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Pending: %d\n", summary.Pending)
		fmt.Printf("Failed:  %d\n", summary.Failed)

		if summary.Failed > 0 {
			failed, err := env.queue.ListFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println("\nFailed entries:")
			for _, e := range failed {
				fmt.Printf("  #%d %s %s record %d (attempts %d): %s\n",
					e.ID, e.Op, e.Kind, e.RecordID, e.Attempts, e.LastError)
			}
			fmt.Println("\nRun 'centavo sync retry' to retry them.")
		}
		return nil
	},
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-queue permanently failed entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.queue.RetryFailed(cmd.Context())
		if err != nil {
			return err
		}
		if err := env.store.ResetFailedSync(cmd.Context()); err != nil {
			return err
		}

		fmt.Printf("Re-queued %d entries; they will sync on the next drain\n", n)
		return nil
	},
}

// probeOnce checks connectivity with a single HEAD request.
func probeOnce() bool {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Head(cfg.Sync.ProbeURL)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func init() {
	syncCmd.AddCommand(syncStatusCmd, syncRetryCmd)
	rootCmd.AddCommand(syncCmd)
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avierra/claim-sync/internal/claims"
	"github.com/avierra/claim-sync/internal/config"
	"github.com/avierra/claim-sync/internal/control"
	"github.com/avierra/claim-sync/internal/health"
	"github.com/avierra/claim-sync/internal/logging"
	"github.com/avierra/claim-sync/internal/metrics"
	"github.com/avierra/claim-sync/internal/poller"
	"github.com/avierra/claim-sync/internal/source/soroban"
	"github.com/avierra/claim-sync/internal/storage"
)

var (
	flagOnce    bool
	flagListen  string
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Run one sync cycle and exit")
	runCmd.Flags().StringVar(&flagListen, "listen", ":8080", "Control surface HTTP address (empty to disable)")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8081)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the claim event listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			logLevel = "info"
		}
		log := logging.NewWithLevel(logLevel)

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		rpcClient, err := soroban.Dial(ctx, cfg.Listener.RPCURL)
		if err != nil {
			return fmt.Errorf("dial rpc: %w", err)
		}
		defer rpcClient.Close()

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: flagMetrics, Handler: mux}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
			log.Info("metrics enabled", "addr", flagMetrics)
		}

		rec := claims.NewReconciler(store, log)
		p := poller.New(poller.Config{
			ContractID:   cfg.Listener.ContractID,
			PollInterval: time.Duration(cfg.Listener.PollIntervalMs) * time.Millisecond,
			BatchLimit:   cfg.Listener.BatchLimit,
			StatusEvents: cfg.Listener.StatusEvents,
		}, rpcClient, store, rec, log, mtr)

		if flagOnce {
			summary := p.TriggerManualSync(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "sync complete: processed=%d errors=%d\n", summary.Processed, summary.Errors)
			if summary.Errors > 0 {
				return fmt.Errorf("sync finished with %d error(s)", summary.Errors)
			}
			return nil
		}

		if flagHealth != "" {
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:  store.Ping,
				RPCPing: rpcClient.Health,
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		if flagListen != "" {
			ctrlSrv := control.Serve(flagListen, control.NewHandler(p, store, cfg.Listener.ContractID, log))
			log.Info("control surface enabled", "addr", flagListen)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = control.Shutdown(shutdownCtx, ctrlSrv)
			}()
		}

		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("start listener: %w", err)
		}

		<-ctx.Done()
		log.Info("shutting down")
		p.Stop()
		return nil
	},
}

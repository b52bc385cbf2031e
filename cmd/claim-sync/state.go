package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avierra/claim-sync/internal/config"
	"github.com/avierra/claim-sync/internal/storage"
)

var flagStateLimit int

func init() {
	stateCmd.Flags().IntVar(&flagStateLimit, "limit", 10, "Number of recent events to show")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the ingestion cursor and recent processed events",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if !cfg.Listener.Enabled() {
			fmt.Fprintln(out, "no contract_id configured")
			return nil
		}

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		contractID := cfg.Listener.ContractID

		cursor, ok, err := store.LastCursor(ctx, contractID)
		if err != nil {
			return err
		}
		count, err := store.CountEvents(ctx, contractID)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "contract:  %s\n", contractID)
		if ok {
			fmt.Fprintf(out, "cursor:    %s\n", cursor)
		} else {
			fmt.Fprintln(out, "cursor:    (none, next run starts from latest)")
		}
		fmt.Fprintf(out, "processed: %d event(s)\n", count)

		events, err := store.RecentEvents(ctx, contractID, flagStateLimit)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			fmt.Fprintln(out, "\nrecent events:")
			for _, ev := range events {
				claim := ev.ClaimID
				if claim == "" {
					claim = "-"
				}
				fmt.Fprintf(out, "  %s  %-22s claim=%-10s ledger=%d  %s\n",
					ev.ProcessedAt.Format("2006-01-02 15:04:05"), ev.EventType, claim, ev.LedgerSequence, ev.EventID)
			}
		}
		return nil
	},
}

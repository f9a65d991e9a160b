package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/playmatatu/duel/internal/game"
)

func newEventsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail session lifecycle events",
		Long: `Subscribe to the configured events backend and print lifecycle events
as they are published:
  - session_started
  - round_resolved
  - match_completed
  - rematch_started
  - session_closed

Press Ctrl+C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus, err := openEventBus(ctx, cfg)
			if err != nil {
				return err
			}
			defer bus.close()
			if bus.subscribe == nil {
				return errors.New("EVENTS_BACKEND is none; nothing to tail")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			return bus.subscribe(ctx, func(ev game.LifecycleEvent) {
				if jsonOutput {
					enc.Encode(ev)
					return
				}
				printEvent(cmd, ev)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")
	return cmd
}

func printEvent(cmd *cobra.Command, ev game.LifecycleEvent) {
	out := cmd.OutOrStdout()
	snap := ev.Snapshot
	fmt.Fprintf(out, "[%s] %-16s %s round=%d phase=%s", ev.At.Format("15:04:05"), ev.Type, ev.SessionID, snap.Round, snap.Phase)
	for _, p := range snap.Players {
		fmt.Fprintf(out, " %s=%d", p.Identity, p.Score)
	}
	if st := ev.Settlement; st != nil {
		for _, ps := range st.Players {
			if ps.Won {
				fmt.Fprintf(out, " winner=%s", ps.Identity)
			}
		}
		fmt.Fprintf(out, " forfeit=%t", st.Forfeit)
	}
	fmt.Fprintln(out)
}

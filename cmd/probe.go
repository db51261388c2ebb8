package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pixora/internal/poller"
)

func newProbeCmd(root *rootOptions) *cobra.Command {
	var (
		attempts int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe DESCRIPTOR",
		Short: "Poll a descriptor until the image service reports it ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			opts := poller.Options{MaxAttempts: cfg.Poller.MaxAttempts, Interval: cfg.Poller.Interval}
			if attempts > 0 {
				opts.MaxAttempts = attempts
			}
			if interval > 0 {
				opts.Interval = interval
			}
			p := poller.New(poller.NewHTTPProber(cfg.Poller.RequestTimeout), opts)
			res := p.Poll(cmd.Context(), args[0], func(attempt, progress int) {
				log.Info().Int("attempt", attempt).Int("progress", progress).Msg("not ready yet")
			})
			fmt.Fprintf(cmd.OutOrStdout(), "%s after %d attempt(s)\n", res.Outcome, res.Attempts)
			if res.Outcome == poller.Cancelled {
				return cmd.Context().Err()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", 0, "Maximum attempts (overrides config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between attempts (overrides config)")
	return cmd
}

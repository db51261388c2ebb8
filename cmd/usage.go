package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pixora/internal/config"
	"pixora/internal/usage"
)

func newUsageCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect and manage the local usage ledger",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show ACCOUNT",
		Short: "Print an account's usage counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(root, func(l *usage.Ledger) error {
				rec, err := l.Check(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printRecord(cmd.OutOrStdout(), args[0], rec)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "set-plan ACCOUNT PLAN",
		Short:   "Move an account to another plan and apply its limit",
		Example: `  pixora usage set-plan ada@example.org pro`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(root, func(l *usage.Ledger) error {
				return setPlan(cmd.Context(), cmd.OutOrStdout(), l, args[0], args[1])
			})
		},
	})
	return cmd
}

func withLedger(root *rootOptions, fn func(*usage.Ledger) error) error {
	cfg, _, err := root.load()
	if err != nil {
		return err
	}
	if cfg.Usage.Mode != config.UsageLedger {
		return fmt.Errorf("usage.mode is %q, plans are only managed by the local ledger", cfg.Usage.Mode)
	}
	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()
	return fn(ledger)
}

func setPlan(ctx context.Context, out io.Writer, setter usage.PlanSetter, account, plan string) error {
	rec, err := setter.SetPlan(ctx, account, plan)
	if err != nil {
		return err
	}
	printRecord(out, account, rec)
	return nil
}

func printRecord(out io.Writer, account string, rec usage.Record) {
	fmt.Fprintf(out, "%s: plan=%s used=%d limit=%d can_upload=%t\n", account, rec.Plan, rec.Count, rec.Limit, rec.CanProceed)
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pricewatch/internal/app"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Send today's digest to every active owner now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.SendDigests(ctx)
			if err != nil {
				return fmt.Errorf("digest: %w", err)
			}
			fmt.Printf("Sent %d digest(s).\n", n)
			return nil
		})
	},
}

var (
	flagBackfillSource string
	flagBackfillOwner  int64
	flagBackfillLimit  int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Scan a channel's journaled posts against one owner's watches",
	Long: `Evaluate the most recent journaled posts of a channel against the watches
of one owner, recording and notifying new matches.

Only posts seen by a running instance are journaled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Backfill(ctx, flagBackfillSource, flagBackfillOwner, flagBackfillLimit)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			if n == 0 {
				fmt.Println("No new matches.")
			} else {
				fmt.Printf("Recorded %d new match(es).\n", n)
			}
			return nil
		})
	},
}

func init() {
	backfillCmd.Flags().StringVar(&flagBackfillSource, "source", "", "channel username or numeric id")
	backfillCmd.Flags().Int64Var(&flagBackfillOwner, "owner", 0, "owner user id")
	backfillCmd.Flags().IntVar(&flagBackfillLimit, "limit", 0, "posts to scan (default from config)")
	_ = backfillCmd.MarkFlagRequired("source")
	_ = backfillCmd.MarkFlagRequired("owner")
}

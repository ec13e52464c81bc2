package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/billing"
)

func newReplayWebhooksCmd() *cobra.Command {
	var (
		limit    int
		provider string
	)

	cmd := &cobra.Command{
		Use:   "replay-webhooks",
		Short: "Re-run unprocessed or failed billing webhook deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices()
			if err != nil {
				return fmt.Errorf("setup: %w", err)
			}
			defer svc.Close()

			pending, err := svc.store.PendingWebhookEvents(cmd.Context(), provider, limit)
			if err != nil {
				return err
			}

			var ok, superseded, failed int
			for _, event := range pending {
				outcome, err := svc.ingestor.Replay(cmd.Context(), event)
				switch {
				case err != nil:
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "event %d (%s): %v\n", event.ID, event.ProviderEventID, err)
				case outcome == billing.OutcomeSuperseded:
					superseded++
				default:
					ok++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d deliveries: %d ok, %d superseded, %d failed\n",
				len(pending), ok, superseded, failed)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of deliveries to replay")
	cmd.Flags().StringVar(&provider, "provider", models.BillingProviderPolar, "billing provider")
	return cmd
}

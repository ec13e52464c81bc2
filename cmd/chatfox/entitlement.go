package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newEntitlementCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entitlement <user-id>",
		Short: "Print a user's pro entitlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || userID == 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			svc, err := newServices()
			if err != nil {
				return fmt.Errorf("setup: %w", err)
			}
			defer svc.Close()

			ctx, cancel := detached(30 * time.Second)
			defer cancel()

			uid := uint(userID)
			decision := svc.resolver.Classify(ctx, uid)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user:     %d\n", uid)
			fmt.Fprintf(out, "entitled: %t\n", svc.resolver.IsEntitled(ctx, uid))
			fmt.Fprintf(out, "plan:     %s\n", decision.Plan())
			fmt.Fprintf(out, "status:   %s\n", decision.Status)
			if decision.Trial != nil && decision.Trial.InTrial {
				fmt.Fprintf(out, "trial:    %d days left\n", decision.Trial.DaysLeft)
			}
			return nil
		},
	}
}

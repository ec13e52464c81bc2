package main

import (
	"os"

	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatfox",
		Short:         "ChatFox subscription and entitlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newReplayWebhooksCmd(), newEntitlementCmd())
	return root
}

package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fisbap/pkg/core"
)

func newSearchCmd() *cobra.Command {
	var transactionID string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Broadcast a catalog search to the network",
		Long:  `Sends a search through the gateway. Sellers answer asynchronously on /on_search; run "fisbap serve" to receive them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			container := core.GetContainer()
			if err := container.Initialize(); err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			defer func() { _ = container.Shutdown() }()

			if transactionID == "" {
				transactionID = uuid.NewString()
			}

			env, err := container.Synth().Search(transactionID)
			if err != nil {
				return err
			}
			res, err := container.Dispatcher().Dispatch(context.Background(), env)
			if err != nil {
				return err
			}

			fmt.Printf("transaction: %s\n", transactionID)
			fmt.Printf("gateway status: %d\n", res.StatusCode)
			return nil
		},
	}

	cmd.Flags().StringVarP(&transactionID, "transaction", "t", "", "Reuse an existing transaction id")
	return cmd
}

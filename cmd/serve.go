package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fisbap/internal/metrics"
	"fisbap/internal/server"
	"fisbap/pkg/core"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the adapter HTTP server",
		Long:  `Serves the outbound trigger endpoints, the network callback endpoints, and the stored-message views.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			container := core.GetContainer()
			if err := container.Initialize(); err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			defer func() { _ = container.Shutdown() }()

			metrics.Register()

			srv := server.New(server.Deps{
				Config:     container.Config(),
				Synth:      container.Synth(),
				Dispatcher: container.Dispatcher(),
				Correlator: container.Correlator(),
				Ingestor:   container.Ingestor(),
				Flow:       container.Flow(),
				Store:      container.Store(),
				Catalog:    container.Catalog(),
				KYC:        container.KYC(),
			})
			return srv.Run()
		},
	}
}

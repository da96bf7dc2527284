package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fisbap/internal/buildinfo"
)

// Execute runs the CLI
func Execute() error {
	rootCmd := &cobra.Command{
		Use:               "fisbap",
		Short:             "Buyer-side adapter for ONDC mutual fund investments",
		Long:              `Originates search/select/init/confirm exchanges on the ONDC FIS14 network, ingests seller callbacks, and keeps an auditable record of every message.`,
		DisableAutoGenTag: true,
		Version:           buildinfo.String(),
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Display the fisbap version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fisbap version %s\n", buildinfo.String())
		},
	})

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newSchemesCmd())
	rootCmd.AddCommand(newFlowCmd())

	return rootCmd.Execute()
}

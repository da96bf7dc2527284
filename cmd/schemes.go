package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fisbap/internal/ui"
	"fisbap/pkg/core"
)

func newSchemesCmd() *cobra.Command {
	var pick bool
	var isin string

	cmd := &cobra.Command{
		Use:   "schemes",
		Short: "Browse the scheme catalog built from seller answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			container := core.GetContainer()
			if err := container.Initialize(); err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			defer func() { _ = container.Shutdown() }()

			ctx := context.Background()
			catalog := container.Catalog()

			if isin != "" {
				match, err := catalog.SchemeByISIN(ctx, isin)
				if err != nil {
					return err
				}
				choice := ui.ChoiceFromMatch(match)
				fmt.Printf("%s  %s / %s\n", choice.ISIN, choice.Scheme, choice.Plan)
				fmt.Printf("provider: %s (%s)\n", choice.Provider, choice.BPPID)
				if choice.MinAmount != "" {
					fmt.Printf("min: %s  max: %s\n",
						ui.FormatAmount(choice.MinAmount), ui.FormatAmount(choice.MaxAmount))
				}
				return nil
			}

			plans, err := catalog.Plans(ctx)
			if err != nil {
				return err
			}
			if len(plans) == 0 {
				fmt.Println("Catalog is empty. Run \"fisbap search\" and wait for seller answers.")
				return nil
			}

			if pick && ui.IsInteractive() {
				choices := make([]ui.SchemeChoice, 0, len(plans))
				for i := range plans {
					match := plans[i]
					full, err := catalog.SchemeByISIN(ctx, match.Plan.ISIN)
					if err == nil {
						match = *full
					}
					choices = append(choices, ui.ChoiceFromMatch(&match))
				}
				chosen, err := ui.PickScheme(choices, ui.SchemePickerConfig{})
				if err != nil {
					return err
				}
				if chosen != nil {
					fmt.Printf("selected %s; invest with: fisbap flow --isin %s\n",
						chosen.Plan, chosen.ISIN)
				}
				return nil
			}

			for _, m := range plans {
				fmt.Printf("%-14s %s / %s (%s)\n",
					m.Plan.ISIN, m.Scheme.Name, ui.TruncateText(m.Plan.Name, 50), m.Provider.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&pick, "pick", "p", false, "Pick interactively")
	cmd.Flags().StringVar(&isin, "isin", "", "Look up one plan by ISIN")
	return cmd
}

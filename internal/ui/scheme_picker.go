package ui

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/pkg/browser"

	"fisbap/pkg/ports"
)

// SchemeChoice is one pickable catalog entry
type SchemeChoice struct {
	ISIN      string
	Scheme    string
	Plan      string
	Provider  string
	BPPID     string
	Modes     []string
	MinAmount string
	MaxAmount string
	InfoURL   string
}

// ChoiceFromMatch flattens a catalog lookup for display
func ChoiceFromMatch(m *ports.PlanMatch) SchemeChoice {
	choice := SchemeChoice{
		ISIN:     m.Plan.ISIN,
		Scheme:   m.Scheme.Name,
		Plan:     m.Plan.Name,
		Provider: m.Provider.Name,
		BPPID:    m.Provider.BPPID,
	}
	for _, f := range m.Fulfillments {
		choice.Modes = append(choice.Modes, f.Type)
		if f.AmountMin > 0 && choice.MinAmount == "" {
			choice.MinAmount = strconv.FormatFloat(f.AmountMin, 'f', -1, 64)
		}
		if f.AmountMax > 0 && choice.MaxAmount == "" {
			choice.MaxAmount = strconv.FormatFloat(f.AmountMax, 'f', -1, 64)
		}
	}
	return choice
}

// HyperlinksMode controls hyperlink behavior
type HyperlinksMode int

const (
	HyperlinksAuto HyperlinksMode = iota
	HyperlinksOn
	HyperlinksOff
)

// SchemePickerConfig configures the interactive picker
type SchemePickerConfig struct {
	HyperlinksMode HyperlinksMode
}

// PickScheme runs an interactive scheme picker and returns the choice the
// investor settled on, or nil when they quit.
func PickScheme(choices []SchemeChoice, cfg SchemePickerConfig) (*SchemeChoice, error) {
	if len(choices) == 0 {
		fmt.Println("No schemes in the catalog yet. Run a search first.")
		return nil, nil
	}

	for {
		choice, err := selectScheme(choices)
		if err != nil {
			if err == promptui.ErrEOF || err == promptui.ErrInterrupt {
				return nil, nil
			}
			return nil, err
		}

		printScheme(*choice, cfg)

		action, err := selectAction(choice.InfoURL != "")
		if err != nil {
			if err == promptui.ErrEOF || err == promptui.ErrInterrupt {
				return nil, nil
			}
			return nil, err
		}

		switch action {
		case "Invest in this plan":
			return choice, nil
		case "Open scheme information":
			if err := browser.OpenURL(choice.InfoURL); err != nil {
				fmt.Printf("Error opening browser: %v\n", err)
			}
		case "Quit":
			return nil, nil
		}
		// Loop continues for "Back to list"
	}
}

// OpenFormURL hands a seller KYC form to the investor's browser. Falls back
// to printing the URL when no browser is reachable.
func OpenFormURL(url string) {
	if url == "" {
		return
	}
	if !IsInteractive() {
		fmt.Printf("Complete the KYC form at: %s\n", url)
		return
	}
	if err := browser.OpenURL(url); err != nil {
		fmt.Printf("Complete the KYC form at: %s\n", url)
	}
}

func selectScheme(choices []SchemeChoice) (*SchemeChoice, error) {
	items := make([]string, len(choices))
	for i, c := range choices {
		plan := c.Plan
		if len(plan) > 60 {
			plan = plan[:57] + "..."
		}
		items[i] = fmt.Sprintf("[%d] %s - %s (%s)", i+1, c.ISIN, plan, c.Provider)
	}

	prompt := promptui.Select{
		Label:             "Select a scheme",
		Items:             items,
		Size:              min(12, len(choices)),
		StartInSearchMode: true,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}?",
			Active:   `{{ "✔" | cyan }} {{ . | cyan }}`,
			Inactive: `  {{ . }}`,
			Selected: `{{ "✔" | green }} {{ . | green }}`,
		},
	}

	index, _, err := prompt.Run()
	if err != nil {
		return nil, err
	}
	return &choices[index], nil
}

func printScheme(c SchemeChoice, cfg SchemePickerConfig) {
	fmt.Printf("\n[scheme]\n")

	if c.InfoURL != "" && shouldEnableHyperlinks(cfg.HyperlinksMode) {
		fmt.Printf("isin: %s\n", CreateHyperlink(c.InfoURL, c.ISIN))
	} else {
		fmt.Printf("isin: %s\n", c.ISIN)
	}
	fmt.Printf("scheme: %s\n", c.Scheme)
	fmt.Printf("plan: %s\n", c.Plan)
	fmt.Printf("provider: %s (%s)\n", c.Provider, c.BPPID)
	if len(c.Modes) > 0 {
		fmt.Printf("modes: %s\n", strings.Join(c.Modes, ", "))
	}
	if c.MinAmount != "" {
		fmt.Printf("min amount: %s\n", c.MinAmount)
	}
	if c.MaxAmount != "" {
		fmt.Printf("max amount: %s\n", c.MaxAmount)
	}
	fmt.Println()
}

func shouldEnableHyperlinks(mode HyperlinksMode) bool {
	switch mode {
	case HyperlinksOn:
		return true
	case HyperlinksOff:
		return false
	case HyperlinksAuto:
		if os.Getenv("TERM") == "dumb" {
			return false
		}
		if os.Getenv("CI") != "" {
			return false
		}
		return true
	default:
		return false
	}
}

func selectAction(hasInfoURL bool) (string, error) {
	actions := []string{
		"Invest in this plan",
		"Back to list",
		"Quit",
	}
	if hasInfoURL {
		actions = append([]string{"Open scheme information"}, actions...)
	}

	prompt := promptui.Select{
		Label: "Select action",
		Items: actions,
		Size:  len(actions),
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}?",
			Active:   `{{ "✔" | cyan }} {{ . | cyan }}`,
			Inactive: `  {{ . }}`,
			Selected: `{{ "✔" | green }} {{ . | green }}`,
		},
	}

	_, action, err := prompt.Run()
	return action, err
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fisbap/internal/correlate"
	"fisbap/internal/errors"
	"fisbap/internal/orchestrate"
	"fisbap/internal/payload"
	"fisbap/internal/synth"
	"fisbap/internal/ui"
	"fisbap/pkg/core"
	"fisbap/pkg/ports"
)

func newFlowCmd() *cobra.Command {
	var (
		flowName    string
		isin        string
		providerID  string
		amount      string
		pan         string
		phone       string
		folio       string
		cadence     string
		repeat      int
		day         int
		paymentMode string
		bankCode    string
		bankAccount string
		accountName string
		ipAddress   string
		formFields  map[string]string
	)

	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Run a complete investment flow end to end",
		Long:  `Drives search, select, init, and confirm in one shot, waiting on each seller callback. The adapter server must be receiving callbacks for the polling to see them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := synth.ParseFlowKind(flowName)
			if err != nil {
				return err
			}

			container := core.GetContainer()
			if err := container.Initialize(); err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			defer func() { _ = container.Shutdown() }()

			ctx := context.Background()

			itemID := ""
			if isin != "" {
				match, err := container.Catalog().SchemeByISIN(ctx, isin)
				if err != nil {
					return err
				}
				itemID = match.Plan.ID
				if providerID == "" {
					providerID = match.Provider.ID
				}
				fmt.Printf("investing in %s (%s)\n", match.Plan.Name, match.Provider.Name)
			}

			txn := uuid.NewString()
			fmt.Printf("transaction: %s\n", txn)

			result, err := container.Flow().Complete(ctx, orchestrate.FlowRequest{
				TransactionID: txn,
				Kind:          kind,
				ProviderID:    providerID,
				ItemID:        itemID,
				Amount:        amount,
				PAN:           pan,
				Phone:         phone,
				Folio:         folio,
				Cadence:       cadence,
				Repeat:        repeat,
				Day:           day,
				PaymentMode:   paymentMode,
				BankCode:      bankCode,
				BankAccount:   bankAccount,
				AccountName:   accountName,
				IPAddress:     ipAddress,
				FormFields:    formFields,
			})
			if result != nil && len(result.Steps) > 0 {
				fmt.Println("steps:")
				ui.PrintSteps(result.Steps)
			}
			if err != nil {
				// A timeout after select usually means the seller is waiting
				// on the KYC form. Hand it to the investor's browser.
				if errors.Is(err, errors.ErrorTypeTimeout) {
					if url := pendingFormURL(ctx, container.Correlator(), txn); url != "" {
						ui.OpenFormURL(url)
					}
				}
				return err
			}

			fmt.Printf("order: %s\n", result.OrderID)
			if result.ConfirmedAt != "" {
				fmt.Printf("confirmed at: %s\n", result.ConfirmedAt)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flowName, "flow", "f", "", "Flow kind: sip_new_folio, sip_existing_folio, lumpsum_new_folio, lumpsum_existing_folio, redemption, payment_retry")
	cmd.Flags().StringVar(&isin, "isin", "", "ISIN of the plan to invest in")
	cmd.Flags().StringVar(&providerID, "provider", "", "Provider id when the catalog lists several AMCs")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Investment amount in INR")
	cmd.Flags().StringVar(&pan, "pan", "", "Investor PAN")
	cmd.Flags().StringVar(&phone, "phone", "", "Investor phone number")
	cmd.Flags().StringVar(&folio, "folio", "", "Existing folio number")
	cmd.Flags().StringVar(&cadence, "frequency", "", "SIP cadence: DAILY, WEEKLY, MONTHLY, QUARTERLY, YEARLY")
	cmd.Flags().IntVar(&repeat, "repeat", 0, "SIP installment count")
	cmd.Flags().IntVar(&day, "day", 0, "SIP debit day of month")
	cmd.Flags().StringVar(&paymentMode, "payment-mode", "", "Payment mode, e.g. MANDATE_REGISTRATION, NETBANKING, UPI_ON_DELIVERY")
	cmd.Flags().StringVar(&bankCode, "bank-code", "", "Source bank IFSC")
	cmd.Flags().StringVar(&bankAccount, "bank-account", "", "Source bank account number")
	cmd.Flags().StringVar(&accountName, "account-name", "", "Source bank account holder name")
	cmd.Flags().StringVar(&ipAddress, "ip", "", "Investor IP address")
	cmd.Flags().StringToStringVar(&formFields, "form-field", nil, "KYC form field as key=value, repeatable")
	_ = cmd.MarkFlagRequired("flow")

	return cmd
}

// pendingFormURL finds an unanswered KYC form on the transaction's latest
// on_select, if any.
func pendingFormURL(ctx context.Context, correlator *correlate.Correlator, txn string) string {
	rec, err := correlator.Callback(ctx, ports.StageOnSelect, txn, "")
	if err != nil {
		return ""
	}
	doc, err := payload.Parse(string(rec.Stage), rec.Payload)
	if err != nil {
		return ""
	}
	return doc.StringOr("message.order.xinput.form.url", "")
}

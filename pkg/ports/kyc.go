package ports

import "context"

// FormSubmission is the vendor's receipt for a posted form
type FormSubmission struct {
	SubmissionID string
	FormID       string
}

// KYCPort posts investor data to externally-hosted xinput forms and returns
// the submission id the seller expects back on the follow-up select.
type KYCPort interface {
	// SubmitForm posts fields to the form at url
	SubmitForm(ctx context.Context, url string, fields map[string]string) (*FormSubmission, error)

	// FetchForm retrieves the raw form document at url
	FetchForm(ctx context.Context, url string) ([]byte, error)
}

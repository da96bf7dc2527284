package protocol

// Typed message bodies for the outbound payloads this adapter synthesizes.
// Struct field order mirrors the network's canonical payload examples; with
// every send the marshaled bytes are signed, so the order is deliberate.

// Descriptor names a tag or tag entry
type Descriptor struct {
	Name string `json:"name,omitempty"`
	Code string `json:"code"`
}

// TagEntry is one value inside a tag list
type TagEntry struct {
	Descriptor Descriptor `json:"descriptor"`
	Value      string     `json:"value"`
}

// Tag is a named list of display values
type Tag struct {
	Display    *bool      `json:"display,omitempty"`
	Descriptor Descriptor `json:"descriptor"`
	List       []TagEntry `json:"list"`
}

// Cred is a credential reference (ARN, FOLIO, IP_ADDRESS, ...)
type Cred struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Person identifies an individual, optionally with credentials
type Person struct {
	ID    string `json:"id,omitempty"`
	Creds []Cred `json:"creds,omitempty"`
}

// Contact carries customer contact details
type Contact struct {
	Phone string `json:"phone,omitempty"`
}

// Customer is the investing party on a fulfillment
type Customer struct {
	Person  Person   `json:"person"`
	Contact *Contact `json:"contact,omitempty"`
}

// Organization holds the distributor's registration credentials
type Organization struct {
	Creds []Cred `json:"creds"`
}

// Agent is the distributor acting for the customer
type Agent struct {
	Person       *Person       `json:"person,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
}

// Schedule carries the recurring-investment frequency string
type Schedule struct {
	Frequency string `json:"frequency"`
}

// StopTime wraps a schedule
type StopTime struct {
	Schedule Schedule `json:"schedule"`
}

// Stop is one leg of a fulfillment timeline
type Stop struct {
	Time StopTime `json:"time"`
}

// Measure is an amount with a unit
type Measure struct {
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// Selected wraps the chosen measure
type Selected struct {
	Measure Measure `json:"measure"`
}

// Quantity is the invested amount on an item
type Quantity struct {
	Selected Selected `json:"selected"`
}

// Item is a scheme plan being ordered
type Item struct {
	ID             string    `json:"id"`
	Quantity       *Quantity `json:"quantity,omitempty"`
	FulfillmentIDs []string  `json:"fulfillment_ids,omitempty"`
	PaymentIDs     []string  `json:"payment_ids,omitempty"`
}

// Fulfillment describes one way the order executes (SIP, LUMPSUM, ...)
type Fulfillment struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Customer *Customer `json:"customer,omitempty"`
	Agent    *Agent    `json:"agent,omitempty"`
	Stops    []Stop    `json:"stops,omitempty"`
}

// PaymentParams carries the bank instrument details. These are financial
// fields: synthesis never defaults them silently.
type PaymentParams struct {
	Amount                  string `json:"amount"`
	Currency                string `json:"currency"`
	SourceBankCode          string `json:"source_bank_code,omitempty"`
	SourceBankAccountNumber string `json:"source_bank_account_number,omitempty"`
	SourceBankAccountName   string `json:"source_bank_account_name,omitempty"`
	TransactionID           string `json:"transaction_id,omitempty"`
}

// Payment is one payment block on an order
type Payment struct {
	ID          string         `json:"id,omitempty"`
	CollectedBy string         `json:"collected_by"`
	Status      string         `json:"status,omitempty"`
	Params      *PaymentParams `json:"params,omitempty"`
	Type        string         `json:"type"`
	Tags        []Tag          `json:"tags,omitempty"`
}

// ProviderRef references the seller-side asset-management company
type ProviderRef struct {
	ID string `json:"id"`
}

// FormRef references an extended-input form by id
type FormRef struct {
	ID string `json:"id"`
}

// FormResponse carries the vendor-issued submission id back to the seller
type FormResponse struct {
	SubmissionID string `json:"submission_id"`
}

// XInput bridges an externally-hosted form flow into the order
type XInput struct {
	Form         FormRef       `json:"form"`
	FormResponse *FormResponse `json:"form_response,omitempty"`
}

// Order is the shared body for select/init/confirm messages
type Order struct {
	ID           string        `json:"id,omitempty"`
	Provider     ProviderRef   `json:"provider"`
	Items        []Item        `json:"items"`
	Fulfillments []Fulfillment `json:"fulfillments"`
	Payments     []Payment     `json:"payments,omitempty"`
	XInput       *XInput       `json:"xinput,omitempty"`
	Tags         []Tag         `json:"tags,omitempty"`
}

// OrderMessage wraps an order
type OrderMessage struct {
	Order Order `json:"order"`
}

// IntentCategory filters the search broadcast by category
type IntentCategory struct {
	Descriptor Descriptor `json:"descriptor"`
}

// IntentFulfillment carries the distributor credentials on a search
type IntentFulfillment struct {
	Agent Agent `json:"agent"`
}

// Intent is the search broadcast body
type Intent struct {
	Category    IntentCategory    `json:"category"`
	Fulfillment IntentFulfillment `json:"fulfillment"`
	Tags        []Tag             `json:"tags"`
}

// IntentMessage wraps a search intent
type IntentMessage struct {
	Intent Intent `json:"intent"`
}

// StatusMessage asks for the current state of an order
type StatusMessage struct {
	OrderID string `json:"order_id"`
}

// CancelMessage requests cancellation of an order
type CancelMessage struct {
	OrderID              string `json:"order_id"`
	CancellationReasonID string `json:"cancellation_reason_id"`
	Tags                 []Tag  `json:"tags"`
}

// UpdateMessage retargets one slice of an order; UpdateTarget names it
type UpdateMessage struct {
	UpdateTarget string `json:"update_target"`
	Order        Order  `json:"order"`
}

// AckStatus is "ACK" or "NACK"
type AckStatus struct {
	Status string `json:"status"`
}

// Ack is the acknowledgement body returned for every inbound callback
type Ack struct {
	Ack AckStatus `json:"ack"`
}

// AckResponse is the full acknowledgement envelope
type AckResponse struct {
	Message Ack `json:"message"`
}

// NewAck builds an ACK/NACK response
func NewAck(ok bool) AckResponse {
	status := "NACK"
	if ok {
		status = "ACK"
	}
	return AckResponse{Message: Ack{Ack: AckStatus{Status: status}}}
}

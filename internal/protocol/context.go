package protocol

import (
	"fmt"
	"time"
)

// Protocol constants shared by every outbound envelope.
const (
	Domain      = "ONDC:FIS14"
	Version     = "2.0.0"
	CountryCode = "IND"
	CityCode    = "*"
	TTL         = "PT10M"
)

// Actions this adapter originates.
const (
	ActionSearch  = "search"
	ActionSelect  = "select"
	ActionInit    = "init"
	ActionConfirm = "confirm"
	ActionStatus  = "status"
	ActionUpdate  = "update"
	ActionCancel  = "cancel"
)

// Callback actions the network delivers back.
const (
	ActionOnSearch  = "on_search"
	ActionOnSelect  = "on_select"
	ActionOnInit    = "on_init"
	ActionOnConfirm = "on_confirm"
	ActionOnStatus  = "on_status"
	ActionOnUpdate  = "on_update"
	ActionOnCancel  = "on_cancel"
)

// validActions is the allowlist of protocol verbs. Prevents silent failures
// from typos like "on_sreach".
var validActions = map[string]bool{
	ActionSearch:    true,
	ActionSelect:    true,
	ActionInit:      true,
	ActionConfirm:   true,
	ActionStatus:    true,
	ActionUpdate:    true,
	ActionCancel:    true,
	ActionOnSearch:  true,
	ActionOnSelect:  true,
	ActionOnInit:    true,
	ActionOnConfirm: true,
	ActionOnStatus:  true,
	ActionOnUpdate:  true,
	ActionOnCancel:  true,
}

// ValidAction reports whether action is a known protocol verb.
func ValidAction(action string) bool {
	return validActions[action]
}

// CodeHolder wraps a bare code value
type CodeHolder struct {
	Code string `json:"code"`
}

// Location carries the fixed country/city codes
type Location struct {
	Country CodeHolder `json:"country"`
	City    CodeHolder `json:"city"`
}

// Context is the protocol metadata envelope carried by every message.
// transaction_id identifies the conversation; message_id identifies this
// message within it. Field order is part of the signed byte stream.
type Context struct {
	Location      Location `json:"location"`
	Domain        string   `json:"domain"`
	Timestamp     string   `json:"timestamp"`
	BapID         string   `json:"bap_id"`
	BapURI        string   `json:"bap_uri"`
	TransactionID string   `json:"transaction_id"`
	MessageID     string   `json:"message_id"`
	Version       string   `json:"version"`
	TTL           string   `json:"ttl"`
	BppID         string   `json:"bpp_id,omitempty"`
	BppURI        string   `json:"bpp_uri,omitempty"`
	Action        string   `json:"action"`
}

// Envelope is a full outbound protocol message.
type Envelope struct {
	Context Context `json:"context"`
	Message any     `json:"message"`
}

// Timestamp renders t in the wire format: ISO-8601 at millisecond
// precision with a "Z" suffix.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseTimestamp parses a callback timestamp. Accepts RFC 3339 with or
// without sub-second precision.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

package core

import "encoding/json"

// PayloadState is the lifecycle state of an out-of-band sign request
type PayloadState string

const (
	PayloadCreated PayloadState = "created"
	PayloadPending PayloadState = "pending"
	PayloadSigned  PayloadState = "signed"
	PayloadExpired PayloadState = "expired"
)

// PayloadStatus tracks one sign request for a single authentication attempt
type PayloadStatus struct {
	ID         string       `json:"id"`
	ChannelURL string       `json:"channelURL"`
	State      PayloadState `json:"state"`
}

// PayloadMeta is the state block of a payload document
type PayloadMeta struct {
	Exists    bool   `json:"exists"`
	UUID      string `json:"uuid"`
	Resolved  bool   `json:"resolved"`
	Signed    bool   `json:"signed"`
	Cancelled bool   `json:"cancelled"`
	Expired   bool   `json:"expired"`
	Pushed    bool   `json:"pushed"`
	AppOpened bool   `json:"app_opened"`
}

// PayloadResult is the signer's answer to a payload
type PayloadResult struct {
	Hex        string `json:"hex"`
	TxID       string `json:"txid"`
	ResolvedAt string `json:"resolved_at"`
	Account    string `json:"account"`
	Signer     string `json:"signer"`
}

// PayloadDetails is the full payload document as reported upstream
type PayloadDetails struct {
	Meta     PayloadMeta     `json:"meta"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Response PayloadResult   `json:"response"`
}

// State derives the lifecycle state from the payload metadata
func (d *PayloadDetails) State() PayloadState {
	switch {
	case d.Meta.Signed:
		return PayloadSigned
	case d.Meta.Expired || d.Meta.Cancelled:
		return PayloadExpired
	case d.Meta.AppOpened || d.Meta.Pushed:
		return PayloadPending
	default:
		return PayloadCreated
	}
}

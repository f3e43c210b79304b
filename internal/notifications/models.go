package notifications

import (
	"time"
)

// Delivery channels, used as observer and metric labels.
const (
	ChannelEmail     = "email"
	ChannelSNS       = "sns"
	ChannelWebSocket = "websocket"
)

// Delivery statuses
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// EmailDelivery represents an email delivery request
type EmailDelivery struct {
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	HTMLBody    string       `json:"html_body,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents an email attachment
type Attachment struct {
	Name        string `json:"name"`
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
}

// DeliveryResult represents the result of a delivery attempt
type DeliveryResult struct {
	Channel     string    `json:"channel"`
	Status      string    `json:"status"`
	Recipient   string    `json:"recipient,omitempty"`
	ProviderID  string    `json:"provider_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

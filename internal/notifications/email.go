package notifications

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"
)

// SESAPI is the subset of the SES v2 client used for delivery.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailConfig configuration for email delivery
type EmailConfig struct {
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
}

// EmailSender delivers raw MIME messages through SES.
type EmailSender struct {
	client SESAPI
	config EmailConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewEmailSender(client SESAPI, config EmailConfig, logger *zap.Logger) *EmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailSender{
		client: client,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Send delivers one message to all recipients.
func (s *EmailSender) Send(ctx context.Context, delivery *EmailDelivery) (*DeliveryResult, error) {
	if len(delivery.To) == 0 {
		return nil, fmt.Errorf("no recipients specified")
	}
	if s.config.FromAddress == "" {
		return nil, fmt.Errorf("sender address is not configured")
	}

	s.logger.Info("Sending email",
		zap.Strings("to", delivery.To),
		zap.String("subject", delivery.Subject))

	msg := s.buildMessage(delivery)
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from()),
		Destination:      &types.Destination{ToAddresses: delivery.To},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: msg},
		},
	})
	if err != nil {
		s.logger.Error("Failed to send email",
			zap.Error(err),
			zap.Strings("to", delivery.To))
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	result := &DeliveryResult{
		Channel:     ChannelEmail,
		Status:      StatusSent,
		Recipient:   strings.Join(delivery.To, ","),
		DeliveredAt: s.now().UTC(),
	}
	if out != nil && out.MessageId != nil {
		result.ProviderID = *out.MessageId
	}

	s.logger.Info("Email sent successfully",
		zap.Strings("to", delivery.To),
		zap.String("message_id", result.ProviderID))
	return result, nil
}

func (s *EmailSender) from() string {
	if s.config.FromName == "" {
		return s.config.FromAddress
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.FromAddress)
}

// buildMessage builds a MIME message with attachments
func (s *EmailSender) buildMessage(delivery *EmailDelivery) []byte {
	var buf bytes.Buffer
	boundary := fmt.Sprintf("----=_Part_%d", s.now().UnixNano())

	fmt.Fprintf(&buf, "From: %s\r\n", s.from())
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(delivery.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", delivery.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(delivery.Attachments) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(delivery.Body)
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(delivery.Body)
	buf.WriteString("\r\n")

	for _, attachment := range delivery.Attachments {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: %s; name=\"%s\"\r\n", attachment.ContentType, attachment.Name)
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=\"%s\"\r\n\r\n", attachment.Name)
		writeBase64Lines(&buf, attachment.Data)
	}

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}

// writeBase64Lines wraps encoded data at 76 columns.
func writeBase64Lines(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
}

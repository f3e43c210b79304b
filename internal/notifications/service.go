package notifications

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"reforest-portal/portal-backend/internal/funding"
)

// ReceiptRenderer produces the PDF receipt attached to thank-you emails.
type ReceiptRenderer interface {
	DonationReceipt(notice funding.DonationNotice) ([]byte, error)
}

// Mailer delivers an email. Implemented by EmailSender.
type Mailer interface {
	Send(ctx context.Context, delivery *EmailDelivery) (*DeliveryResult, error)
}

// DonorService sends donation thank-you emails with the receipt attached.
type DonorService struct {
	mailer   Mailer
	receipts ReceiptRenderer
	logger   *zap.Logger
}

// NewDonorService creates a new donor notification service
func NewDonorService(mailer Mailer, receipts ReceiptRenderer, logger *zap.Logger) *DonorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DonorService{mailer: mailer, receipts: receipts, logger: logger}
}

// SendThankYou implements funding.DonorNotifier.
func (s *DonorService) SendThankYou(ctx context.Context, notice funding.DonationNotice) error {
	if notice.DonorEmail == "" {
		return nil
	}

	delivery := &EmailDelivery{
		To:      []string{notice.DonorEmail},
		Subject: thankYouSubject(notice),
		Body:    thankYouBody(notice),
	}

	if s.receipts != nil {
		pdf, err := s.receipts.DonationReceipt(notice)
		if err != nil {
			// The email still goes out without the attachment.
			s.logger.Warn("Failed to render donation receipt",
				zap.String("donation_id", notice.DonationID.String()),
				zap.Error(err))
		} else {
			delivery.Attachments = append(delivery.Attachments, Attachment{
				Name:        fmt.Sprintf("receipt-%s.pdf", notice.ReceiptNumber),
				Data:        pdf,
				ContentType: "application/pdf",
			})
		}
	}

	if _, err := s.mailer.Send(ctx, delivery); err != nil {
		return fmt.Errorf("failed to send thank-you for donation %s: %w", notice.DonationID, err)
	}
	return nil
}

func thankYouSubject(notice funding.DonationNotice) string {
	if notice.ProjectName == "" {
		return "Thank you for your donation"
	}
	return fmt.Sprintf("Thank you for supporting %s", notice.ProjectName)
}

func thankYouBody(notice funding.DonationNotice) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Dear %s,\n\n", notice.DonorName)
	fmt.Fprintf(&b, "Thank you for your donation of %s", notice.Amount.StringFixed(2))
	if notice.ProjectName != "" {
		fmt.Fprintf(&b, " to %s", notice.ProjectName)
	}
	b.WriteString(".\n\n")
	if notice.IsRecurring {
		b.WriteString("Your recurring contribution keeps seedlings in the ground season after season.\n\n")
	}
	fmt.Fprintf(&b, "Receipt number: %s\n", notice.ReceiptNumber)
	fmt.Fprintf(&b, "Date: %s\n\n", notice.ReceivedAt.UTC().Format("2006-01-02"))
	b.WriteString("Your receipt is attached to this email.\n")

	return b.String()
}

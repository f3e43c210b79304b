package reports

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/internal/funding"
	"reforest-portal/portal-backend/internal/reports/export"
	"reforest-portal/portal-backend/pkg/apperrors"
)

// FundingSource is the read side of the ledger that statements are built from.
type FundingSource interface {
	GetProjectFunding(ctx context.Context, projectID uuid.UUID) (*funding.ProjectFunding, error)
	GetDonationNotice(ctx context.Context, id uuid.UUID) (*funding.DonationNotice, error)
}

// Service renders funding statements and donation receipts
type Service struct {
	source       FundingSource
	logger       *zap.Logger
	organization string
	now          func() time.Time
}

type Option func(*Service)

// WithOrganization sets the issuer name printed on receipts.
func WithOrganization(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.organization = name
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new reports service
func NewService(source FundingSource, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		source:       source,
		logger:       logger,
		organization: "Reforestation Portal",
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Statement exports the project's funding history and summary.
func (s *Service) Statement(ctx context.Context, projectID uuid.UUID, format ExportFormat) (*Document, error) {
	history, err := s.source.GetProjectFunding(ctx, projectID)
	if err != nil {
		return nil, err
	}

	generatedAt := s.now()
	var data []byte
	switch format {
	case FormatCSV:
		data, err = renderStatementCSV(history)
	case FormatXLSX:
		data, err = renderStatementXLSX(history)
	case FormatPDF:
		data, err = renderStatementPDF(history, s.organization, generatedAt)
	default:
		return nil, apperrors.New(apperrors.KindInvalidArgument, fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		s.logger.Error("Failed to render statement",
			zap.String("project_id", projectID.String()),
			zap.String("format", string(format)),
			zap.Error(err))
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "failed to render statement")
	}

	s.logger.Debug("Statement rendered",
		zap.String("project_id", projectID.String()),
		zap.String("format", string(format)),
		zap.Int("transactions", len(history.Transactions)),
		zap.Int("bytes", len(data)))

	return &Document{
		Filename:    statementFilename(history.ProjectID, generatedAt, format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// Receipt renders the PDF receipt of a recorded donation.
func (s *Service) Receipt(ctx context.Context, donationID uuid.UUID) (*Document, error) {
	notice, err := s.source.GetDonationNotice(ctx, donationID)
	if err != nil {
		return nil, err
	}

	data, err := s.DonationReceipt(*notice)
	if err != nil {
		s.logger.Error("Failed to render receipt",
			zap.String("donation_id", donationID.String()),
			zap.Error(err))
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "failed to render receipt")
	}

	return &Document{
		Filename:    ReceiptFilename(notice.ReceiptNumber),
		ContentType: contentTypePDF,
		Data:        data,
	}, nil
}

// DonationReceipt renders a one page PDF receipt. It is also attached to the
// donor thank-you email.
func (s *Service) DonationReceipt(notice funding.DonationNotice) ([]byte, error) {
	opts := export.DefaultPDFOptions()
	opts.Title = "Donation Receipt"
	opts.Subtitle = s.organization
	opts.Author = s.organization
	opts.IncludePageNum = false
	opts.FontSize = 11
	opts.GeneratedAt = notice.ReceivedAt
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = s.now()
	}

	g := export.NewPDFGenerator(opts)
	g.StartPage()

	items := []export.KeyValue{
		{Label: "Receipt Number", Value: notice.ReceiptNumber},
		{Label: "Date", Value: notice.ReceivedAt},
		{Label: "Donor", Value: notice.DonorName},
	}
	if notice.DonorEmail != "" {
		items = append(items, export.KeyValue{Label: "Email", Value: notice.DonorEmail})
	}
	items = append(items,
		export.KeyValue{Label: "Project", Value: notice.ProjectName},
		export.KeyValue{Label: "Amount", Value: notice.Amount.StringFixed(2)},
	)
	if notice.CampaignID != nil {
		items = append(items, export.KeyValue{Label: "Campaign", Value: notice.CampaignID.String()})
	}
	if notice.IsRecurring {
		items = append(items, export.KeyValue{Label: "Recurring", Value: "Yes"})
	}
	items = append(items, export.KeyValue{Label: "Donation ID", Value: notice.DonationID.String()})

	g.AddSummarySection("Donation Details", items)
	g.AddParagraph(fmt.Sprintf(
		"Thank you for supporting %s. This receipt confirms that %s received your donation.",
		projectLabel(notice.ProjectName), s.organization))

	return g.OutputToBytes()
}

// ReceiptFilename is the attachment name used for a receipt number.
func ReceiptFilename(receiptNumber string) string {
	return "receipt-" + receiptNumber + ".pdf"
}

func statementFilename(projectID uuid.UUID, at time.Time, format ExportFormat) string {
	id := strings.SplitN(projectID.String(), "-", 2)[0]
	return fmt.Sprintf("funding-statement-%s-%s.%s", id, at.Format("20060102"), format)
}

func projectLabel(name string) string {
	if name == "" {
		return "this project"
	}
	return name
}

// renderStatementCSV writes one row per transaction, newest first.
func renderStatementCSV(history *funding.ProjectFunding) ([]byte, error) {
	var buf bytes.Buffer
	exporter := export.NewCSVExporter(&buf, export.DefaultCSVOptions())

	if err := exporter.WriteHeader(statementColumns); err != nil {
		return nil, err
	}
	if err := exporter.WriteRows(statementRows(history)); err != nil {
		return nil, err
	}
	if err := exporter.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderStatementXLSX(history *funding.ProjectFunding) (data []byte, err error) {
	opts := export.DefaultExcelOptions()
	exporter, err := export.NewExcelExporter(opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := exporter.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close workbook: %w", cerr)
		}
	}()

	if err := exporter.WriteTable(opts.SheetName, statementColumns, statementRows(history)); err != nil {
		return nil, err
	}
	if err := exporter.WriteKeyValues("Summary", summaryItems(history)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := exporter.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func renderStatementPDF(history *funding.ProjectFunding, organization string, at time.Time) ([]byte, error) {
	opts := export.DefaultPDFOptions()
	opts.Orientation = "landscape"
	opts.Subtitle = projectLabel(history.ProjectName)
	opts.Author = organization
	opts.GeneratedAt = at

	g := export.NewPDFGenerator(opts)
	g.StartPage()
	g.AddSummarySection("Summary", summaryItems(history))

	rows := statementRows(history)
	text := make([][]string, len(rows))
	for i, row := range rows {
		text[i] = make([]string, len(row))
		for j, val := range row {
			text[i][j] = export.FormatText(val)
		}
	}
	g.AddTable(statementColumns, text)

	return g.OutputToBytes()
}

func statementRows(history *funding.ProjectFunding) [][]any {
	rows := make([][]any, 0, len(history.Transactions))
	for _, view := range history.Transactions {
		tx := view.Transaction

		var quantity any = ""
		if tx.Quantity != nil {
			quantity = *tx.Quantity
		}
		var price any = ""
		if tx.PricePerCredit.Valid {
			price = tx.PricePerCredit.Decimal
		}
		verification := ""
		if tx.VerificationStatus != nil {
			verification = string(*tx.VerificationStatus)
		}

		rows = append(rows, []any{
			tx.CreatedAt,
			view.TypeDisplay,
			quantity,
			tx.Amount,
			price,
			verification,
			deref(tx.DonorName),
			deref(tx.ReceiptNumber),
			deref(tx.Note),
			tx.ID.String(),
		})
	}
	return rows
}

func summaryItems(history *funding.ProjectFunding) []export.KeyValue {
	sum := history.Summary
	return []export.KeyValue{
		{Label: "Project", Value: projectLabel(history.ProjectName)},
		{Label: "Credits Issued", Value: sum.TotalCreditsIssued},
		{Label: "Credits Sold", Value: sum.TotalCreditsSold},
		{Label: "Available Credits", Value: sum.AvailableCredits},
		{Label: "Total Revenue", Value: sum.TotalRevenue},
		{Label: "Total Donations", Value: sum.TotalDonations},
		{Label: "Donors", Value: sum.DonorCount},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akashi1113/student-system-sub001/internal/models"
	appErrors "github.com/akashi1113/student-system-sub001/pkg/errors"
	"github.com/akashi1113/student-system-sub001/pkg/export"
)

// ExportFormat selects the roster output encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered bytes plus HTTP delivery metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

type rosterSlotReader interface {
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
}

type rosterBookingReader interface {
	ListBySlot(ctx context.Context, slotID string) ([]models.Booking, error)
}

// ExportService renders per-slot booking rosters for invigilators.
type ExportService struct {
	slots    rosterSlotReader
	bookings rosterBookingReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(slots rosterSlotReader, bookings rosterBookingReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		slots:    slots,
		bookings: bookings,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// SlotRoster renders the list of bookings for one slot. Cancelled bookings
// are omitted.
func (s *ExportService) SlotRoster(ctx context.Context, slotID string, format ExportFormat) (*ExportResult, error) {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	}
	bookings, err := s.bookings.ListBySlot(ctx, slotID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot bookings")
	}

	dataset := rosterDataset(bookings)
	filename := fmt.Sprintf("slot-%s-roster-%s", slot.ID, time.Now().UTC().Format("20060102"))

	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv roster")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: filename + ".csv"}, nil
	case ExportFormatPDF:
		title := fmt.Sprintf("Exam roster %s", slot.StartTime.Format("2006-01-02 15:04"))
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf roster")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: filename + ".pdf"}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func rosterDataset(bookings []models.Booking) export.Dataset {
	headers := []string{"Booking Number", "User", "Status", "Check-In", "Contact"}
	rows := make([]map[string]string, 0, len(bookings))
	for i := range bookings {
		b := &bookings[i]
		if b.Status == models.BookingStatusCancelled {
			continue
		}
		rows = append(rows, map[string]string{
			"Booking Number": b.BookingNumber,
			"User":           b.UserID,
			"Status":         string(b.Status),
			"Check-In":       string(b.CheckInStatus),
			"Contact":        b.ContactInfo,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

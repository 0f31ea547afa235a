package service

import (
	"context"
	"fmt"
	"io"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Bookings"

var exportHeaders = []string{"ID", "Car", "Renter", "Pickup", "Return", "Days", "Status", "Price", "Payment", "Created At"}

type DashboardService struct {
	repo   domain.DashboardRepository
	logger *zerolog.Logger
}

func NewDashboardService(repo domain.DashboardRepository, logger *zerolog.Logger) *DashboardService {
	return &DashboardService{repo: repo, logger: nopLogger(logger)}
}

func (s *DashboardService) OwnerDashboard(ctx context.Context, actor domain.Actor) (*models.DashboardData, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}
	return s.repo.OwnerDashboard(ctx, actor.UserID, models.RecentBookingsLimit)
}

// ExportOwnerBookings writes the owner's bookings as an xlsx workbook.
func (s *DashboardService) ExportOwnerBookings(ctx context.Context, actor domain.Actor, w io.Writer) error {
	if actor.UserID == "" {
		return ErrForbidden
	}
	bookings, err := s.repo.ListBookingsByOwner(ctx, actor.UserID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, title := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, title)
		_ = f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	styles := statusStyles(f)
	for i, b := range bookings {
		row := i + 2
		payment := ""
		if b.PaymentID != nil {
			payment = fmt.Sprintf("#%d", *b.PaymentID)
		}
		values := []interface{}{
			b.ID,
			b.CarName,
			b.UserID,
			b.PickupDate.Format(models.DateLayout),
			b.ReturnDate.Format(models.DateLayout),
			b.Range().Days(),
			b.Status,
			b.Price,
			payment,
			b.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(exportSheet, start, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		if style, ok := styles[b.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(7, row)
			_ = f.SetCellStyle(exportSheet, cell, cell, style)
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 8)
	_ = f.SetColWidth(exportSheet, "B", "C", 25)
	_ = f.SetColWidth(exportSheet, "D", "J", 14)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	s.logger.Info().Str("user_id", actor.UserID).Int("rows", len(bookings)).Msg("bookings exported")
	return nil
}

func statusStyles(f *excelize.File) map[string]int {
	colors := map[string]string{
		models.StatusPending:   "#FFF2CC",
		models.StatusConfirmed: "#E2EFDA",
		models.StatusCancelled: "#F8CBAD",
	}
	styles := make(map[string]int, len(colors))
	for status, color := range colors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err == nil {
			styles[status] = id
		}
	}
	return styles
}

package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"apptchat/internal/domain"
	"apptchat/internal/models"
)

// Exporter writes booking reports as Excel files.
type Exporter struct {
	scheduler domain.Scheduler
	path      string
	logger    zerolog.Logger
}

func NewExporter(scheduler domain.Scheduler, path string, logger zerolog.Logger) *Exporter {
	if path == "" {
		path = "./exports"
	}
	return &Exporter{scheduler: scheduler, path: path, logger: logger}
}

// ExportBookings создает Excel файл с бронированиями за период
func (e *Exporter) ExportBookings(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Bookings"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))

	headers := []string{"ID", "Customer", "Phone", "Service", "Date", "Time", "Duration (min)", "Status", "Created"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 2)
	_ = f.SetCellStyle(sheetName, "B2", lastHeader, headerStyle)

	row := 3
	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		bookings, err := e.scheduler.ListBookings(ctx, models.BookingFilter{Date: day.Format(models.DateLayout)})
		if err != nil {
			return "", fmt.Errorf("error getting bookings: %v", err)
		}
		for _, b := range bookings {
			values := []interface{}{
				b.ID, b.UserName, b.Phone, b.Service, b.Date, b.Time,
				b.DurationMinutes, b.Status, b.CreatedAt.Format("2006-01-02 15:04:05"),
			}
			for i, v := range values {
				cell, _ := excelize.CoordinatesToCellName(i+1, row)
				_ = f.SetCellValue(sheetName, cell, v)
			}
			row++
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "I", 18)

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.MergeCell(sheetName, "A1", "I1")
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

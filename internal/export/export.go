// Package export renders reservations as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"agendamento/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	listSheet     = "Reservations"
	scheduleSheet = "Schedule"
)

// Cell fills of the schedule grid.
const (
	fillFree      = "#FFFFFF"
	fillFull      = "#FFC7CE"
	fillPending   = "#FFEB9C"
	fillConfirmed = "#C6EFCE"
)

type Exporter struct {
	catalog *models.Catalog
	dir     string
	logger  *zerolog.Logger
}

func NewExporter(catalog *models.Catalog, dir string, logger *zerolog.Logger) *Exporter {
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{catalog: catalog, dir: dir, logger: logger}
}

// Write streams a workbook for [from, to] to w.
func (e *Exporter) Write(w io.Writer, from, to time.Time, reservations []*models.Reservation) error {
	f, err := e.build(from, to, reservations)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveFile writes the workbook into the export directory and returns its path.
func (e *Exporter) SaveFile(from, to time.Time, reservations []*models.Reservation) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(from, to, reservations)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("reservations_%s_to_%s.xlsx", models.DateKey(from), models.DateKey(to))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("reservations", len(reservations)).Msg("Excel file created")
	return filePath, nil
}

// FileName is the suggested download name for a range.
func FileName(from, to time.Time) string {
	return fmt.Sprintf("reservations_%s_to_%s.xlsx", models.DateKey(from), models.DateKey(to))
}

func (e *Exporter) build(from, to time.Time, reservations []*models.Reservation) (*excelize.File, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid date range: %s - %s", models.DateKey(from), models.DateKey(to))
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(listSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := e.writeList(f, reservations); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(scheduleSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	if err := e.writeSchedule(f, from, to, reservations); err != nil {
		f.Close()
		return nil, err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func (e *Exporter) writeList(f *excelize.File, reservations []*models.Reservation) error {
	headers := []string{
		"ID", "Teacher", "Resource", "Date", "Start", "End", "Quantity",
		"Room", "Status", "Admin Note", "Created At",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(listSheet, cell, header); err != nil {
			return fmt.Errorf("error writing header: %w", err)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(listSheet, "A1", "K1", bold)
	}

	for i, r := range reservations {
		var quantity interface{} = ""
		if r.Quantity != nil {
			quantity = *r.Quantity
		}
		row := []interface{}{
			r.ID, r.UserName, e.resourceName(r.Resource), r.DateKey(),
			r.StartTime.String(), r.EndTime.String(), quantity, r.Room,
			string(r.Status), r.AdminNote, r.CreatedAt.UTC().Format(models.TimestampLayout),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(listSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing row: %w", err)
		}
	}

	_ = f.SetColWidth(listSheet, "A", "A", 38)
	_ = f.SetColWidth(listSheet, "B", "C", 22)
	_ = f.SetColWidth(listSheet, "D", "I", 12)
	_ = f.SetColWidth(listSheet, "J", "K", 30)
	return nil
}

// writeSchedule lays out one row per resource and one column per day. Each
// cell lists that day's reservations and is colored by how busy it is.
func (e *Exporter) writeSchedule(f *excelize.File, from, to time.Time, reservations []*models.Reservation) error {
	_ = f.SetCellValue(scheduleSheet, "A1", fmt.Sprintf("Period: %s - %s", from.Format("02.01.2006"), to.Format("02.01.2006")))

	byCell := make(map[string][]*models.Reservation)
	for _, r := range reservations {
		key := string(r.Resource) + "|" + r.DateKey()
		byCell[key] = append(byCell[key], r)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	resourceStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	fills := make(map[string]int)
	for _, color := range []string{fillFree, fillFull, fillPending, fillConfirmed} {
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
		})
		if err != nil {
			return fmt.Errorf("error creating style: %w", err)
		}
		fills[color] = style
	}

	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	for i, d := range days {
		cell, _ := excelize.CoordinatesToCellName(i+2, 2)
		_ = f.SetCellValue(scheduleSheet, cell, d.Format("02.01"))
		_ = f.SetCellStyle(scheduleSheet, cell, cell, headerStyle)
	}

	for row, res := range e.catalog.All() {
		nameCell, _ := excelize.CoordinatesToCellName(1, row+3)
		_ = f.SetCellValue(scheduleSheet, nameCell, fmt.Sprintf("%s (%d)", res.Name, res.Capacity))
		_ = f.SetCellStyle(scheduleSheet, nameCell, nameCell, resourceStyle)

		for col, d := range days {
			cell, _ := excelize.CoordinatesToCellName(col+2, row+3)
			day := byCell[string(res.ID)+"|"+models.DateKey(d)]
			value, fill := describeDay(res, day)
			_ = f.SetCellValue(scheduleSheet, cell, value)
			_ = f.SetCellStyle(scheduleSheet, cell, cell, fills[fill])
		}
	}

	_ = f.SetColWidth(scheduleSheet, "A", "A", 25)
	if len(days) > 0 {
		last, _ := excelize.ColumnNumberToName(len(days) + 1)
		_ = f.SetColWidth(scheduleSheet, "B", last, 24)
		_ = f.MergeCell(scheduleSheet, "A1", last+"1")
	}
	return nil
}

// describeDay renders one schedule cell and picks its fill: white when free,
// red when the peak reaches capacity, yellow while anything is pending,
// green otherwise.
func describeDay(res models.Resource, day []*models.Reservation) (string, string) {
	var active []*models.Reservation
	for _, r := range day {
		if !r.IsCanceled() {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return fmt.Sprintf("Free\n\nAvailable: %d/%d", res.Capacity, res.Capacity), fillFree
	}

	sort.Slice(active, func(i, j int) bool { return active[i].StartTime < active[j].StartTime })

	var sb strings.Builder
	hasPending := false
	for _, r := range active {
		fmt.Fprintf(&sb, "%s-%s %s", r.StartTime, r.EndTime, r.UserName)
		if r.Quantity != nil {
			fmt.Fprintf(&sb, " x%d", *r.Quantity)
		}
		if r.Status == models.StatusPending {
			sb.WriteString(" (pending)")
			hasPending = true
		}
		sb.WriteString("\n")
	}

	peak := PeakUsage(res, active)
	fmt.Fprintf(&sb, "\nPeak: %d/%d", peak, res.Capacity)

	switch {
	case peak >= res.Capacity:
		return sb.String(), fillFull
	case hasPending:
		return sb.String(), fillPending
	default:
		return sb.String(), fillConfirmed
	}
}

// PeakUsage is the largest amount of res held at any moment by the given
// non-canceled reservations of one day.
func PeakUsage(res models.Resource, day []*models.Reservation) int64 {
	type edge struct {
		at    models.Clock
		delta int64
	}
	edges := make([]edge, 0, 2*len(day))
	for _, r := range day {
		amount := int64(1)
		if res.IsPooled() {
			amount = r.QuantityOrZero()
		}
		edges = append(edges, edge{r.StartTime, amount}, edge{r.EndTime, -amount})
	}
	// releases before claims at the same instant, intervals are half-open
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at != edges[j].at {
			return edges[i].at < edges[j].at
		}
		return edges[i].delta < edges[j].delta
	})

	var current, peak int64
	for _, e := range edges {
		current += e.delta
		if current > peak {
			peak = current
		}
	}
	return peak
}

func (e *Exporter) resourceName(id models.ResourceType) string {
	if res, ok := e.catalog.Get(id); ok {
		return res.Name
	}
	return string(id)
}

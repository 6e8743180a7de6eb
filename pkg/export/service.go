package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jordanlanch/leadbridge/pkg/models"
	"github.com/xuri/excelize/v2"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sheetName = "Leads"

// ParseFormat resolves the format query parameter. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// FileName returns the download name for an export taken at t
func (f Format) FileName(t time.Time) string {
	return fmt.Sprintf("leads_%s.%s", t.UTC().Format("20060102_150405"), f)
}

var headers = []string{
	"Lead ID", "Type", "Prefix", "Name", "Mobile", "Phone", "Email",
	"Date", "Time", "Category", "City", "Area", "Branch Area", "Pincode",
	"Status", "Forwarded To", "Processing Time (ms)", "Last Error", "Created At",
}

func row(lead *models.Lead) []any {
	return []any{
		lead.LeadID,
		lead.LeadType,
		lead.Prefix,
		lead.Name,
		lead.Mobile,
		lead.Phone,
		lead.Email,
		lead.Date.UTC().Format("2006-01-02"),
		lead.Time,
		lead.Category,
		lead.City,
		lead.Area,
		lead.BranchArea,
		lead.Pincode,
		string(lead.Status),
		lead.ForwardedTo,
		lead.ProcessingTime,
		lead.LastError,
		lead.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Write renders leads in the given format to w
func Write(w io.Writer, format Format, leads []models.Lead) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, leads)
	case FormatXLSX:
		return writeExcel(w, leads)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// Bytes renders leads in memory
func Bytes(format Format, leads []models.Lead) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, format, leads); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeCSV writes a header line and one line per lead
func writeCSV(w io.Writer, leads []models.Lead) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range leads {
		values := row(&leads[i])
		record := make([]string, len(values))
		for j, v := range values {
			switch v := v.(type) {
			case string:
				record[j] = v
			case int64:
				record[j] = strconv.FormatInt(v, 10)
			default:
				record[j] = fmt.Sprint(v)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeExcel writes a single styled sheet
func writeExcel(w io.Writer, leads []models.Lead) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	for i := range leads {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := row(&leads[i])
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	last, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetColWidth(sheetName, "A", last, 18); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

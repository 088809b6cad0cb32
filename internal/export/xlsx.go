package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
)

const sheetName = "Readings"

var columnWidths = []float64{22, 13, 13, 10, 20, 18, 18, 16}

// GenerateXLSX returns readings as a single-sheet workbook with a styled
// header row. Timestamps are RFC3339 strings, numbers and flags keep their
// types.
func GenerateXLSX(readings []sensor.Reading) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		colName, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column: %w", err)
		}
		if err := f.SetColWidth(sheetName, colName, colName, columnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i := range readings {
		r := &readings[i]
		row := []any{
			r.Timestamp.UTC().Format(time.RFC3339),
			r.Temperature,
			r.Pressure,
			r.Uptime,
			r.TemperatureZScore,
			r.PressureZScore,
			r.TemperatureAlert,
			r.PressureAlert,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

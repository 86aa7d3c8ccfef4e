package writer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"tradersentiment/models"
)

// PanelSheet is the worksheet name used by WritePanelXLSX.
const PanelSheet = "Panel"

// WritePanelXLSX writes the panel as a single-sheet workbook. Absent columns
// are left out and null cells are left blank.
func WritePanelXLSX(w io.Writer, panel *models.Panel) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), PanelSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	names := panel.ColumnNames()
	for col, name := range names {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(PanelSheet, cell, name); err != nil {
			return fmt.Errorf("write header %s: %w", name, err)
		}
	}

	for i := 0; i < panel.Len(); i++ {
		for col, name := range names {
			v := panel.Value(i, name)
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(PanelSheet, cell, v); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

package tabular

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// decodeXLSX reads the first worksheet of a workbook. Cell values are the
// formatted text a user sees in the spreadsheet.
func decodeXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	sheet := sheets[0]

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	// Leading blank rows are dropped so the first populated row is the header.
	for len(records) > 0 && isEmptyRow(records[0]) {
		records = records[1:]
	}

	t, err := build(records)
	if err != nil {
		return nil, err
	}
	t.Format = FormatXLSX
	t.Sheet = sheet
	return t, nil
}

package feed

import "context"

// Row is one data row read from a worksheet. Values follow the worksheet's
// column order; RowIndex is the 1-based sheet row for back-writes.
type Row struct {
	RowIndex int
	Values   []string
}

// CellWrite is one cell mutation pushed back to the feed. Column is the
// 0-based column index within the worksheet. A non-empty Note is attached
// to the cell so sheet operators can see who touched it.
type CellWrite struct {
	Sheet  string
	Row    int
	Column int
	Value  string
	Note   string
}

// Source is a spreadsheet-like plan feed. Implementations list the plan
// worksheets, stream their data rows and accept cell back-writes.
type Source interface {
	// Worksheets returns the titles of worksheets carrying plan data.
	Worksheets(ctx context.Context) ([]string, error)

	// ReadRows returns the data rows of one worksheet in sheet order,
	// header rows already skipped.
	ReadRows(ctx context.Context, title string) ([]Row, error)

	// UpdateCells applies cell mutations. Writes are grouped per worksheet
	// and applied best effort; the first error is returned.
	UpdateCells(ctx context.Context, writes []CellWrite) error
}

package sheets

// SpreadsheetInfo represents metadata about a spreadsheet
type SpreadsheetInfo struct {
	// ID is the unique identifier for the spreadsheet
	ID string `json:"id"`

	// Title is the title of the spreadsheet
	Title string `json:"title"`

	// Locale is the locale of the spreadsheet (e.g., "en_US")
	Locale string `json:"locale,omitempty"`

	// TimeZone is the time zone of the spreadsheet
	TimeZone string `json:"timeZone,omitempty"`

	// URL is a link for opening the spreadsheet in the Sheets editor
	URL string `json:"url,omitempty"`

	// Sheets are the individual sheets (tabs) of the spreadsheet
	Sheets []SheetInfo `json:"sheets,omitempty"`
}

// SheetInfo represents one sheet (tab) within a spreadsheet
type SheetInfo struct {
	// ID is the numeric sheet ID, stable across renames
	ID int64 `json:"id"`

	// Title is the sheet name shown on the tab
	Title string `json:"title"`

	// Index is the zero-based position of the tab
	Index int64 `json:"index"`

	// RowCount and ColumnCount describe the sheet's grid size
	RowCount    int64 `json:"rowCount"`
	ColumnCount int64 `json:"columnCount"`
}

// RangeData holds the values read from a range
type RangeData struct {
	// Range is the range the values cover, in A1 notation
	Range string `json:"range"`

	// Values are the cell values, one slice per row. Trailing empty
	// cells are omitted by the API.
	Values [][]any `json:"values"`
}

// UpdateResult describes the outcome of a write operation
type UpdateResult struct {
	// UpdatedRange is the range that was written, in A1 notation
	UpdatedRange string `json:"updatedRange"`

	// UpdatedRows, UpdatedColumns and UpdatedCells count the affected
	// dimensions
	UpdatedRows    int64 `json:"updatedRows"`
	UpdatedColumns int64 `json:"updatedColumns"`
	UpdatedCells   int64 `json:"updatedCells"`
}

// ValueInputOption controls how written values are interpreted
type ValueInputOption string

const (
	// InputRaw stores values as-is without parsing
	InputRaw ValueInputOption = "RAW"

	// InputUserEntered parses values as if typed into the UI, so
	// "=SUM(A1:A5)" becomes a formula and "1/2/2026" a date
	InputUserEntered ValueInputOption = "USER_ENTERED"
)

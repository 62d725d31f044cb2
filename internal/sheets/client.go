package sheets

import (
	"context"
	"fmt"

	sheets "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"github.com/driftware/workspace-mcp/internal/auth"
	"github.com/driftware/workspace-mcp/internal/google"
)

// Client wraps the Google Sheets API service. All calls are routed
// through the shared runner for retry and rate-limit handling.
type Client struct {
	svc     *sheets.Service
	account string
	runner  *google.Runner
}

// NewClient creates a Google Sheets client authenticated by the provider.
func NewClient(ctx context.Context, provider auth.Provider, runner *google.Runner) (*Client, error) {
	httpClient, err := provider.HTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets: acquire HTTP client: %w", err)
	}

	google.ForceHTTP1(httpClient)

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}

	return &Client{svc: svc, account: provider.Account(), runner: runner}, nil
}

// Account returns the account this client authenticates as.
func (c *Client) Account() string { return c.account }

// CreateSpreadsheet creates a new spreadsheet with the given title.
func (c *Client) CreateSpreadsheet(ctx context.Context, title string) (*SpreadsheetInfo, error) {
	if title == "" {
		return nil, fmt.Errorf("spreadsheet title is required")
	}

	created, err := google.ExecuteValue(ctx, c.runner, "spreadsheets.create", func(ctx context.Context) (*sheets.Spreadsheet, error) {
		return c.svc.Spreadsheets.Create(&sheets.Spreadsheet{
			Properties: &sheets.SpreadsheetProperties{Title: title},
		}).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return toSpreadsheetInfo(created), nil
}

// GetSpreadsheet retrieves spreadsheet metadata including the sheet list.
// Cell data is not included; use ReadRange for values.
func (c *Client) GetSpreadsheet(ctx context.Context, spreadsheetID string) (*SpreadsheetInfo, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheetID is required")
	}

	ss, err := google.ExecuteValue(ctx, c.runner, "spreadsheets.get", func(ctx context.Context) (*sheets.Spreadsheet, error) {
		return c.svc.Spreadsheets.Get(spreadsheetID).
			Context(ctx).
			Fields("spreadsheetId, spreadsheetUrl, properties(title,locale,timeZone), sheets(properties(sheetId,title,index,gridProperties))").
			Do()
	})
	if err != nil {
		return nil, err
	}
	return toSpreadsheetInfo(ss), nil
}

// ReadRange reads cell values from a range in A1 notation, for example
// "Sheet1!A1:C10".
func (c *Client) ReadRange(ctx context.Context, spreadsheetID, readRange string) (*RangeData, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheetID is required")
	}
	if readRange == "" {
		return nil, fmt.Errorf("range is required")
	}

	resp, err := google.ExecuteValue(ctx, c.runner, "values.get", func(ctx context.Context) (*sheets.ValueRange, error) {
		return c.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	return &RangeData{Range: resp.Range, Values: resp.Values}, nil
}

// UpdateRange overwrites cell values in a range.
func (c *Client) UpdateRange(ctx context.Context, spreadsheetID, updateRange string, values [][]any, input ValueInputOption) (*UpdateResult, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheetID is required")
	}
	if updateRange == "" {
		return nil, fmt.Errorf("range is required")
	}
	if input == "" {
		input = InputUserEntered
	}

	resp, err := google.ExecuteValue(ctx, c.runner, "values.update", func(ctx context.Context) (*sheets.UpdateValuesResponse, error) {
		return c.svc.Spreadsheets.Values.Update(spreadsheetID, updateRange, &sheets.ValueRange{Values: values}).
			Context(ctx).
			ValueInputOption(string(input)).
			Do()
	})
	if err != nil {
		return nil, err
	}

	return &UpdateResult{
		UpdatedRange:   resp.UpdatedRange,
		UpdatedRows:    resp.UpdatedRows,
		UpdatedColumns: resp.UpdatedColumns,
		UpdatedCells:   resp.UpdatedCells,
	}, nil
}

// AppendRows appends rows after the last row of the table that starts
// at the given range. Appends are not idempotent, so they run a single
// attempt; callers decide whether to re-append after a failure.
func (c *Client) AppendRows(ctx context.Context, spreadsheetID, tableRange string, values [][]any, input ValueInputOption) (*UpdateResult, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheetID is required")
	}
	if tableRange == "" {
		return nil, fmt.Errorf("range is required")
	}
	if input == "" {
		input = InputUserEntered
	}

	resp, err := google.OnceValue(ctx, c.runner, "values.append", func(ctx context.Context) (*sheets.AppendValuesResponse, error) {
		return c.svc.Spreadsheets.Values.Append(spreadsheetID, tableRange, &sheets.ValueRange{Values: values}).
			Context(ctx).
			ValueInputOption(string(input)).
			InsertDataOption("INSERT_ROWS").
			Do()
	})
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{}
	if resp.Updates != nil {
		result.UpdatedRange = resp.Updates.UpdatedRange
		result.UpdatedRows = resp.Updates.UpdatedRows
		result.UpdatedColumns = resp.Updates.UpdatedColumns
		result.UpdatedCells = resp.Updates.UpdatedCells
	}
	return result, nil
}

// ClearRange clears cell values in a range, leaving formatting intact.
func (c *Client) ClearRange(ctx context.Context, spreadsheetID, clearRange string) (string, error) {
	if spreadsheetID == "" {
		return "", fmt.Errorf("spreadsheetID is required")
	}
	if clearRange == "" {
		return "", fmt.Errorf("range is required")
	}

	resp, err := google.ExecuteValue(ctx, c.runner, "values.clear", func(ctx context.Context) (*sheets.ClearValuesResponse, error) {
		return c.svc.Spreadsheets.Values.Clear(spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).
			Context(ctx).
			Do()
	})
	if err != nil {
		return "", err
	}
	return resp.ClearedRange, nil
}

// AddSheet adds a new sheet (tab) to an existing spreadsheet.
func (c *Client) AddSheet(ctx context.Context, spreadsheetID, title string) (*SheetInfo, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheetID is required")
	}
	if title == "" {
		return nil, fmt.Errorf("sheet title is required")
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}

	resp, err := google.ExecuteValue(ctx, c.runner, "spreadsheets.batchUpdate", func(ctx context.Context) (*sheets.BatchUpdateSpreadsheetResponse, error) {
		return c.svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			info := toSheetInfo(reply.AddSheet.Properties)
			return &info, nil
		}
	}
	return nil, fmt.Errorf("sheets: batchUpdate reply missing addSheet properties")
}

// toSpreadsheetInfo converts a Sheets API Spreadsheet to our SpreadsheetInfo type
func toSpreadsheetInfo(ss *sheets.Spreadsheet) *SpreadsheetInfo {
	if ss == nil {
		return &SpreadsheetInfo{}
	}
	info := &SpreadsheetInfo{
		ID:  ss.SpreadsheetId,
		URL: ss.SpreadsheetUrl,
	}
	if ss.Properties != nil {
		info.Title = ss.Properties.Title
		info.Locale = ss.Properties.Locale
		info.TimeZone = ss.Properties.TimeZone
	}
	for _, sheet := range ss.Sheets {
		if sheet.Properties != nil {
			info.Sheets = append(info.Sheets, toSheetInfo(sheet.Properties))
		}
	}
	return info
}

// toSheetInfo converts sheet properties to our SheetInfo type
func toSheetInfo(p *sheets.SheetProperties) SheetInfo {
	info := SheetInfo{
		ID:    p.SheetId,
		Title: p.Title,
		Index: p.Index,
	}
	if p.GridProperties != nil {
		info.RowCount = p.GridProperties.RowCount
		info.ColumnCount = p.GridProperties.ColumnCount
	}
	return info
}

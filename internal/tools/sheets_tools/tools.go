package sheets_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/driftware/workspace-mcp/internal/server"
	"github.com/driftware/workspace-mcp/internal/sheets"
	"github.com/driftware/workspace-mcp/internal/tools/common"
)

// getSheetsClient retrieves or creates a sheets client for the specified account
func getSheetsClient(_ context.Context, account string, sc *server.ServerContext) (*sheets.Client, error) {
	client, err := sc.SheetsClientForAccount(account)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets client for account %s: %w", account, err)
	}
	return client, nil
}

// RegisterSheetsTools registers all Google Sheets-related tools with the MCP server
func RegisterSheetsTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Get spreadsheet tool
	getSpreadsheetTool := mcp.NewTool("sheets_get_spreadsheet",
		mcp.WithDescription("Get metadata about a Google Spreadsheet (title, sheets, dimensions)"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("spreadsheetId",
			mcp.Required(),
			mcp.Description("The ID of the spreadsheet"),
		),
	)

	s.AddTool(getSpreadsheetTool, common.InstrumentedToolHandlerWithService(
		"sheets_get_spreadsheet", "sheets", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetSpreadsheet(ctx, request, sc)
		}))

	// Read range tool
	readRangeTool := mcp.NewTool("sheets_read_range",
		mcp.WithDescription("Read cell values from a spreadsheet range in A1 notation"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("spreadsheetId",
			mcp.Required(),
			mcp.Description("The ID of the spreadsheet"),
		),
		mcp.WithString("range",
			mcp.Required(),
			mcp.Description("The range to read in A1 notation (e.g., 'Sheet1!A1:D10')"),
		),
	)

	s.AddTool(readRangeTool, common.InstrumentedToolHandlerWithService(
		"sheets_read_range", "sheets", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReadRange(ctx, request, sc)
		}))

	// Mutating tools are hidden in read-only mode
	if sc.ReadOnly() {
		return nil
	}

	// Create spreadsheet tool
	createSpreadsheetTool := mcp.NewTool("sheets_create_spreadsheet",
		mcp.WithDescription("Create a new Google Spreadsheet"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("The title of the new spreadsheet"),
		),
	)

	s.AddTool(createSpreadsheetTool, common.InstrumentedToolHandlerWithService(
		"sheets_create_spreadsheet", "sheets", "create", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateSpreadsheet(ctx, request, sc)
		}))

	// Update range tool
	updateRangeTool := mcp.NewTool("sheets_update_range",
		mcp.WithDescription("Write cell values to a spreadsheet range in A1 notation"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("spreadsheetId",
			mcp.Required(),
			mcp.Description("The ID of the spreadsheet"),
		),
		mcp.WithString("range",
			mcp.Required(),
			mcp.Description("The range to write in A1 notation (e.g., 'Sheet1!A1:D10')"),
		),
		mcp.WithString("values",
			mcp.Required(),
			mcp.Description("JSON array of rows, each row an array of cell values (e.g., '[[\"a\", 1], [\"b\", 2]]')"),
		),
		mcp.WithBoolean("raw",
			mcp.Description("Store values verbatim instead of parsing them as if typed by a user (default: false)"),
		),
	)

	s.AddTool(updateRangeTool, common.InstrumentedToolHandlerWithService(
		"sheets_update_range", "sheets", "update", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateRange(ctx, request, sc)
		}))

	// Append rows tool
	appendRowsTool := mcp.NewTool("sheets_append_rows",
		mcp.WithDescription("Append rows after the last row of a table in a spreadsheet"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("spreadsheetId",
			mcp.Required(),
			mcp.Description("The ID of the spreadsheet"),
		),
		mcp.WithString("range",
			mcp.Required(),
			mcp.Description("The table range to append to in A1 notation (e.g., 'Sheet1!A:D')"),
		),
		mcp.WithString("values",
			mcp.Required(),
			mcp.Description("JSON array of rows, each row an array of cell values"),
		),
		mcp.WithBoolean("raw",
			mcp.Description("Store values verbatim instead of parsing them as if typed by a user (default: false)"),
		),
	)

	s.AddTool(appendRowsTool, common.InstrumentedToolHandlerWithService(
		"sheets_append_rows", "sheets", "append", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAppendRows(ctx, request, sc)
		}))

	// Clear range tool
	clearRangeTool := mcp.NewTool("sheets_clear_range",
		mcp.WithDescription("Clear cell values from a spreadsheet range (formatting is kept)"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("spreadsheetId",
			mcp.Required(),
			mcp.Description("The ID of the spreadsheet"),
		),
		mcp.WithString("range",
			mcp.Required(),
			mcp.Description("The range to clear in A1 notation (e.g., 'Sheet1!A1:D10')"),
		),
	)

	s.AddTool(clearRangeTool, common.InstrumentedToolHandlerWithService(
		"sheets_clear_range", "sheets", "update", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleClearRange(ctx, request, sc)
		}))

	// Add sheet tool
	addSheetTool := mcp.NewTool("sheets_add_sheet",
		mcp.WithDescription("Add a new sheet (tab) to an existing spreadsheet"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("spreadsheetId",
			mcp.Required(),
			mcp.Description("The ID of the spreadsheet"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("The title of the new sheet"),
		),
	)

	s.AddTool(addSheetTool, common.InstrumentedToolHandlerWithService(
		"sheets_add_sheet", "sheets", "create", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAddSheet(ctx, request, sc)
		}))

	return nil
}

func handleGetSpreadsheet(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	spreadsheetID, ok := args["spreadsheetId"].(string)
	if !ok || spreadsheetID == "" {
		return mcp.NewToolResultError("spreadsheetId is required"), nil
	}

	client, err := getSheetsClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := client.GetSpreadsheet(ctx, spreadsheetID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get spreadsheet: %v", err)), nil
	}

	result, _ := json.MarshalIndent(info, "", "  ")
	return mcp.NewToolResultText(string(result)), nil
}

func handleReadRange(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	spreadsheetID, ok := args["spreadsheetId"].(string)
	if !ok || spreadsheetID == "" {
		return mcp.NewToolResultError("spreadsheetId is required"), nil
	}

	readRange, ok := args["range"].(string)
	if !ok || readRange == "" {
		return mcp.NewToolResultError("range is required"), nil
	}

	client, err := getSheetsClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := client.ReadRange(ctx, spreadsheetID, readRange)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read range: %v", err)), nil
	}

	result, _ := json.MarshalIndent(data, "", "  ")
	return mcp.NewToolResultText(string(result)), nil
}

func handleCreateSpreadsheet(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	title, ok := args["title"].(string)
	if !ok || title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}

	client, err := getSheetsClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := client.CreateSpreadsheet(ctx, title)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create spreadsheet: %v", err)), nil
	}

	result := fmt.Sprintf("Spreadsheet created successfully:\nID: %s\nTitle: %s\n", info.ID, info.Title)
	if info.URL != "" {
		result += fmt.Sprintf("URL: %s\n", info.URL)
	}
	return mcp.NewToolResultText(result), nil
}

func handleUpdateRange(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	spreadsheetID, ok := args["spreadsheetId"].(string)
	if !ok || spreadsheetID == "" {
		return mcp.NewToolResultError("spreadsheetId is required"), nil
	}

	updateRange, ok := args["range"].(string)
	if !ok || updateRange == "" {
		return mcp.NewToolResultError("range is required"), nil
	}

	values, errResult := parseValues(args["values"])
	if errResult != nil {
		return errResult, nil
	}

	client, err := getSheetsClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	update, err := client.UpdateRange(ctx, spreadsheetID, updateRange, values, inputOptionFromArgs(args))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update range: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Updated %d cell(s) in %s", update.UpdatedCells, update.UpdatedRange)), nil
}

func handleAppendRows(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	spreadsheetID, ok := args["spreadsheetId"].(string)
	if !ok || spreadsheetID == "" {
		return mcp.NewToolResultError("spreadsheetId is required"), nil
	}

	tableRange, ok := args["range"].(string)
	if !ok || tableRange == "" {
		return mcp.NewToolResultError("range is required"), nil
	}

	values, errResult := parseValues(args["values"])
	if errResult != nil {
		return errResult, nil
	}

	client, err := getSheetsClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	update, err := client.AppendRows(ctx, spreadsheetID, tableRange, values, inputOptionFromArgs(args))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to append rows: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Appended %d row(s) (%d cells) to %s", update.UpdatedRows, update.UpdatedCells, update.UpdatedRange)), nil
}

func handleClearRange(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	spreadsheetID, ok := args["spreadsheetId"].(string)
	if !ok || spreadsheetID == "" {
		return mcp.NewToolResultError("spreadsheetId is required"), nil
	}

	clearRange, ok := args["range"].(string)
	if !ok || clearRange == "" {
		return mcp.NewToolResultError("range is required"), nil
	}

	client, err := getSheetsClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cleared, err := client.ClearRange(ctx, spreadsheetID, clearRange)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to clear range: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Cleared range %s", cleared)), nil
}

func handleAddSheet(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	spreadsheetID, ok := args["spreadsheetId"].(string)
	if !ok || spreadsheetID == "" {
		return mcp.NewToolResultError("spreadsheetId is required"), nil
	}

	title, ok := args["title"].(string)
	if !ok || title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}

	client, err := getSheetsClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sheet, err := client.AddSheet(ctx, spreadsheetID, title)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to add sheet: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Added sheet %q (ID %d) at index %d", sheet.Title, sheet.ID, sheet.Index)), nil
}

// parseValues decodes the values argument, a JSON array of rows. The
// returned result is non-nil when validation fails.
func parseValues(raw any) ([][]any, *mcp.CallToolResult) {
	valuesStr, ok := raw.(string)
	if !ok || valuesStr == "" {
		return nil, mcp.NewToolResultError("values is required")
	}

	var values [][]any
	if err := json.Unmarshal([]byte(valuesStr), &values); err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Invalid values JSON (expected array of rows): %v", err))
	}
	if len(values) == 0 {
		return nil, mcp.NewToolResultError("values must contain at least one row")
	}
	return values, nil
}

func inputOptionFromArgs(args map[string]interface{}) sheets.ValueInputOption {
	if raw, ok := args["raw"].(bool); ok && raw {
		return sheets.InputRaw
	}
	return sheets.InputUserEntered
}

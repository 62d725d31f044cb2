package calendar_tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/driftware/workspace-mcp/internal/calendar"
	"github.com/driftware/workspace-mcp/internal/server"
	"github.com/driftware/workspace-mcp/internal/tools/common"
)

// RegisterSchedulingTools registers scheduling and availability tools with the MCP server
func RegisterSchedulingTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Query free/busy tool
	queryFreeBusyTool := mcp.NewTool("calendar_query_freebusy",
		mcp.WithDescription("Check availability for one or more calendars/attendees in a time range"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start time for the range (RFC3339 format, e.g., '2026-01-01T00:00:00Z')"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End time for the range (RFC3339 format, e.g., '2026-01-31T23:59:59Z')"),
		),
		mcp.WithString("calendars",
			mcp.Required(),
			mcp.Description("Comma-separated list of calendar IDs or email addresses to check"),
		),
	)

	s.AddTool(queryFreeBusyTool, common.InstrumentedToolHandlerWithService(
		"calendar_query_freebusy", "calendar", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleQueryFreeBusy(ctx, request, sc)
		}))

	// Find available time tool
	findAvailableTimeTool := mcp.NewTool("calendar_find_available_time",
		mcp.WithDescription("Find available time slots for scheduling a meeting with one or more attendees"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("attendees",
			mcp.Required(),
			mcp.Description("Comma-separated list of attendee email addresses"),
		),
		mcp.WithNumber("durationMinutes",
			mcp.Required(),
			mcp.Description("Meeting duration in minutes"),
		),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start time for search range (RFC3339 format, e.g., '2026-01-01T09:00:00Z')"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End time for search range (RFC3339 format, e.g., '2026-01-01T17:00:00Z')"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of available slots to return (default: 10)"),
		),
	)

	s.AddTool(findAvailableTimeTool, common.InstrumentedToolHandlerWithService(
		"calendar_find_available_time", "calendar", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFindAvailableTime(ctx, request, sc)
		}))

	return nil
}

func handleQueryFreeBusy(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	timeMin, timeMax, errResult := parseTimeRange(args)
	if errResult != nil {
		return errResult, nil
	}

	calendarsStr, ok := args["calendars"].(string)
	if !ok || calendarsStr == "" {
		return mcp.NewToolResultError("calendars is required"), nil
	}
	calendars := splitAndTrim(calendarsStr)

	client, err := getCalendarClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	freeBusyInfos, err := client.QueryFreeBusy(ctx, timeMin, timeMax, calendars)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query free/busy: %v", err)), nil
	}

	result := fmt.Sprintf("Free/Busy information for %d calendar(s):\n\n", len(freeBusyInfos))
	for _, info := range freeBusyInfos {
		result += fmt.Sprintf("Calendar: %s\n", info.Calendar)
		if len(info.Errors) > 0 {
			result += fmt.Sprintf("  Errors: %s\n", strings.Join(info.Errors, "; "))
			continue
		}
		if len(info.Busy) == 0 {
			result += "  Free for the entire range\n"
			continue
		}
		result += fmt.Sprintf("  Busy periods (%d):\n", len(info.Busy))
		for _, busy := range info.Busy {
			result += fmt.Sprintf("    %s - %s\n",
				busy.Start.Format(time.RFC3339), busy.End.Format(time.RFC3339))
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleFindAvailableTime(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	timeMin, timeMax, errResult := parseTimeRange(args)
	if errResult != nil {
		return errResult, nil
	}

	attendeesStr, ok := args["attendees"].(string)
	if !ok || attendeesStr == "" {
		return mcp.NewToolResultError("attendees is required"), nil
	}
	attendees := splitAndTrim(attendeesStr)

	durationVal, ok := args["durationMinutes"].(float64)
	if !ok || durationVal <= 0 {
		return mcp.NewToolResultError("durationMinutes is required and must be positive"), nil
	}
	duration := time.Duration(durationVal) * time.Minute

	maxResults := 10
	if maxVal, ok := args["maxResults"].(float64); ok && maxVal > 0 {
		maxResults = int(maxVal)
	}

	client, err := getCalendarClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	freeBusyInfos, err := client.QueryFreeBusy(ctx, timeMin, timeMax, attendees)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query free/busy: %v", err)), nil
	}

	slots := findFreeSlots(freeBusyInfos, timeMin, timeMax, duration, maxResults)
	if len(slots) == 0 {
		return mcp.NewToolResultText("No available time slots found in the given range"), nil
	}

	result := fmt.Sprintf("Found %d available slot(s) of %s:\n\n", len(slots), duration)
	for i, slot := range slots {
		result += fmt.Sprintf("%d. %s - %s\n", i+1,
			slot.Start.Format(time.RFC3339), slot.End.Format(time.RFC3339))
	}

	return mcp.NewToolResultText(result), nil
}

// findFreeSlots computes gaps where every calendar is free for at least
// the requested duration. Busy periods across all calendars are merged,
// then the gaps between them are collected.
func findFreeSlots(infos []calendar.FreeBusyInfo, timeMin, timeMax time.Time, duration time.Duration, maxResults int) []calendar.TimeRange {
	var busy []calendar.TimeRange
	for _, info := range infos {
		busy = append(busy, info.Busy...)
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	merged := make([]calendar.TimeRange, 0, len(busy))
	for _, b := range busy {
		if len(merged) > 0 && !b.Start.After(merged[len(merged)-1].End) {
			if b.End.After(merged[len(merged)-1].End) {
				merged[len(merged)-1].End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}

	var slots []calendar.TimeRange
	cursor := timeMin
	for _, b := range merged {
		if b.Start.Sub(cursor) >= duration {
			slots = append(slots, calendar.TimeRange{Start: cursor, End: b.Start})
			if len(slots) >= maxResults {
				return slots
			}
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if timeMax.Sub(cursor) >= duration {
		slots = append(slots, calendar.TimeRange{Start: cursor, End: timeMax})
	}
	if len(slots) > maxResults {
		slots = slots[:maxResults]
	}
	return slots
}

// parseTimeRange extracts the required timeMin/timeMax arguments. The
// returned result is non-nil when validation fails.
func parseTimeRange(args map[string]interface{}) (time.Time, time.Time, *mcp.CallToolResult) {
	timeMinStr, ok := args["timeMin"].(string)
	if !ok || timeMinStr == "" {
		return time.Time{}, time.Time{}, mcp.NewToolResultError("timeMin is required")
	}
	timeMin, err := time.Parse(time.RFC3339, timeMinStr)
	if err != nil {
		return time.Time{}, time.Time{}, mcp.NewToolResultError(fmt.Sprintf("Invalid timeMin format: %v", err))
	}

	timeMaxStr, ok := args["timeMax"].(string)
	if !ok || timeMaxStr == "" {
		return time.Time{}, time.Time{}, mcp.NewToolResultError("timeMax is required")
	}
	timeMax, err := time.Parse(time.RFC3339, timeMaxStr)
	if err != nil {
		return time.Time{}, time.Time{}, mcp.NewToolResultError(fmt.Sprintf("Invalid timeMax format: %v", err))
	}

	return timeMin, timeMax, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

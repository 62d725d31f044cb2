package auth_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/driftware/workspace-mcp/internal/server"
	"github.com/driftware/workspace-mcp/internal/tools/common"
)

// RegisterAuthTools registers authentication diagnostic tools with the MCP server
func RegisterAuthTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Auth status tool
	authStatusTool := mcp.NewTool("auth_status",
		mcp.WithDescription("Show the authentication status for a Google account: strategy, validity, and token expiry"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
	)

	s.AddTool(authStatusTool, common.InstrumentedToolHandler(
		"auth_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthStatus(ctx, request, sc)
		}))

	// List accounts tool
	listAccountsTool := mcp.NewTool("auth_list_accounts",
		mcp.WithDescription("List the Google accounts known to this server"),
	)

	s.AddTool(listAccountsTool, common.InstrumentedToolHandler(
		"auth_list_accounts", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListAccounts(ctx, request, sc)
		}))

	return nil
}

func handleAuthStatus(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	provider, err := sc.ProviderForAccount(account)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get auth provider: %v", err)), nil
	}

	info := provider.AuthInfo(ctx)
	valid := provider.Validate(ctx)

	result := fmt.Sprintf("Account: %s\n", account)
	result += fmt.Sprintf("Strategy: %s\n", info.Strategy)
	result += fmt.Sprintf("Authenticated: %t\n", info.Authenticated)
	result += fmt.Sprintf("Credentials valid: %t\n", valid)
	result += fmt.Sprintf("Refresh token: %t\n", info.HasRefreshToken)
	if !info.Expiry.IsZero() {
		result += fmt.Sprintf("Token expiry: %s", info.Expiry.Format(time.RFC3339))
		if remaining := time.Until(info.Expiry); remaining > 0 {
			result += fmt.Sprintf(" (in %s)", remaining.Round(time.Second))
		} else {
			result += " (expired)"
		}
		result += "\n"
	}
	if len(info.Scopes) > 0 {
		result += fmt.Sprintf("Scopes: %s\n", strings.Join(info.Scopes, ", "))
	}

	details, jsonErr := json.MarshalIndent(info, "", "  ")
	if jsonErr == nil {
		result += fmt.Sprintf("\n%s\n", string(details))
	}

	return mcp.NewToolResultText(result), nil
}

func handleListAccounts(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	accounts := sc.Accounts()
	if len(accounts) == 0 {
		return mcp.NewToolResultText("No accounts authenticated yet"), nil
	}

	result := fmt.Sprintf("Known accounts (%d):\n", len(accounts))
	for _, account := range accounts {
		provider, err := sc.ProviderForAccount(account)
		if err != nil {
			result += fmt.Sprintf("  - %s (error: %v)\n", account, err)
			continue
		}
		info := provider.AuthInfo(ctx)
		result += fmt.Sprintf("  - %s (%s, authenticated: %t)\n", account, info.Strategy, info.Authenticated)
	}

	return mcp.NewToolResultText(result), nil
}

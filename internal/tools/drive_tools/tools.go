package drive_tools

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/driftware/workspace-mcp/internal/drive"
	"github.com/driftware/workspace-mcp/internal/server"
)

// getDriveClient retrieves or creates a drive client for the specified account
func getDriveClient(_ context.Context, account string, sc *server.ServerContext) (*drive.Client, error) {
	client, err := sc.DriveClientForAccount(account)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive client for account %s: %w", account, err)
	}
	return client, nil
}

// RegisterDriveTools registers all Google Drive-related tools with the MCP server
func RegisterDriveTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Register file operation tools
	if err := registerFileTools(s, sc); err != nil {
		return fmt.Errorf("failed to register file tools: %w", err)
	}

	// Register folder operation tools
	if err := registerFolderTools(s, sc); err != nil {
		return fmt.Errorf("failed to register folder tools: %w", err)
	}

	// Register permission/sharing tools
	if err := registerShareTools(s, sc); err != nil {
		return fmt.Errorf("failed to register share tools: %w", err)
	}

	return nil
}

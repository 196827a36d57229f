package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	kmcp "github.com/keywarden/keywarden/internal/mcp"
	"github.com/keywarden/keywarden/internal/service"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes API key
administration as tools for AI agents. Supports stdio (default) and HTTP
transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for direct integration with MCP clients that launch the server as a
subprocess. In HTTP mode, the server listens on the specified port.`,
		Example: `  keywarden mcp                             # stdio mode
  keywarden mcp --transport http --port 3001   # HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	store, err := openKeyStore()
	if err != nil {
		return fmt.Errorf("init key store: %w", err)
	}
	defer store.Close()

	keys := service.NewKeyService(store, 5*time.Minute, logger)
	mcpServer := kmcp.NewMCPServer(keys, logger)

	switch transport {
	case "stdio":
		return mcpServer.ServeStdio()
	case "http":
		return mcpServer.ServeHTTP(fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unknown transport %q (valid: stdio, http)", transport)
	}
}

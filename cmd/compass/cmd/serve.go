package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filecompass/compass/internal/logging"
	"github.com/filecompass/compass/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the engine as an MCP server over stdio",
		Long: `Serve starts the Model Context Protocol server that external callers (AI
coding assistants, editor integrations) use to invoke search, preview,
status, scan, and quick_search without linking against the engine directly.

MCP requires stdout to carry only JSON-RPC traffic, so serve routes all
logging to a file under the log directory instead of stderr/stdout.`,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()

			logCfg := logging.DefaultConfig()
			logCfg.WriteToStderr = false
			logger, cleanup, err := logging.Setup(logCfg)
			if err != nil {
				return fmt.Errorf("setup logging: %w", err)
			}
			defer cleanup()

			eng, err := openEngine(ctx, logger)
			if err != nil {
				return fmt.Errorf("open engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			server, err := mcpserver.NewServer(eng, logger)
			if err != nil {
				return fmt.Errorf("create mcp server: %w", err)
			}

			return server.Serve(ctx)
		},
	}

	return cmd
}

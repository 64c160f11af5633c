// Package cmd provides the File Compass CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/filecompass/compass/internal/cerrors"
	"github.com/filecompass/compass/internal/config"
	"github.com/filecompass/compass/internal/embed"
	"github.com/filecompass/compass/internal/engine"
	"github.com/filecompass/compass/pkg/version"
)

// rootFlags holds flags shared by every subcommand that opens an Engine.
var rootFlags struct {
	root    string
	offline bool
}

// NewRootCmd creates the root "compass" command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "compass",
		Short:   "Semantic and lexical search over local code, docs, and config",
		Version: version.Version,
		Long: `File Compass indexes a project's code, documentation, and configuration
and answers natural-language or keyword queries with ranked file locations.

Run 'compass scan' to build the index, then 'compass search <query>' or
'compass serve' to expose the index as an MCP server for AI assistants.`,
	}
	cmd.SetVersionTemplate("compass version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&rootFlags.root, "root", ".", "Project root to index/search")
	cmd.PersistentFlags().BoolVar(&rootFlags.offline, "offline", false, "Skip the embedding backend (quick-search and lexical tools only)")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newQuickSearchCmd())
	cmd.AddCommand(newPreviewCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// openEngine resolves the project root, loads configuration, constructs an
// embedder (unless offline), and opens an Engine over it. Callers must
// Close() the returned Engine.
func openEngine(ctx context.Context, logger *slog.Logger) (*engine.Engine, error) {
	root, err := config.FindProjectRoot(rootFlags.root)
	if err != nil {
		root = rootFlags.root
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	embedder, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return engine.New(ctx, root, cfg, embedder, logger)
}

// buildEmbedder constructs the HTTP embedding client from configuration, or
// an offline stub embedder when --offline is set. The embedding service is
// an external collaborator the core only depends on through the Embedder
// interface.
func buildEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (embed.Embedder, error) {
	if rootFlags.offline {
		logger.Debug("offline mode: using static fallback embedder")
		return embed.NewStaticEmbedder(cfg.Embeddings.Dimensions), nil
	}

	httpCfg := embed.HTTPEmbedderConfig{
		Host:       strings.TrimSuffix(cfg.Embeddings.Endpoint, "/api/embed"),
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		Timeout:    cfg.Embeddings.Timeout,
	}

	embedder, err := embed.NewHTTPEmbedder(ctx, httpCfg)
	if err != nil {
		logger.Warn("embedding backend unreachable, falling back to static embedder",
			slog.String("error", err.Error()))
		return embed.NewStaticEmbedder(cfg.Embeddings.Dimensions), nil
	}
	return embedder, nil
}

// ExitCode maps a structured error kind to a process exit code so scripts
// driving the CLI can branch without parsing messages.
func ExitCode(err error) int {
	if ce, ok := err.(*cliError); ok {
		err = ce.err
	}
	switch cerrors.GetKind(err) {
	case cerrors.NotIndexed:
		return 2
	case cerrors.NotFound, cerrors.AccessDenied:
		return 3
	case cerrors.InvalidArgument:
		return 4
	case cerrors.BackendUnavailable, cerrors.BackendProtocol:
		return 5
	case cerrors.IndexCorrupt:
		return 6
	default:
		return 1
	}
}

func runWithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/advocadabra/scr/internal/api"
	"github.com/advocadabra/scr/internal/artifact"
	"github.com/advocadabra/scr/internal/config"
	"github.com/advocadabra/scr/internal/corpus"
	"github.com/advocadabra/scr/internal/engine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the retrieval HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve retrieval as an MCP server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, encoder and artifact status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "scr version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := openRetriever(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			slog.Warn("closing encoder", "error", err)
		}
	}()

	if cfg.Server.APIToken == "" {
		slog.Warn("SCR_API_TOKEN is not set; /v1 routes are unauthenticated")
	}

	handler := api.NewHandler(api.Deps{
		Retriever: r,
		Token:     cfg.Server.APIToken,
		DefaultK:  cfg.Retrieval.TopK,
	})

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("scr listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := openRetriever(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Retriever: r,
		DefaultK:  cfg.Retrieval.TopK,
		Version:   version,
	})
	slog.Info("MCP server started (stdio transport)")

	stdio := server.NewStdioServer(mcpSrv)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	client := newAPIClient(cfg)
	if client.healthy(checkCtx) {
		printStatus("Server", "running on %s", cfg.Server.Addr())
		if st, err := client.stats(checkCtx); err == nil {
			printStatus("Loaded", "%d rows, %d cases, dim %d (%s)", st.Rows, st.Cases, st.Dimension, st.Metric)
		}
	} else {
		printStatus("Server", "stopped")
	}

	printStatus("Encoder", "%s / %s", cfg.Encoder.Provider, cfg.Encoder.Model)
	if err := cfg.Encoder.Validate(); err != nil {
		printWarning("%v", err)
	}
	if cfg.Encoder.Provider == engine.ProviderOllama {
		url := cfg.Encoder.BaseURL
		if url == "" {
			url = engine.DefaultOllamaURL
		}
		if v, err := engine.NewOllamaEngine(url).Version(checkCtx); err != nil {
			printStatus("Ollama", "not running at %s", url)
		} else {
			printStatus("Ollama", "%s at %s", v, url)
		}
	}
	printStatus("Artifacts", "%s", cfg.Artifacts.Dir)
	printBuildStatus(ctx, cfg)
	printStatus("Config", "%s", config.FilePath())
	return nil
}

// printBuildStatus reports the latest build for a local artifacts
// directory. Remote locations are not downloaded just to show status.
func printBuildStatus(ctx context.Context, cfg config.Config) {
	loc, err := artifact.ParseLocation(cfg.Artifacts.Dir)
	if err != nil {
		printWarning("%v", err)
		return
	}
	if loc.Remote() {
		printStatus("Latest build", "remote (fetched on first search)")
		return
	}
	paths := artifactNames(cfg).In(loc.Dir)
	if missing := paths.Missing(); len(missing) > 0 {
		printStatus("Latest build", "none (%d of 4 artifacts missing; run `scr bootstrap` or `scr build`)", len(missing))
		return
	}
	d, err := corpus.Describe(ctx, paths.Metadata)
	if err != nil {
		printStatus("Latest build", "unknown (%v)", err)
		return
	}
	printStatus("Metadata", "%d rows, %d cases", d.Rows, d.Cases)
	if !d.HasBuild {
		printStatus("Latest build", "none recorded")
		return
	}
	b := d.Build
	printStatus("Latest build", "%s at %s: %s/%s dim %d, %d skipped",
		b.ID[:min(8, len(b.ID))], b.CreatedAt.Format(time.RFC3339), b.Encoder, b.Model, b.Dimension, b.Skipped)
}

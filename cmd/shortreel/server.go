package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/minhvu/shortreel/internal/api"
	"github.com/minhvu/shortreel/internal/config"
	"github.com/minhvu/shortreel/internal/imagequeue"
	"github.com/minhvu/shortreel/internal/keystore"
	"github.com/minhvu/shortreel/internal/library"
	"github.com/minhvu/shortreel/internal/pipeline"
	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/provider/gemini"
	"github.com/minhvu/shortreel/internal/provider/openai"
	"github.com/minhvu/shortreel/internal/session"
	"github.com/minhvu/shortreel/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the shortreel daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running shortreel daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and pipeline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "shortreel.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "shortreel version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	})))

	// Refuse to double-start: probe the health endpoint before claiming the
	// PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("shortreel is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("shortreel is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	catalog, err := prompt.LoadCatalog()
	if err != nil {
		return fmt.Errorf("loading prompt catalog: %w", err)
	}

	factory := provider.NewFactory(catalog)
	factory.Register(provider.Gemini, func(secret string) provider.Adapter { return gemini.New(secret) })
	factory.Register(provider.OpenAI, func(secret string) provider.Adapter { return openai.New(secret) })

	keys, err := keystore.New(store)
	if err != nil {
		return err
	}
	// The zero-key adapters only serve as validation probes; ValidateKey
	// takes the candidate secret explicitly.
	keys.RegisterValidator(provider.Gemini, gemini.New(""))
	keys.RegisterValidator(provider.OpenAI, openai.New(""))

	lib, err := library.New(store, catalog)
	if err != nil {
		return err
	}

	defaults := provider.Config{
		Provider: provider.Name(cfg.Defaults.Provider),
		Model:    cfg.Defaults.Model,
	}
	source := api.NewProviderSource(store, keys, factory, defaults)
	pipe := pipeline.New(source, catalog, slog.Default())
	sessions := session.NewManager(store, slog.Default())
	queue := imagequeue.New(cfg.Batch.Workers, slog.Default())

	deps := api.Deps{
		Store:      store,
		Keys:       keys,
		Library:    lib,
		Pipeline:   pipe,
		Sessions:   sessions,
		Queue:      queue,
		Source:     source,
		Catalog:    catalog,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Log:        slog.Default(),
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// MCP server on its own port, streamable HTTP transport.
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	mcpSrv := server.NewStreamableHTTPServer(api.NewMCPServer(deps))
	go func() {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := mcpSrv.Start(mcpAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("MCP server error", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "shortreel listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	if err := mcpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP server shutdown", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("shortreel is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop shortreel (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to shortreel (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}
	printStatus("MCP port", "%d", cfg.Server.MCPPort)

	if running {
		api, err := newAPIClient()
		if err == nil {
			if cfgResp, err := api.get(context.Background(), "/v1/config"); err == nil {
				var aiCfg struct {
					Provider string `json:"provider"`
					Model    string `json:"model"`
				}
				if decodeJSON(cfgResp, &aiCfg) == nil {
					printStatus("Provider", "%s", aiCfg.Provider)
					printStatus("Model", "%s", aiCfg.Model)
				}
			}
			if sessResp, err := api.get(context.Background(), "/v1/sessions/"); err == nil {
				var sessions []struct {
					ID string `json:"id"`
				}
				if decodeJSON(sessResp, &sessions) == nil {
					printStatus("Sessions", "%d", len(sessions))
				}
			}
		}
	} else {
		printStatus("Default provider", "%s", cfg.Defaults.Provider)
		printStatus("Default model", "%s", cfg.Defaults.Model)
	}

	printStatus("Batch workers", "%d", cfg.Batch.Workers)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/CTAG07/webtpl/pkg/dataset"
	"github.com/CTAG07/webtpl/pkg/templating"
	"github.com/CTAG07/webtpl/pkg/webtpl"
)

// runCGI serves a single request described by the process environment and
// writes the response to standard output. Logs go to standard error.
func runCGI(configPath string) error {
	cm, err := NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))
	cm.SetLogger(logger)

	if err = os.MkdirAll(filepath.Join(config.Server.DataDir, "templates"), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := openDB(config.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	tm, err := templating.NewTemplateManager(logger, config.Templates, config.Server.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create template manager: %w", err)
	}

	var hits *dataset.HitCounter
	if hc := config.Server.HitsConfig; hc != nil && hc.Enabled {
		hits = dataset.NewHitCounter(db, logger)
	}
	renderer := NewPageRenderer(tm, dataset.NewFeeder(db, logger), hits, logger)

	return serveCGI(context.Background(), cm, renderer, os.Getenv, os.Stdin, os.Stdout, logger)
}

// serveCGI renders the page named by PATH_INFO. Missing pages and render
// failures still produce a complete response with a Status header.
func serveCGI(ctx context.Context, cm *ConfigManager, renderer *PageRenderer, env func(string) string, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	path := env("PATH_INFO")
	if path == "" {
		path = "/"
	}

	page, ok := cm.Page(path)
	if !ok {
		return writeCGIStatus(stdout, http.StatusNotFound)
	}

	doc, err := renderer.Render(ctx, page, pageRequest{env: env, body: stdin, remoteAddr: env("REMOTE_ADDR")})
	if err != nil {
		logger.Error("Failed to render page", "path", page.Path, "template", page.Template, "error", err)
		return writeCGIStatus(stdout, http.StatusInternalServerError)
	}
	doc.SetOutput(stdout)
	return doc.Write(pageMacro)
}

func writeCGIStatus(w io.Writer, code int) error {
	doc := webtpl.New()
	doc.SetOutput(w)
	doc.AddHeader("Status", fmt.Sprintf("%d %s", code, http.StatusText(code)))
	doc.AddHeader("Content-type", "text/plain; charset=ISO-8859-1")
	doc.Assign(pageMacro, http.StatusText(code)+"\n")
	return doc.Write(pageMacro)
}

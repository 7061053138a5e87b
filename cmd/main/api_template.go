package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/CTAG07/webtpl/pkg/templating"
	"github.com/CTAG07/webtpl/pkg/webtpl"
	"github.com/natefinch/atomic"
)

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	tm      *templating.TemplateManager
	logger  *slog.Logger
	maxBody int64
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(tm *templating.TemplateManager, logger *slog.Logger, maxBody int64) *TemplateAPI {
	return &TemplateAPI{tm: tm, logger: logger, maxBody: maxBody}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/templates", requireScope(scopeTemplatesRead, t.handleList))
	mux.HandleFunc("POST /api/templates/refresh", requireScope(scopeTemplatesWrite, t.handleRefresh))
	mux.HandleFunc("POST /api/templates/test", requireScope(scopeTemplatesRead, t.handleTest))
	mux.HandleFunc("POST /api/templates/preview", requireScope(scopeTemplatesRead, t.handlePreview))
	mux.HandleFunc("GET /api/templates/{name}", requireScope(scopeTemplatesRead, t.handleGet))
	mux.HandleFunc("PUT /api/templates/{name}", requireScope(scopeTemplatesWrite, t.handlePut))
	mux.HandleFunc("DELETE /api/templates/{name}", requireScope(scopeTemplatesWrite, t.handleDelete))
}

// handleList returns a list of all loaded template names.
func (t *TemplateAPI) handleList(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, t.tm.GetTemplateNames())
}

// handleRefresh triggers a manual refresh of templates from disk.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	t.logger.Info("Templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// ParseError is the JSON body returned for a template that does not parse.
type ParseError struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Line  int    `json:"line,omitempty"`
}

func parseError(err error) ParseError {
	pe := ParseError{Error: err.Error()}
	var we *webtpl.Error
	if errors.As(err, &we) {
		pe.Kind = we.Kind.Error()
		pe.Line = we.Line
	}
	return pe
}

// handleTest validates template syntax without saving the file.
func (t *TemplateAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	body, ok := t.readBody(w, r)
	if !ok {
		return
	}
	if err := t.tm.Check(string(body)); err != nil {
		respondWithJSON(w, http.StatusBadRequest, parseError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreview renders the request body as a template. Query parameters
// are assigned as macros first.
func (t *TemplateAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	body, ok := t.readBody(w, r)
	if !ok {
		return
	}
	macros := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			macros[name] = values[0]
		}
	}
	out, err := t.tm.Preview(string(body), macros)
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, parseError(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, out)
}

// filePath resolves the on-disk path of the template named in the URL.
func (t *TemplateAPI) filePath(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	name := r.PathValue("name")
	if !templating.ValidName(name) {
		respondWithError(w, http.StatusBadRequest, "Invalid template name format")
		return "", "", false
	}
	return name, filepath.Join(t.tm.GetTemplateDir(), t.tm.FileName(name)), true
}

func (t *TemplateAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	_, path, ok := t.filePath(w, r)
	if !ok {
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Template not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(content)
}

// handlePut validates and stores a template, then refreshes the set.
func (t *TemplateAPI) handlePut(w http.ResponseWriter, r *http.Request) {
	name, path, ok := t.filePath(w, r)
	if !ok {
		return
	}
	body, ok := t.readBody(w, r)
	if !ok {
		return
	}
	if err := t.tm.Check(string(body)); err != nil {
		respondWithJSON(w, http.StatusBadRequest, parseError(err))
		return
	}
	if err := atomic.WriteFile(path, bytes.NewReader(body)); err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write template file: %v", err))
		return
	}
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("Refresh after template write failed", "template", name, "error", err)
		respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Template saved but refresh failed: %v", err))
		return
	}
	t.logger.Info("Template saved via API", "template", name, "bytes", len(body))
	w.WriteHeader(http.StatusNoContent)
}

func (t *TemplateAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	name, path, ok := t.filePath(w, r)
	if !ok {
		return
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondWithError(w, http.StatusNotFound, "Template not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete template file: %v", err))
		return
	}
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("Refresh after template delete failed", "template", name, "error", err)
	}
	t.logger.Info("Template deleted via API", "template", name)
	w.WriteHeader(http.StatusNoContent)
}

func (t *TemplateAPI) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return nil, false
	}
	return body, true
}

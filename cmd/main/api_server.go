package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

// ServerAPI holds the dependencies for the main application API handlers.
type ServerAPI struct {
	cm         *ConfigManager
	actionChan chan string
	logger     *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewServerAPI creates a new instance of the ServerAPI.
func NewServerAPI(cm *ConfigManager, actionChan chan string, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		cm:         cm,
		actionChan: actionChan,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for all /api/server endpoints.
func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/server/config", requireScope(scopeServerConfig, a.handleGetConfig))
	mux.HandleFunc("PUT /api/server/config", requireScope(scopeServerConfig, a.handlePutConfig))
	mux.HandleFunc("GET /api/server/pages", requireScope(scopeServerConfig, a.handlePages))
	mux.HandleFunc("GET /api/server/version", requireScope(scopeStatsRead, a.handleVersion))
	mux.HandleFunc("POST /api/server/shutdown", requireScope(scopeServerControl, a.handleAction(actionShutdown)))
	mux.HandleFunc("POST /api/server/restart", requireScope(scopeServerControl, a.handleAction(actionRestart)))
}

// handleHealthCheck is unauthenticated so something like docker can use it.
func (a *ServerAPI) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *ServerAPI) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

// handlePutConfig replaces the configuration. Page and template changes apply
// immediately; listen addresses and the database need a restart.
func (a *ServerAPI) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var newConfig Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if err := a.cm.Update(newConfig); err != nil {
		a.logger.Warn("Configuration update rejected", "error", err)
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.logger.Info("Application configuration updated and saved via API. Some changes may require a restart.")
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

func (a *ServerAPI) handlePages(w http.ResponseWriter, _ *http.Request) {
	pages := a.cm.Get().Pages
	if pages == nil {
		pages = []PageConfig{}
	}
	respondWithJSON(w, http.StatusOK, pages)
}

// handleVersion returns the application's build information.
func (a *ServerAPI) handleVersion(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// handleAction asks the run loop to stop the servers for a shutdown or restart.
func (a *ServerAPI) handleAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		a.logger.Warn("Server action initiated via API", "action", action)
		respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server is going down for " + action})

		go func() {
			a.actionChan <- action
		}()
	}
}

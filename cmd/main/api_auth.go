package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL
);
`

// authHeader carries the raw API key.
const authHeader = "X-Webtpl-Key"

// API scopes. scopeAll grants everything.
const (
	scopeAll            = "*"
	scopeAuthManage     = "auth:manage"
	scopeTemplatesRead  = "templates:read"
	scopeTemplatesWrite = "templates:write"
	scopeServerConfig   = "server:config"
	scopeServerControl  = "server:control"
	scopeStatsRead      = "stats:read"
)

type contextKey string

const contextKeyScopes = contextKey("scopes")

// scopeSet is the set of scopes granted to a request.
type scopeSet map[string]struct{}

func newScopeSet(scopes []string) scopeSet {
	set := make(scopeSet, len(scopes))
	for _, s := range scopes {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func (s scopeSet) has(scope string) bool {
	if _, ok := s[scopeAll]; ok {
		return true
	}
	_, ok := s[scope]
	return ok
}

func (s scopeSet) list() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// AuthAPI stores hashed API keys and guards the management API with them.
// While no key exists the API is open, so the first key can be created.
type AuthAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

// APIKeyInfo is the structure returned when listing keys.
type APIKeyInfo struct {
	ID          int      `json:"id"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyRequest is the expected JSON body for creating a new key.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse is the JSON response after creating a key. RawKey is
// shown only once.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

func setupAuthSchema(db *sql.DB) error {
	_, err := db.Exec(authSchema)
	return err
}

func NewAuthAPI(db *sql.DB, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{db: db, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auth/me", a.handleCheckMe)
	mux.HandleFunc("GET /api/auth/keys", requireScope(scopeAuthManage, a.handleListKeys))
	mux.HandleFunc("POST /api/auth/keys", a.handleCreateKey)
	mux.HandleFunc("DELETE /api/auth/keys/{id}", requireScope(scopeAuthManage, a.handleDeleteKey))
}

// Authenticate resolves the scopes of the key in the X-Webtpl-Key header and
// stores them in the request context. Requests without a valid key are
// rejected once at least one key exists.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scopes, err := a.scopesFor(r.Context(), r.Header.Get(authHeader))
		if err != nil {
			if errors.Is(err, errUnauthorized) {
				respondWithError(w, http.StatusUnauthorized, "Invalid or missing API key")
				return
			}
			a.logger.Error("Authenticate failed", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyScopes, scopes)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errUnauthorized = errors.New("unauthorized")

func (a *AuthAPI) scopesFor(ctx context.Context, rawKey string) (scopeSet, error) {
	var keyCount int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&keyCount); err != nil {
		return nil, fmt.Errorf("failed to count keys: %w", err)
	}
	if keyCount == 0 {
		return newScopeSet([]string{scopeAll}), nil
	}
	if rawKey == "" {
		return nil, errUnauthorized
	}

	var scopes string
	err := a.db.QueryRowContext(ctx, "SELECT scopes FROM api_keys WHERE key_hash = ?", hashAPIKey(rawKey)).Scan(&scopes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query API key: %w", err)
	}
	return newScopeSet(strings.Fields(scopes)), nil
}

// requireScope wraps a handler so it only runs for requests granted scope.
func requireScope(scope string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !hasScope(r, scope) {
			respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
			return
		}
		h(w, r)
	}
}

// hasScope checks if the scopes in the request context include a required scope.
func hasScope(r *http.Request, scope string) bool {
	scopes, ok := r.Context().Value(contextKeyScopes).(scopeSet)
	return ok && scopes.has(scope)
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	scopes, ok := r.Context().Value(contextKeyScopes).(scopeSet)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing API key")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"scopes": scopes.list()})
}

func (a *AuthAPI) handleListKeys(w http.ResponseWriter, r *http.Request) {
	rows, err := a.db.QueryContext(r.Context(), `SELECT id, description, scopes FROM api_keys ORDER BY id`)
	if err != nil {
		a.logger.Error("Failed to query API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := []APIKeyInfo{}
	for rows.Next() {
		var key APIKeyInfo
		var scopes string
		if err = rows.Scan(&key.ID, &key.Description, &scopes); err != nil {
			a.logger.Error("Failed to scan API key row", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to process database results")
			return
		}
		key.Scopes = strings.Fields(scopes)
		keys = append(keys, key)
	}
	respondWithJSON(w, http.StatusOK, keys)
}

func (a *AuthAPI) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	var keyCount int
	if err := a.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM api_keys").Scan(&keyCount); err != nil {
		a.logger.Error("Failed to count API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	scopes := strings.Join(req.Scopes, " ")
	// The first key is the master key.
	if keyCount == 0 {
		scopes = scopeAll
	} else if !hasScope(r, scopeAuthManage) {
		respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scopeAuthManage))
		return
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		a.logger.Error("Failed to generate new API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Key generation failed")
		return
	}

	res, err := a.db.ExecContext(r.Context(),
		`INSERT INTO api_keys (key_hash, description, scopes) VALUES (?, ?, ?)`,
		hashAPIKey(rawKey), req.Description, scopes)
	if err != nil {
		a.logger.Error("Failed to insert new API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}
	id, _ := res.LastInsertId()

	a.logger.Info("API key created", "id", id, "scopes", scopes)
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{
		ID:     int(id),
		RawKey: rawKey,
		Scopes: strings.Fields(scopes),
	})
}

func (a *AuthAPI) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}
	if id == 1 {
		respondWithError(w, http.StatusBadRequest, "Cannot delete the primary master key (ID 1)")
		return
	}

	res, err := a.db.ExecContext(r.Context(), "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondWithError(w, http.StatusNotFound, "Key not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "webtpl_" + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

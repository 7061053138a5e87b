package main

import (
	"bytes"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/CTAG07/webtpl/pkg/dataset"
	"github.com/CTAG07/webtpl/pkg/templating"
)

type Server struct {
	cm          *ConfigManager
	db          *sql.DB
	logger      *slog.Logger
	tm          *templating.TemplateManager
	hits        *dataset.HitCounter
	renderer    *PageRenderer
	authAPI     *AuthAPI
	templateAPI *TemplateAPI
	statsAPI    *StatsAPI
	serverAPI   *ServerAPI
	siteMux     *http.ServeMux
	apiMux      *http.ServeMux
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, tm *templating.TemplateManager, actionChan chan string) *Server {
	config := cm.Get()

	hits := dataset.NewHitCounter(db, logger)
	var recorder *dataset.HitCounter
	if hc := config.Server.HitsConfig; hc != nil && hc.Enabled {
		recorder = hits
	}
	renderer := NewPageRenderer(tm, dataset.NewFeeder(db, logger), recorder, logger)

	server := &Server{
		cm:          cm,
		db:          db,
		logger:      logger,
		tm:          tm,
		hits:        hits,
		renderer:    renderer,
		authAPI:     NewAuthAPI(db, logger),
		templateAPI: NewTemplateAPI(tm, logger, config.Server.MaxBodyBytes),
		statsAPI:    NewStatsAPI(hits, logger),
		serverAPI:   NewServerAPI(cm, actionChan, logger),
		siteMux:     http.NewServeMux(),
		apiMux:      http.NewServeMux(),
	}

	apiMux := http.NewServeMux()

	server.authAPI.RegisterRoutes(apiMux)
	server.templateAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Make sure api functions must pass through authentication first
	authedAPI := server.authAPI.Authenticate(apiMux)
	// ... except for the health check
	server.apiMux.HandleFunc("GET /api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", authedAPI)

	server.siteMux.HandleFunc("/favicon.ico", handleFavicon)
	server.siteMux.HandleFunc("/", server.handlePage)

	return server
}

// handlePage renders the configured page for the request path.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page, ok := s.cm.Page(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	ipAddr := getClientIP(r, s.cm)
	env, body, err := requestEnv(w, r, ipAddr, s.cm.Get().Server.MaxBodyBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	doc, err := s.renderer.Render(r.Context(), page, pageRequest{env: env, body: body, remoteAddr: ipAddr})
	if err != nil {
		s.logger.Error("Failed to render page", "path", page.Path, "template", page.Template, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	for _, h := range doc.Headers() {
		if strings.EqualFold(h.Name, "Status") {
			if code, err := strconv.Atoi(strings.Fields(h.Value + " 0")[0]); err == nil && code >= 100 && code <= 999 {
				status = code
			}
			continue
		}
		w.Header().Add(h.Name, h.Value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
	}
	w.WriteHeader(status)

	doc.SetOutput(w)
	doc.SetNoHeader()
	if err = doc.Write(pageMacro); err != nil {
		s.logger.Error("Failed to write page to client", "path", page.Path, "remote_addr", ipAddr, "error", err)
		return
	}
	s.logger.Info("Served page", "path", page.Path, "template", page.Template, "remote_addr", ipAddr)
}

// requestEnv describes r the way a web server describes a request to a CGI
// program. Bodies of unknown length are read up front so CONTENT_LENGTH is
// always accurate.
func requestEnv(w http.ResponseWriter, r *http.Request, ipAddr string, maxBody int64) (func(string) string, io.Reader, error) {
	var body io.Reader = http.NoBody
	length := r.ContentLength
	if r.Body != nil && r.Body != http.NoBody {
		limited := http.MaxBytesReader(w, r.Body, maxBody)
		if length < 0 {
			data, err := io.ReadAll(limited)
			if err != nil {
				return nil, nil, err
			}
			length = int64(len(data))
			body = bytes.NewReader(data)
		} else {
			body = limited
		}
	}
	if length < 0 {
		length = 0
	}

	vars := map[string]string{
		"GATEWAY_INTERFACE": "CGI/1.1",
		"REQUEST_METHOD":    r.Method,
		"QUERY_STRING":      r.URL.RawQuery,
		"PATH_INFO":         r.URL.Path,
		"CONTENT_TYPE":      r.Header.Get("Content-Type"),
		"CONTENT_LENGTH":    strconv.FormatInt(length, 10),
		"HTTP_COOKIE":       strings.Join(r.Header.Values("Cookie"), "; "),
		"HTTP_USER_AGENT":   r.UserAgent(),
		"REMOTE_ADDR":       ipAddr,
	}
	if user, _, ok := r.BasicAuth(); ok {
		vars["REMOTE_USER"] = user
	}
	return func(key string) string { return vars[key] }, body, nil
}

// getClientIP returns the client address. Forwarding headers are honoured
// only when the connection comes from a trusted proxy.
func getClientIP(r *http.Request, cm *ConfigManager) string {
	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If splitting fails (e.g., no port), use the address as is.
		remoteIP = r.RemoteAddr
	}
	if !cm.IsTrusted(remoteIP) {
		return remoteIP
	}

	// The X-Real-Ip header contains the forwarded IP in some cases (like from nginx)
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}

	// The first IP in X-Forwarded-For is the original client IP.
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}
	return remoteIP
}

// handleFavicon answers favicon requests with no content so they are not
// counted as page hits.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

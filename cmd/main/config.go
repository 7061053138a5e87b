package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/CTAG07/webtpl/pkg/templating"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP servers.
type ServerConfig struct {
	ServerAddr     string      `json:"server_addr"`
	ApiAddr        string      `json:"api_addr"`
	LogLevel       string      `json:"log_level"`
	TrustedProxies []string    `json:"trusted_proxies"`
	DataDir        string      `json:"data_dir"`
	DatabasePath   string      `json:"database_path"`
	MaxBodyBytes   int64       `json:"max_body_bytes"`
	HitsConfig     *HitsConfig `json:"hits_config"`
}

// HitsConfig holds settings for page hit counting and cleanup.
type HitsConfig struct {
	Enabled            bool `json:"enabled"`
	CleanupIntervalSec int  `json:"cleanup_interval_sec"`
	ForgetDelayHours   int  `json:"forget_delay_hours"`
}

// PageConfig maps a URL path to a template and the data that fills it.
type PageConfig struct {
	Path     string            `json:"path"`
	Template string            `json:"template"`
	Headers  map[string]string `json:"headers"`
	Macros   map[string]string `json:"macros"`
	Blocks   []BlockConfig     `json:"blocks"`
}

// BlockConfig fills one dynamic block of a page from a query. Params name the
// form arguments bound to the query's placeholders, in order.
type BlockConfig struct {
	Block   string   `json:"block"`
	Query   string   `json:"query"`
	Params  []string `json:"params"`
	Raw     bool     `json:"raw"`
	MaxRows int      `json:"max_rows"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig              `json:"server_config"`
	Templates *templating.TemplateConfig `json:"template_config"`
	Pages     []PageConfig               `json:"pages"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:     ":7277",
		ApiAddr:        ":7278",
		LogLevel:       "info",
		TrustedProxies: []string{},
		DataDir:        "./data",
		DatabasePath:   "./data/webtpl.db",
		MaxBodyBytes:   8 << 20,
		HitsConfig: &HitsConfig{
			Enabled:            true,
			CleanupIntervalSec: 3600,
			ForgetDelayHours:   24 * 30,
		},
	}
}

// DefaultPages serves the index template at the site root.
func DefaultPages() []PageConfig {
	return []PageConfig{{
		Path:     "/",
		Template: "index",
		Headers:  map[string]string{"Cache-Control": "no-store"},
	}}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		Server:    DefaultServerConfig(),
		Templates: templating.DefaultConfig(),
		Pages:     DefaultPages(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Standard output may be a CGI response, so warn on stderr.
				_, _ = fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Server.HitsConfig == nil {
		config.Server.HitsConfig = DefaultServerConfig().HitsConfig
	}
	if config.Templates == nil {
		config.Templates = templating.DefaultConfig()
	}
	return config, nil
}

// Validate checks the parts of a configuration that would break page serving.
func (c *Config) Validate() error {
	if c.Server == nil || c.Templates == nil {
		return errors.New("server_config and template_config are required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("max_body_bytes must be positive")
	}
	seen := make(map[string]struct{}, len(c.Pages))
	for i, p := range c.Pages {
		if !strings.HasPrefix(p.Path, "/") {
			return fmt.Errorf("page %d: path %q must start with /", i, p.Path)
		}
		if _, dup := seen[p.Path]; dup {
			return fmt.Errorf("page %d: duplicate path %q", i, p.Path)
		}
		seen[p.Path] = struct{}{}
		if !templating.ValidName(p.Template) {
			return fmt.Errorf("page %s: invalid template name %q", p.Path, p.Template)
		}
		for _, b := range p.Blocks {
			if b.Block == "" || b.Query == "" {
				return fmt.Errorf("page %s: blocks need both a block path and a query", p.Path)
			}
		}
	}
	return nil
}

// Page returns the page served at path.
func (c *Config) Page(path string) (PageConfig, bool) {
	for _, p := range c.Pages {
		if p.Path == path {
			return p, true
		}
	}
	return PageConfig{}, false
}

// ConfigManager handles thread-safe access to configuration and derived state (trusted proxies).
type ConfigManager struct {
	config       *Config
	mu           sync.RWMutex
	trustedCIDRs []*net.IPNet
	trustedIPs   []net.IP
	configPath   string
	logger       *slog.Logger
	tm           *templating.TemplateManager
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	cm := &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stderr before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})),
	}
	cm.refreshCache()

	return cm, nil
}

// SetTemplateManager registers the template manager to receive config updates.
func (cm *ConfigManager) SetTemplateManager(tm *templating.TemplateManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
	if tm != nil {
		tm.SetConfig(cm.config.Templates)
	}
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.logger = logger
}

// Get returns a thread-safe copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Page returns the page served at path under the current configuration.
func (cm *ConfigManager) Page(path string) (PageConfig, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.Page(path)
}

// Update validates the configuration, applies it, saves it to disk and
// refreshes derived state. A template configuration the template manager
// cannot refresh with is rolled back.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tm != nil {
		oldTmplConfig := cm.config.Templates

		cm.tm.SetConfig(newConfig.Templates)
		if err := cm.tm.Refresh(); err != nil {
			cm.tm.SetConfig(oldTmplConfig)
			_ = cm.tm.Refresh()
			return fmt.Errorf("template configuration rejected: %w", err)
		}
		for _, p := range newConfig.Pages {
			if !cm.tm.Has(p.Template) {
				cm.logger.Warn("Page references a missing template", "path", p.Path, "template", p.Template)
			}
		}
	}

	*cm.config = newConfig
	cm.refreshCache()

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsTrusted checks if an IP is in the trusted proxies list using the cache.
func (cm *ConfigManager) IsTrusted(ipAddr string) bool {
	parsedIP := net.ParseIP(ipAddr)
	if parsedIP == nil {
		return false
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, ipNet := range cm.trustedCIDRs {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}
	for _, trustedIP := range cm.trustedIPs {
		if trustedIP.Equal(parsedIP) {
			return true
		}
	}
	return false
}

// refreshCache rebuilds the binary IP lists from the config strings.
func (cm *ConfigManager) refreshCache() {
	var cidrs []*net.IPNet
	var ips []net.IP

	for _, t := range cm.config.Server.TrustedProxies {
		if strings.Contains(t, "/") {
			if _, ipNet, err := net.ParseCIDR(t); err == nil {
				cidrs = append(cidrs, ipNet)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy CIDR", "cidr", t, "error", err)
			}
			continue
		}
		if ip := net.ParseIP(t); ip != nil {
			ips = append(ips, ip)
		} else {
			cm.logger.Warn("Failed to parse trusted proxy IP", "ip", t)
		}
	}
	cm.trustedCIDRs = cidrs
	cm.trustedIPs = ips
}

package templating

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/CTAG07/webtpl/pkg/webtpl"
)

// TemplateManager is the central controller for template sources.
// It owns the cached source set, the configuration and the directory the
// sources are read from. All methods are concurrent-safe.
type TemplateManager struct {
	logger        *slog.Logger
	config        *TemplateConfig
	sources       map[string]string
	templateNames []string
	templateDir   string
	mu            sync.RWMutex
}

// NewTemplateManager creates, initializes, and returns a new TemplateManager.
// dataDir must contain a "templates" subdirectory. It performs an initial
// Refresh to load all templates.
func NewTemplateManager(logger *slog.Logger, config *TemplateConfig, dataDir string) (*TemplateManager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	tm := &TemplateManager{
		logger:      logger,
		config:      config,
		sources:     map[string]string{},
		templateDir: filepath.Join(dataDir, "templates"),
	}

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", "dir", tm.templateDir)
	return tm, nil
}

// ValidName reports whether name can be used as a template name. Names are
// path segments, so they may not contain dots or separators.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c != '_' && c != '-' && (c < '0' || c > '9') && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// SetConfig applies a new configuration. It takes effect on the next Refresh
// and for every Document created afterwards.
func (tm *TemplateManager) SetConfig(config *TemplateConfig) {
	if config == nil {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
}

// Refresh reloads all templates from the filesystem. Every source is parsed
// before the new set replaces the old one; if any file cannot be read or does
// not parse, the error is returned and the previous set is kept.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	filePattern := filepath.Join(tm.templateDir, "*"+tm.config.Extension)
	tm.logger.Info("Loading template files...", "pattern", filePattern)

	files, err := filepath.Glob(filePattern)
	if err != nil {
		return fmt.Errorf("bad template pattern %q: %w", filePattern, err)
	}

	sources := make(map[string]string, len(files))
	names := make([]string, 0, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), tm.config.Extension)
		if !ValidName(name) {
			tm.logger.Warn("Skipping template with invalid name", "file", file)
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			return fmt.Errorf("failed to stat template %s: %w", name, err)
		}
		if info.IsDir() {
			continue
		}
		if tm.config.MaxSourceBytes > 0 && info.Size() > tm.config.MaxSourceBytes {
			return fmt.Errorf("template %s is %d bytes, limit is %d", name, info.Size(), tm.config.MaxSourceBytes)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", name, err)
		}
		if err = tm.check(name, string(data)); err != nil {
			tm.logger.Error("failed to parse template file", "template", name, "error", err)
			return err
		}
		sources[name] = string(data)
		names = append(names, name)
	}

	if len(names) == 0 {
		tm.logger.Warn("No template files found matching pattern", "pattern", filePattern)
	}
	for _, name := range tm.config.Preload {
		if _, ok := sources[name]; !ok {
			tm.logger.Warn("Preloaded template is missing", "template", name)
		}
	}

	tm.sources = sources
	tm.templateNames = names
	tm.logger.Info("Loaded template files", "count", len(names))
	return nil
}

// check parses src in a scratch Document using the current comment settings.
func (tm *TemplateManager) check(name, src string) error {
	doc := webtpl.New()
	doc.SetComments(tm.config.CommentStart, tm.config.CommentEnd)
	return doc.LoadString(name, src)
}

// Check validates the syntax of a template source without installing it.
func (tm *TemplateManager) Check(src string) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.check("check", src)
}

// NewDocument returns a fresh Document with every cached template loaded,
// preloaded templates first. The Document belongs to the caller.
func (tm *TemplateManager) NewDocument() *webtpl.Document {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.newDocument()
}

func (tm *TemplateManager) newDocument() *webtpl.Document {
	doc := webtpl.New()
	doc.SetLogger(tm.logger)
	doc.SetComments(tm.config.CommentStart, tm.config.CommentEnd)
	for _, name := range tm.loadOrder() {
		if err := doc.LoadString(name, tm.sources[name]); err != nil {
			// Sources are validated on Refresh, so this only happens if the
			// comment settings changed since.
			tm.logger.Error("failed to load cached template", "template", name, "error", err)
		}
	}
	return doc
}

func (tm *TemplateManager) loadOrder() []string {
	order := make([]string, 0, len(tm.templateNames))
	for _, name := range tm.config.Preload {
		if _, ok := tm.sources[name]; ok && !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	for _, name := range tm.templateNames {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	return order
}

// previewName is never a valid template name.
const previewName = "@preview"

// Preview loads src as a scratch template into a fresh Document,
// assigns macros and returns the rendered text. The cached templates are
// available to it, so preview output matches what a page would produce.
func (tm *TemplateManager) Preview(src string, macros map[string]string) (string, error) {
	tm.mu.RLock()
	doc := tm.newDocument()
	tm.mu.RUnlock()

	if err := doc.LoadString(previewName, src); err != nil {
		return "", err
	}
	for name, value := range macros {
		doc.Assign(name, value)
	}
	if err := doc.EvaluatePlain("PREVIEW", previewName); err != nil {
		return "", err
	}
	out, _ := doc.MacroValue("PREVIEW")
	return out, nil
}

// Has reports whether a template called name is in the cached set.
func (tm *TemplateManager) Has(name string) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, ok := tm.sources[name]
	return ok
}

// Source returns the cached source of template name.
func (tm *TemplateManager) Source(name string) (string, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	src, ok := tm.sources[name]
	return src, ok
}

// GetConfig returns a copy of the current configuration.
// This mainly exists for concurrency-safety reasons.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// GetTemplateNames returns the sorted names of the loaded templates.
func (tm *TemplateManager) GetTemplateNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	names := slices.Clone(tm.templateNames)
	slices.Sort(names)
	return names
}

// GetTemplateDir returns the template dir that the TemplateManager uses.
func (tm *TemplateManager) GetTemplateDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templateDir
}

// FileName returns the file name a template called name is stored under.
func (tm *TemplateManager) FileName(name string) string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return name + tm.config.Extension
}

package templating

// TemplateConfig holds all configuration options for the template manager.
type TemplateConfig struct {
	// Extension is the file suffix of template sources in the template directory.
	// The template name is the file name without it.
	Extension string `json:"extension"`

	// CommentStart marks a comment line in template sources. Empty disables comments.
	CommentStart string `json:"comment_start"`

	// CommentEnd, when set, turns CommentStart into the start of a multi-line
	// comment that runs through the next line beginning with CommentEnd.
	CommentEnd string `json:"comment_end"`

	// MaxSourceBytes rejects template files larger than this during a refresh.
	MaxSourceBytes int64 `json:"max_source_bytes"`

	// Preload lists templates loaded into every Document, in order, before the
	// rest. Useful for shared headers whose macros later templates reference.
	Preload []string `json:"preload"`
}

// DefaultConfig returns a TemplateConfig with default values.
// Comments are disabled by default.
func DefaultConfig() *TemplateConfig {
	return &TemplateConfig{
		Extension:      ".tpl",
		CommentStart:   "",
		CommentEnd:     "",
		MaxSourceBytes: 1 << 20, // 1MB
		Preload:        []string{},
	}
}

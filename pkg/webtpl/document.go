package webtpl

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Document is one engine instance: a set of plain templates with their
// dynamic blocks, the substitution macros they reference, and the CGI state
// of the page being built.
type Document struct {
	logger *slog.Logger
	trees  []*tree

	macros  *MacroTable
	args    *MacroTable
	cookies *MacroTable
	headers *MacroTable
	octets  *MacroTable

	commentStart string
	commentEnd   string

	out        io.Writer
	headerSent bool
	remoteUser string
	err        error
}

// New returns an empty Document writing to standard output.
func New() *Document {
	return &Document{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		macros:  NewMacroTable(),
		args:    NewMacroTable(),
		cookies: NewMacroTable(),
		headers: NewMacroTable(),
		octets:  NewMacroTable(),
		out:     os.Stdout,
	}
}

// SetLogger sets the logger for the Document. By default, all logs are discarded.
func (d *Document) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Err returns the error of the last operation, or nil if it succeeded.
func (d *Document) Err() error {
	return d.err
}

// ErrorString returns the description of the last error, or "" if the last
// operation succeeded.
func (d *Document) ErrorString() string {
	if d.err == nil {
		return ""
	}
	return d.err.Error()
}

func (d *Document) clearError() {
	d.err = nil
}

func (d *Document) setError(err error) error {
	d.err = err
	return err
}

// SetComments configures the comment delimiters recognised at the start of a
// line by subsequent loads. An empty start disables comments. With an empty
// end only the line holding start is skipped; otherwise every line from start
// through the next line beginning with end is skipped.
func (d *Document) SetComments(start, end string) {
	d.clearError()
	d.commentStart = start
	d.commentEnd = ""
	if start != "" {
		d.commentEnd = end
	}
}

// Load parses a template from r and installs it under name, replacing any
// template already loaded under that name. On failure no template called
// name remains.
func (d *Document) Load(name string, r io.Reader) error {
	d.clearError()
	d.Remove(name)

	tr := newTree(name)
	p := &parser{
		tr:           tr,
		macros:       d.macros,
		cur:          rootTemplate,
		commentStart: d.commentStart,
		commentEnd:   d.commentEnd,
	}
	if err := p.parse(r); err != nil {
		d.logger.Warn("template load failed", "template", name, "error", err)
		return d.setError(err)
	}
	d.trees = append(d.trees, tr)
	d.logger.Debug("template loaded", "template", name, "lines", p.line, "blocks", len(tr.templates)-1)
	return nil
}

// LoadString is Load from a string.
func (d *Document) LoadString(name, src string) error {
	return d.Load(name, strings.NewReader(src))
}

// LoadFile is Load from the file at path.
func (d *Document) LoadFile(name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		d.Remove(name)
		return d.setError(&Error{Op: "load", Kind: ErrSourceRead, Template: name, Err: err})
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	return d.Load(name, f)
}

// Templates returns the names of the plain templates in load order.
func (d *Document) Templates() []string {
	names := make([]string, len(d.trees))
	for i, tr := range d.trees {
		names[i] = tr.name()
	}
	return names
}

// Has reports whether a plain template called name is loaded.
func (d *Document) Has(name string) bool {
	return d.plain(name) >= 0
}

// Remove drops the plain template called name and all of its blocks. It
// reports whether one existed.
func (d *Document) Remove(name string) bool {
	i := d.plain(name)
	if i < 0 {
		return false
	}
	d.trees = append(d.trees[:i], d.trees[i+1:]...)
	return true
}

func (d *Document) plain(name string) int {
	for i, tr := range d.trees {
		if tr.name() == name {
			return i
		}
	}
	return -1
}

// find resolves a dotted path "plain.block.block...".
func (d *Document) find(path string) (*tree, tmplID) {
	segs := strings.Split(path, ".")
	i := d.plain(segs[0])
	if i < 0 {
		return nil, noTemplate
	}
	tr := d.trees[i]
	t := tr.resolve(segs[1:])
	if t == noTemplate {
		return nil, noTemplate
	}
	return tr, t
}

// Assign sets the value of macro name. An empty value clears the macro's
// value while keeping the macro.
func (d *Document) Assign(name, value string) {
	d.clearError()
	if value != "" {
		d.macros.Set(name, value)
		return
	}
	d.macros.Unset(name)
}

// AssignInt sets macro name to the decimal form of value.
func (d *Document) AssignInt(name string, value int) {
	d.clearError()
	d.macros.Set(name, strconv.Itoa(value))
}

// MacroValue returns the value of macro name. ok is false if the macro does
// not exist or has no value.
func (d *Document) MacroValue(name string) (string, bool) {
	d.clearError()
	m, ok := d.macros.Lookup(name)
	if !ok || !m.Set {
		return "", false
	}
	return m.Value, true
}

// Macros returns the substitution table.
func (d *Document) Macros() *MacroTable {
	return d.macros
}

// EvaluateDynamic renders the dynamic block at path and appends the result at
// the block's position in its parent. Repeated calls accumulate renderings in
// call order. Generated text of the block's own nested blocks is consumed by
// the render, so nested blocks start empty for the next repetition.
func (d *Document) EvaluateDynamic(path string) error {
	d.clearError()
	tr, t := d.find(path)
	if tr == nil {
		return d.setError(&Error{Op: "evaluate", Kind: ErrTemplateNotFound, Template: path})
	}
	if t == rootTemplate {
		return d.setError(&Error{
			Op:       "evaluate",
			Kind:     ErrTemplateNotFound,
			Template: path,
			Msg:      fmt.Sprintf("%s is not a dynamic block", path),
		})
	}
	tr.splice(t, d.macros)
	return nil
}

// EvaluatePlain renders the template at path and stores the result in macro
// name. Rendering does not consume generated text, so evaluating the same
// template twice without other changes gives the same result.
func (d *Document) EvaluatePlain(name, path string) error {
	d.clearError()
	tr, t := d.find(path)
	if tr == nil {
		return d.setError(&Error{Op: "evaluate", Kind: ErrTemplateNotFound, Template: path})
	}
	d.macros.Set(name, tr.render(t, d.macros, false))
	return nil
}

// Reset discards the text accumulated by EvaluateDynamic in the template at
// path and all of its blocks.
func (d *Document) Reset(path string) error {
	d.clearError()
	tr, t := d.find(path)
	if tr == nil {
		return d.setError(&Error{Op: "reset", Kind: ErrTemplateNotFound, Template: path})
	}
	tr.clear(t)
	return nil
}

package webtpl

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Document matches exactly one of these
// with errors.Is.
var (
	ErrSourceRead            = errors.New("source read failure")
	ErrMalformedBlockNesting = errors.New("malformed block nesting")
	ErrUnterminatedComment   = errors.New("unterminated comment")
	ErrTemplateNotFound      = errors.New("template not found")
	ErrUndefinedMacro        = errors.New("undefined macro")
	ErrWriteFailure          = errors.New("write failure")
)

// Error describes a failed Document operation.
type Error struct {
	Op       string // "load", "evaluate", "write", ...
	Kind     error  // one of the Err* kinds
	Template string // template name or dotted path, if any
	Line     int    // source line, for parse errors
	Msg      string
	Err      error // underlying cause, e.g. an I/O error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	switch {
	case e.Template != "" && e.Line > 0:
		return fmt.Sprintf("webtpl: %s %s:%d: %s", e.Op, e.Template, e.Line, msg)
	case e.Template != "":
		return fmt.Sprintf("webtpl: %s %s: %s", e.Op, e.Template, msg)
	}
	return fmt.Sprintf("webtpl: %s: %s", e.Op, msg)
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

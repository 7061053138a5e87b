package webtpl

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
)

const defaultContentType = "text/html; charset=ISO-8859-1"

// Header is one outgoing header line.
type Header struct {
	Name  string
	Value string
}

// Cookie describes an outgoing Set-Cookie header. Zero fields are omitted.
type Cookie struct {
	Name    string
	Value   string
	Expires time.Time
	Domain  string
	Path    string
	Secure  bool
}

// String formats the cookie as a Set-Cookie value.
func (c Cookie) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s;", c.Name, c.Value)
	if !c.Expires.IsZero() {
		fmt.Fprintf(&b, " expires=%s;", c.Expires.UTC().Format("Mon, 02-Jan-2006 15:04:05 GMT"))
	}
	if c.Path != "" {
		fmt.Fprintf(&b, " path=%s;", c.Path)
	}
	if c.Domain != "" {
		fmt.Fprintf(&b, " domain=%s;", c.Domain)
	}
	if c.Secure {
		b.WriteString(" secure")
	}
	return b.String()
}

// AddHeader queues an outgoing header. Repeated names are all sent.
func (d *Document) AddHeader(name, value string) {
	d.clearError()
	if name == "" || value == "" {
		return
	}
	d.headers.Append(Macro{Name: name, Value: value, Set: true})
}

// SetCookie queues a Set-Cookie header.
func (d *Document) SetCookie(c Cookie) {
	d.clearError()
	if c.Name == "" {
		return
	}
	d.headers.Append(Macro{Name: "Set-Cookie", Value: c.String(), Set: true})
}

// Headers returns the queued headers in the order they were added.
func (d *Document) Headers() []Header {
	d.clearError()
	var hs []Header
	for _, m := range d.headers.All() {
		if m.Set {
			hs = append(hs, Header{Name: m.Name, Value: m.Value})
		}
	}
	return hs
}

// SetOutput sets the output sink. The default is standard output.
func (d *Document) SetOutput(w io.Writer) {
	d.clearError()
	d.out = w
}

// SetNoHeader marks the header block as sent, for output that is not an
// HTTP response.
func (d *Document) SetNoHeader() {
	d.clearError()
	d.headerSent = true
}

// WriteHeader writes the header block once per page: a default Content-type
// unless one was queued, the queued headers and a blank line.
func (d *Document) WriteHeader() error {
	d.clearError()
	if d.headerSent {
		return nil
	}
	var buf bytes.Buffer
	hs := d.Headers()
	if !hasHeader(hs, "Content-type") {
		fmt.Fprintf(&buf, "Content-type: %s\n", defaultContentType)
	}
	for _, h := range hs {
		fmt.Fprintf(&buf, "%s: %s\n", h.Name, h.Value)
	}
	buf.WriteByte('\n')
	d.headerSent = true
	if err := d.write(buf.Bytes()); err != nil {
		return d.setError(err)
	}
	return nil
}

// Write sends the header block if it has not been sent, then the value of
// macro name.
func (d *Document) Write(name string) error {
	d.clearError()
	if !d.headerSent {
		if err := d.WriteHeader(); err != nil {
			return err
		}
	}
	m, ok := d.macros.Lookup(name)
	if !ok || !m.Set {
		return d.setError(&Error{Op: "write", Kind: ErrUndefinedMacro, Template: name})
	}
	if err := d.write([]byte(m.Value)); err != nil {
		return d.setError(err)
	}
	return nil
}

func (d *Document) write(p []byte) error {
	n, err := d.out.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &Error{Op: "write", Kind: ErrWriteFailure, Err: err}
	}
	return nil
}

// ResetOutput forgets queued headers and binary parts and re-arms the header
// block, so a persistent program can start a new page.
func (d *Document) ResetOutput() {
	d.clearError()
	d.headers.Clear()
	d.octets.Clear()
	d.headerSent = false
}

func hasHeader(hs []Header, name string) bool {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}

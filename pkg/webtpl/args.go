package webtpl

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"strconv"
	"strings"
)

// Octet is a binary form part, typically an uploaded file.
type Octet struct {
	Data        []byte
	Filename    string
	ContentType string
}

// LoadArgs replaces the document's form arguments and cookies with the ones
// described by a CGI environment. env looks up variables such as
// QUERY_STRING; os.Getenv is the usual choice. body supplies the request
// body announced by CONTENT_LENGTH and may be nil when there is none.
//
// Url-encoded and multipart bodies are decoded before the query string.
// Repeated argument names keep every value; a repeated cookie keeps the last.
func (d *Document) LoadArgs(env func(string) string, body io.Reader) error {
	d.clearError()
	d.args.Clear()
	d.cookies.Clear()
	d.remoteUser = env("REMOTE_USER")

	if n, _ := strconv.Atoi(env("CONTENT_LENGTH")); n > 0 && body != nil {
		if ct := env("CONTENT_TYPE"); ct != "" {
			if err := d.readBody(ct, io.LimitReader(body, int64(n))); err != nil {
				return d.setError(err)
			}
		}
	}
	if q := env("QUERY_STRING"); q != "" {
		d.scanArgs(q)
	}
	if c := env("HTTP_COOKIE"); c != "" {
		d.scanCookies(c)
	}
	return nil
}

func (d *Document) readBody(contentType string, r io.Reader) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		d.logger.Debug("ignoring request body", "content_type", contentType, "error", err)
		return nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return &Error{Op: "args", Kind: ErrSourceRead, Msg: "reading request body", Err: err}
	}
	switch mediaType {
	case "application/x-www-form-urlencoded":
		d.scanArgs(string(data))
	case "multipart/form-data":
		return d.scanMultipart(data, params["boundary"])
	default:
		d.logger.Debug("ignoring request body", "content_type", mediaType)
	}
	return nil
}

func (d *Document) scanMultipart(data []byte, boundary string) error {
	if boundary == "" {
		return &Error{Op: "args", Kind: ErrSourceRead, Msg: "multipart body without boundary"}
	}
	mr := multipart.NewReader(bytes.NewReader(data), boundary)
	for {
		part, err := mr.NextRawPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &Error{Op: "args", Kind: ErrSourceRead, Msg: "malformed multipart body", Err: err}
		}
		name := part.FormName()
		value, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return &Error{Op: "args", Kind: ErrSourceRead, Msg: "reading multipart part " + name, Err: err}
		}
		if name == "" {
			continue
		}
		if ct := part.Header.Get("Content-Type"); ct != "" {
			d.octets.Append(Macro{
				Name:   name,
				Value:  string(value),
				Set:    true,
				Extra1: part.FileName(),
				Extra2: ct,
			})
			continue
		}
		d.args.Append(Macro{Name: name, Value: strings.ReplaceAll(string(value), "\r", ""), Set: true})
	}
}

// ScanArgs adds the arguments of a "name=value&name=value" string to the
// document's form arguments.
func (d *Document) ScanArgs(s string) {
	d.clearError()
	d.scanArgs(s)
}

func (d *Document) scanArgs(s string) {
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		d.args.Append(Macro{Name: DecodeFormValue(name), Value: DecodeFormValue(value), Set: true})
	}
}

func (d *Document) scanCookies(s string) {
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimLeft(pair, " ")
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		d.cookies.Set(name, value)
	}
}

// Arg returns the first value of form argument name.
func (d *Document) Arg(name string) (string, bool) {
	d.clearError()
	m, ok := d.args.Lookup(name)
	if !ok || !m.Set {
		return "", false
	}
	return m.Value, true
}

// ArgList returns every value of form argument name in arrival order.
func (d *Document) ArgList(name string) []string {
	d.clearError()
	return d.args.Values(name)
}

// Args returns all form arguments in arrival order.
func (d *Document) Args() []Macro {
	d.clearError()
	return d.args.All()
}

// Cookie returns the value of incoming cookie name.
func (d *Document) Cookie(name string) (string, bool) {
	d.clearError()
	m, ok := d.cookies.Lookup(name)
	if !ok || !m.Set {
		return "", false
	}
	return m.Value, true
}

// Octet returns the first binary part called name.
func (d *Document) Octet(name string) (Octet, bool) {
	d.clearError()
	m, ok := d.octets.Lookup(name)
	if !ok {
		return Octet{}, false
	}
	return Octet{Data: []byte(m.Value), Filename: m.Extra1, ContentType: m.Extra2}, true
}

// RemoteUser returns REMOTE_USER as seen by the last LoadArgs.
func (d *Document) RemoteUser() string {
	d.clearError()
	return d.remoteUser
}

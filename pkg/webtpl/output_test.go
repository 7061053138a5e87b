package webtpl

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

type failingWriter struct{ n int }

func (w failingWriter) Write(p []byte) (int, error) {
	if w.n >= 0 && w.n < len(p) {
		return w.n, nil
	}
	return 0, errors.New("disk full")
}

func TestWrite_HeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	d := New()
	d.SetOutput(&buf)
	d.AddHeader("Cache-Control", "no-store")
	d.SetCookie(Cookie{Name: "ck1", Value: "v", Path: "/fox/"})
	d.AddHeader("", "dropped")
	d.Assign("PAGE", "<html></html>")

	if err := d.Write("PAGE"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := "Content-type: text/html; charset=ISO-8859-1\n" +
		"Cache-Control: no-store\n" +
		"Set-Cookie: ck1=v; path=/fox/;\n" +
		"\n" +
		"<html></html>"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := d.Write("PAGE"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "<html></html>" {
		t.Errorf("second write repeated the header block: %q", buf.String())
	}

	buf.Reset()
	d.ResetOutput()
	if len(d.Headers()) != 0 {
		t.Errorf("ResetOutput left headers: %v", d.Headers())
	}
	_ = d.Write("PAGE")
	if want := "Content-type: text/html; charset=ISO-8859-1\n\n<html></html>"; buf.String() != want {
		t.Errorf("after ResetOutput: %q, want %q", buf.String(), want)
	}
}

func TestWrite_ExplicitContentType(t *testing.T) {
	var buf bytes.Buffer
	d := New()
	d.SetOutput(&buf)
	d.AddHeader("content-type", "text/plain")
	d.Assign("BODY", "ok")
	if err := d.Write("BODY"); err != nil {
		t.Fatal(err)
	}
	if want := "content-type: text/plain\n\nok"; buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestWrite_NoHeader(t *testing.T) {
	var buf bytes.Buffer
	d := New()
	d.SetOutput(&buf)
	d.SetNoHeader()
	d.Assign("X", "plain")
	_ = d.Write("X")
	if buf.String() != "plain" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWrite_Errors(t *testing.T) {
	d := New()
	d.SetOutput(io.Discard)
	if err := d.Write("NOPE"); !errors.Is(err, ErrUndefinedMacro) {
		t.Errorf("Write(undefined) error = %v", err)
	}

	d.ResetOutput()
	d.SetOutput(failingWriter{n: -1})
	d.Assign("X", "data")
	if err := d.Write("X"); !errors.Is(err, ErrWriteFailure) {
		t.Errorf("failing sink: error = %v", err)
	}

	d.SetNoHeader()
	d.SetOutput(failingWriter{n: 2})
	err := d.Write("X")
	if !errors.Is(err, ErrWriteFailure) || !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("short write: error = %v", err)
	}
	if d.ErrorString() == "" {
		t.Error("ErrorString() should describe the failure")
	}
}

func TestCookie_String(t *testing.T) {
	c := Cookie{
		Name:    "ck",
		Value:   "v",
		Expires: time.Date(2000, 1, 1, 1, 1, 1, 0, time.UTC),
		Path:    "/",
		Domain:  "example.com",
		Secure:  true,
	}
	want := "ck=v; expires=Sat, 01-Jan-2000 01:01:01 GMT; path=/; domain=example.com; secure"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (Cookie{Name: "a", Value: "b"}).String(); got != "a=b;" {
		t.Errorf("minimal cookie = %q", got)
	}
}

func TestAccessorsClearLastError(t *testing.T) {
	d := New()
	accessors := map[string]func(){
		"Headers":    func() { d.Headers() },
		"RemoteUser": func() { d.RemoteUser() },
	}
	for name, call := range accessors {
		if err := d.EvaluatePlain("OUT", "missing"); err == nil {
			t.Fatal("EvaluatePlain of a missing template should fail")
		}
		call()
		if err := d.Err(); err != nil {
			t.Errorf("%s left the last error set: %v", name, err)
		}
	}
}

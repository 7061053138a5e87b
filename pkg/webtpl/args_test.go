package webtpl

import (
	"bytes"
	"mime/multipart"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadArgs_QueryAndCookies(t *testing.T) {
	d := New()
	err := d.LoadArgs(envOf(map[string]string{
		"QUERY_STRING": "a=1&b=x+y&a=2&c=%41%zz&&flag&na%6De=v",
		"HTTP_COOKIE":  "s=1; t=2;s=3",
		"REMOTE_USER":  "alice",
	}), nil)
	if err != nil {
		t.Fatalf("LoadArgs() error = %v", err)
	}

	tests := []struct {
		name, want string
	}{
		{"a", "1"},
		{"b", "x y"},
		{"c", "A%zz"},
		{"flag", ""},
		{"name", "v"},
	}
	for _, tt := range tests {
		if got, ok := d.Arg(tt.name); !ok || got != tt.want {
			t.Errorf("Arg(%q) = %q, %v; want %q", tt.name, got, ok, tt.want)
		}
	}
	if got := d.ArgList("a"); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("ArgList(a) = %v", got)
	}
	if _, ok := d.Arg("missing"); ok {
		t.Error("Arg(missing) should report false")
	}

	if v, _ := d.Cookie("s"); v != "3" {
		t.Errorf("repeated cookie should keep the last value, got %q", v)
	}
	if v, _ := d.Cookie("t"); v != "2" {
		t.Errorf("Cookie(t) = %q", v)
	}
	if d.RemoteUser() != "alice" {
		t.Errorf("RemoteUser() = %q", d.RemoteUser())
	}
}

func TestLoadArgs_URLEncodedBody(t *testing.T) {
	d := New()
	body := "p=q%0D%0A&a=body&ignored=beyond"
	n := len("p=q%0D%0A&a=body")
	err := d.LoadArgs(envOf(map[string]string{
		"CONTENT_LENGTH": strconv.Itoa(n),
		"CONTENT_TYPE":   "application/x-www-form-urlencoded; charset=UTF-8",
		"QUERY_STRING":   "a=query",
	}), strings.NewReader(body))
	if err != nil {
		t.Fatalf("LoadArgs() error = %v", err)
	}

	var names []string
	for _, m := range d.Args() {
		names = append(names, m.Name+"="+m.Value)
	}
	if want := []string{"p=q", "a=body", "a=query"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Args() = %v, want %v", names, want)
	}
	if _, ok := d.Arg("ignored"); ok {
		t.Error("bytes past CONTENT_LENGTH must not be read")
	}
}

func TestLoadArgs_Multipart(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("title", "hello\r\nworld"); err != nil {
		t.Fatal(err)
	}
	fw, err := w.CreateFormFile("upload", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("raw\r\nbytes"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	d := New()
	err = d.LoadArgs(envOf(map[string]string{
		"CONTENT_LENGTH": strconv.Itoa(buf.Len()),
		"CONTENT_TYPE":   w.FormDataContentType(),
	}), &buf)
	if err != nil {
		t.Fatalf("LoadArgs() error = %v", err)
	}

	if got, _ := d.Arg("title"); got != "hello\nworld" {
		t.Errorf("Arg(title) = %q", got)
	}
	if _, ok := d.Arg("upload"); ok {
		t.Error("file parts must not appear as arguments")
	}
	o, ok := d.Octet("upload")
	if !ok {
		t.Fatal("Octet(upload) not found")
	}
	if string(o.Data) != "raw\r\nbytes" {
		t.Errorf("octet data = %q, want bytes unchanged", o.Data)
	}
	if o.Filename != "notes.txt" || o.ContentType != "application/octet-stream" {
		t.Errorf("octet metadata = %q, %q", o.Filename, o.ContentType)
	}
}

func TestLoadArgs_BadMultipart(t *testing.T) {
	d := New()
	body := "--xyz\r\nnot a header\r\n"
	err := d.LoadArgs(envOf(map[string]string{
		"CONTENT_LENGTH": strconv.Itoa(len(body)),
		"CONTENT_TYPE":   "multipart/form-data",
	}), strings.NewReader(body))
	if err == nil {
		t.Fatal("multipart body without boundary should fail")
	}
}

func TestLoadArgs_Replaces(t *testing.T) {
	d := New()
	_ = d.LoadArgs(envOf(map[string]string{"QUERY_STRING": "a=1", "HTTP_COOKIE": "c=1"}), nil)
	_ = d.LoadArgs(envOf(map[string]string{"QUERY_STRING": "b=2"}), nil)
	if _, ok := d.Arg("a"); ok {
		t.Error("LoadArgs should replace earlier arguments")
	}
	if _, ok := d.Cookie("c"); ok {
		t.Error("LoadArgs should replace earlier cookies")
	}
	d.ScanArgs("x=%3C")
	if v, _ := d.Arg("x"); v != "<" {
		t.Errorf("ScanArgs should add to the current arguments, got %q", v)
	}
}

func TestDecodeFormValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a+b%20c", "a b c"},
		{"100%", "100%"},
		{"%2", "%2"},
		{"%4a%4A", "JJ"},
		{"line\r\nnext\r\n", "line\nnext"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DecodeFormValue(tt.in); got != tt.want {
			t.Errorf("DecodeFormValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeHTML(t *testing.T) {
	got := EscapeHTML(`<a href="x">&amp;</a>`)
	want := "&lt;a href=&quot;x&quot;&gt;&amp;amp;&lt;/a&gt;"
	if got != want {
		t.Errorf("EscapeHTML() = %q, want %q", got, want)
	}
}

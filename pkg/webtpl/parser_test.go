package webtpl

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
)

func TestLoad_Items(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string // listText of the root
	}{
		{"plain text", "hello\nworld\n", "hello\nworld\n"},
		{"macros", "a {x} b {y=z}\n", "a {m} b {m}\n"},
		{"not tokens", "{} { x } {a-b} {a=b\n", "{} { x } {a-b} {a=b\n"},
		{"marker line", "top\n  <!-- BEGIN DYNAMIC BLOCK: row -->  \nin\n<!-- END DYNAMIC BLOCK: row -->\nend\n", "top\n<row>end\n"},
		{"inline markers", "a<!-- BDB: r -->b<!-- EDB: r -->c\n", "a<r>c\n"},
		{"block first", "<!-- BDB: r -->x\n<!-- EDB: r -->\n", "<r>"},
		{"no closing dashes", "<!-- BDB: r\nx\n<!-- EDB: r\n", "<r>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			if err := d.LoadString("t", tt.src); err != nil {
				t.Fatalf("LoadString() error = %v", err)
			}
			tr, _ := d.find("t")
			if got := listText(tr, rootTemplate); got != tt.want {
				t.Errorf("root items = %q, want %q", got, tt.want)
			}
			assertListConsistent(t, tr, rootTemplate)
		})
	}
}

func TestLoad_BlockContent(t *testing.T) {
	d := New()
	src := "<table>\n<!-- BDB: row -->\n<tr>{name}<!-- BDB: cell --><td>{v}</td><!-- EDB: cell --></tr>\n<!-- EDB: row -->\n</table>\n"
	if err := d.LoadString("t", src); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	tr, row := d.find("t.row")
	if tr == nil {
		t.Fatal("t.row not found")
	}
	if got, want := listText(tr, row), "<tr>{m}<cell></tr>\n"; got != want {
		t.Errorf("row items = %q, want %q", got, want)
	}
	_, cell := d.find("t.row.cell")
	if got, want := listText(tr, cell), "<td>{m}</td>"; got != want {
		t.Errorf("cell items = %q, want %q", got, want)
	}
	if _, c := d.find("t.cell"); c != noTemplate {
		t.Error("nested block must not resolve directly under the root")
	}
	for _, name := range []string{"name", "v"} {
		if _, ok := d.Macros().Lookup(name); !ok {
			t.Errorf("macro %q should be defined by the parse", name)
		}
	}
}

func TestLoad_Comments(t *testing.T) {
	d := New()
	d.SetComments("NOTE", "ENDNOTE")
	src := "a\nNOTE start\n{hidden}\n<!-- BDB: x -->\nENDNOTE here\nb\n"
	if err := d.LoadString("multi", src); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if _, ok := d.Macros().Lookup("hidden"); ok {
		t.Error("macro inside a comment must not be defined")
	}
	_ = d.EvaluatePlain("OUT", "multi")
	if got, _ := d.MacroValue("OUT"); got != "a\nb\n" {
		t.Errorf("multi-line comment: got %q", got)
	}

	d.SetComments("#", "")
	if err := d.LoadString("single", "# one\nkeep\n# two\n"); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	_ = d.EvaluatePlain("OUT", "single")
	if got, _ := d.MacroValue("OUT"); got != "keep\n" {
		t.Errorf("single-line comment: got %q", got)
	}

	d.SetComments("", "ignored")
	if err := d.LoadString("none", "# kept\n"); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	_ = d.EvaluatePlain("OUT", "none")
	if got, _ := d.MacroValue("OUT"); got != "# kept\n" {
		t.Errorf("disabled comments: got %q", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		comments [2]string
		src      string
		kind     error
		msg      string
	}{
		{"mismatched end", [2]string{}, "<!-- BDB: a -->\nx\n<!-- EDB: b -->\n", ErrMalformedBlockNesting, "block a ended with b"},
		{"unterminated block", [2]string{}, "<!-- BDB: a -->\nx\n", ErrMalformedBlockNesting, "block a did not end"},
		{"end outside block", [2]string{}, "x\n<!-- EDB: a -->\n", ErrMalformedBlockNesting, "outside any block"},
		{"unnamed block", [2]string{}, "<!-- BDB: -->\n<!-- EDB: -->\n", ErrMalformedBlockNesting, "without a name"},
		{"unterminated comment", [2]string{"NOTE", "ENDNOTE"}, "a\nNOTE\nb\n", ErrUnterminatedComment, "comment in t did not end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			d.SetComments(tt.comments[0], tt.comments[1])
			if err := d.LoadString("t", "previous\n"); err != nil {
				t.Fatalf("setup load failed: %v", err)
			}
			err := d.LoadString("t", tt.src)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("LoadString() error = %v, want kind %v", err, tt.kind)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q should mention %q", err, tt.msg)
			}
			if d.Has("t") {
				t.Error("failed load must leave no template under its name")
			}
			if d.Err() != err || d.ErrorString() == "" {
				t.Errorf("last error not recorded: Err() = %v", d.Err())
			}
		})
	}
}

func TestLoad_ReadFailure(t *testing.T) {
	d := New()
	boom := errors.New("boom")
	err := d.Load("t", iotest.ErrReader(boom))
	if !errors.Is(err, ErrSourceRead) {
		t.Fatalf("expected ErrSourceRead, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("underlying error should be wrapped, got %v", err)
	}

	err = d.LoadFile("page", filepath.Join(t.TempDir(), "not-there.tpl"))
	if !errors.Is(err, ErrSourceRead) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file: got %v", err)
	}
}

func TestLoad_ReplacesAndOrders(t *testing.T) {
	d := New()
	_ = d.LoadString("a", "A\n")
	_ = d.LoadString("b", "B\n")
	_ = d.LoadString("a", "A2\n")
	got := d.Templates()
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("Templates() = %v, want [b a]", got)
	}
	if !d.Remove("b") || d.Remove("b") {
		t.Error("Remove should succeed exactly once")
	}
}

package webtpl

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const rowSource = "Hi {name}!\n<!-- BDB: row -->{x}, <!-- EDB: row -->\nDone\n"

func mustLoad(t *testing.T, d *Document, name, src string) {
	t.Helper()
	if err := d.LoadString(name, src); err != nil {
		t.Fatalf("LoadString(%q) error = %v", name, err)
	}
}

func render(t *testing.T, d *Document, path string) string {
	t.Helper()
	if err := d.EvaluatePlain("OUT", path); err != nil {
		t.Fatalf("EvaluatePlain(%q) error = %v", path, err)
	}
	out, _ := d.MacroValue("OUT")
	return out
}

func evalRows(t *testing.T, d *Document, path, macro string, values ...string) {
	t.Helper()
	for _, v := range values {
		d.Assign(macro, v)
		if err := d.EvaluateDynamic(path); err != nil {
			t.Fatalf("EvaluateDynamic(%q) error = %v", path, err)
		}
	}
}

func TestEvaluate_RowsAccumulate(t *testing.T) {
	d := New()
	mustLoad(t, d, "t", rowSource)
	d.Assign("name", "World")
	evalRows(t, d, "t.row", "x", "1", "2", "3")

	if got, want := render(t, d, "t"), "Hi World!\n1, 2, 3, \nDone\n"; got != want {
		t.Errorf("EvaluatePlain() = %q, want %q", got, want)
	}

	tr, _ := d.find("t")
	if n := countGenerated(tr, rootTemplate); n != 1 {
		t.Errorf("consecutive renderings should merge into one generated item, got %d", n)
	}
}

func TestEvaluate_PlainIsIdempotent(t *testing.T) {
	d := New()
	mustLoad(t, d, "t", rowSource)
	d.Assign("name", "World")
	evalRows(t, d, "t.row", "x", "a", "b")

	first := render(t, d, "t")
	second := render(t, d, "t")
	if first != second {
		t.Errorf("second render differs: %q vs %q", first, second)
	}

	// Renderings after a plain evaluation land after the earlier ones.
	evalRows(t, d, "t.row", "x", "c")
	if got, want := render(t, d, "t"), "Hi World!\na, b, c, \nDone\n"; got != want {
		t.Errorf("EvaluatePlain() = %q, want %q", got, want)
	}
}

func TestEvaluate_NoRenderings(t *testing.T) {
	d := New()
	mustLoad(t, d, "t", rowSource)
	if got, want := render(t, d, "t"), "Hi !\n\nDone\n"; got != want {
		t.Errorf("EvaluatePlain() = %q, want %q", got, want)
	}
}

func TestEvaluate_NestedBlocksRestartPerRow(t *testing.T) {
	d := New()
	mustLoad(t, d, "t", "<table>\n<!-- BDB: row -->\n<tr>{name}:<!-- BDB: cell -->[{v}]<!-- EDB: cell --></tr>\n<!-- EDB: row -->\n</table>\n")

	d.Assign("name", "a")
	evalRows(t, d, "t.row.cell", "v", "1", "2")
	if err := d.EvaluateDynamic("t.row"); err != nil {
		t.Fatal(err)
	}
	d.Assign("name", "b")
	evalRows(t, d, "t.row.cell", "v", "3")
	if err := d.EvaluateDynamic("t.row"); err != nil {
		t.Fatal(err)
	}

	want := "<table>\n<tr>a:[1][2]</tr>\n<tr>b:[3]</tr>\n</table>\n"
	if got := render(t, d, "t"); got != want {
		t.Errorf("EvaluatePlain() = %q, want %q", got, want)
	}
}

func TestEvaluate_SiblingBlocksKeepPosition(t *testing.T) {
	d := New()
	mustLoad(t, d, "t", "<!-- BDB: a -->A{n}<!-- EDB: a --><!-- BDB: b -->B{n}<!-- EDB: b -->\n")

	evalRows(t, d, "t.a", "n", "1")
	evalRows(t, d, "t.b", "n", "2")
	evalRows(t, d, "t.a", "n", "3")

	if got, want := render(t, d, "t"), "A1A3B2\n"; got != want {
		t.Errorf("EvaluatePlain() = %q, want %q", got, want)
	}
}

func TestEvaluate_InlineBlock(t *testing.T) {
	d := New()
	mustLoad(t, d, "t", "a<!-- BDB: r -->b<!-- EDB: r -->c\n")
	for i := 0; i < 2; i++ {
		if err := d.EvaluateDynamic("t.r"); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := render(t, d, "t"), "abbc\n"; got != want {
		t.Errorf("EvaluatePlain() = %q, want %q", got, want)
	}
}

func TestEvaluate_EmptyRenderingIsSpliced(t *testing.T) {
	d := New()
	mustLoad(t, d, "t", "<!-- BDB: e --><!-- EDB: e -->\n")
	if err := d.EvaluateDynamic("t.e"); err != nil {
		t.Fatal(err)
	}
	tr, _ := d.find("t")
	if n := countGenerated(tr, rootTemplate); n != 1 {
		t.Errorf("expected one generated item for an empty rendering, got %d", n)
	}
	if got := render(t, d, "t"); got != "\n" {
		t.Errorf("EvaluatePlain() = %q, want %q", got, "\n")
	}
}

func TestEvaluate_Macros(t *testing.T) {
	d := New()
	d.Assign("who", "Bob")
	mustLoad(t, d, "t", "{greeting=Hello}, {who=nobody}. {missing}|{blank=}\n")

	if got, want := render(t, d, "t"), "Hello, nobody. |\n"; got != want {
		t.Errorf("defaults: got %q, want %q", got, want)
	}

	d.Assign("greeting", "Hi")
	d.AssignInt("missing", 42)
	if got, want := render(t, d, "t"), "Hi, nobody. 42|\n"; got != want {
		t.Errorf("assigned: got %q, want %q", got, want)
	}

	d.Assign("who", "")
	if _, ok := d.MacroValue("who"); ok {
		t.Error("assigning an empty value should clear the macro")
	}
	if got, want := render(t, d, "t"), "Hi, . 42|\n"; got != want {
		t.Errorf("cleared: got %q, want %q", got, want)
	}
}

func TestEvaluate_DefaultReplacesValue(t *testing.T) {
	d := New()
	d.Assign("g", "before")
	mustLoad(t, d, "t", "{g=A}{g=B}|{g}\n")
	if got, want := render(t, d, "t"), "BB|B\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	d.Assign("g", "after")
	if got, want := render(t, d, "t"), "afterafter|after\n"; got != want {
		t.Errorf("assigned after load: got %q, want %q", got, want)
	}

	mustLoad(t, d, "u", "{g=C}\n")
	if got, _ := d.MacroValue("g"); got != "C" {
		t.Errorf("loading another template with a default: g = %q, want C", got)
	}
}

func TestEvaluate_MacrosAreShared(t *testing.T) {
	d := New()
	mustLoad(t, d, "header", "<h1>{title}</h1>\n")
	mustLoad(t, d, "page", "{HEADER}<p>{title}</p>\n")

	d.Assign("title", "News")
	if err := d.EvaluatePlain("HEADER", "header"); err != nil {
		t.Fatal(err)
	}
	if got, want := render(t, d, "page"), "<h1>News</h1>\n<p>News</p>\n"; got != want {
		t.Errorf("EvaluatePlain() = %q, want %q", got, want)
	}
}

func TestEvaluate_NotFound(t *testing.T) {
	d := New()
	mustLoad(t, d, "t", rowSource)

	for _, path := range []string{"nope", "nope.row", "t.nope", "t.row.deeper"} {
		if err := d.EvaluateDynamic(path); !errors.Is(err, ErrTemplateNotFound) {
			t.Errorf("EvaluateDynamic(%q) error = %v, want ErrTemplateNotFound", path, err)
		}
	}
	err := d.EvaluateDynamic("t")
	if !errors.Is(err, ErrTemplateNotFound) || !strings.Contains(err.Error(), "not a dynamic block") {
		t.Errorf("EvaluateDynamic on a plain template: got %v", err)
	}
	if err := d.EvaluatePlain("OUT", "missing"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("EvaluatePlain(missing) error = %v", err)
	}
	if d.Err() == nil {
		t.Error("failed evaluation should be recorded")
	}
	if err := d.EvaluatePlain("OUT", "t.row"); err != nil {
		t.Errorf("EvaluatePlain on a block path: %v", err)
	}
	if d.Err() != nil {
		t.Error("successful operation should clear the last error")
	}
}

func TestEvaluate_ReloadDropsBlocks(t *testing.T) {
	d := New()
	mustLoad(t, d, "t", rowSource)
	d.Assign("name", "World")
	evalRows(t, d, "t.row", "x", "1")

	mustLoad(t, d, "t", "new {name}\n")
	if err := d.EvaluateDynamic("t.row"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("old block should be gone, got %v", err)
	}
	if got, want := render(t, d, "t"), "new World\n"; got != want {
		t.Errorf("EvaluatePlain() = %q, want %q", got, want)
	}
	if names := d.Templates(); len(names) != 1 || names[0] != "t" {
		t.Errorf("Templates() = %v", names)
	}
}

func TestReset(t *testing.T) {
	d := New()
	mustLoad(t, d, "t", "<ul>\n<!-- BDB: li --><li>{x}<!-- BDB: tag -->#{x}<!-- EDB: tag --></li>\n<!-- EDB: li --></ul>\n")

	evalRows(t, d, "t.li.tag", "x", "p")
	evalRows(t, d, "t.li", "x", "1", "2")
	if got, want := render(t, d, "t"), "<ul>\n<li>1#p</li>\n<li>2</li>\n</ul>\n"; got != want {
		t.Fatalf("before reset: got %q, want %q", got, want)
	}

	if err := d.Reset("t"); err != nil {
		t.Fatal(err)
	}
	if got, want := render(t, d, "t"), "<ul>\n</ul>\n"; got != want {
		t.Errorf("after reset: got %q, want %q", got, want)
	}
	evalRows(t, d, "t.li", "x", "3")
	if got, want := render(t, d, "t"), "<ul>\n<li>3</li>\n</ul>\n"; got != want {
		t.Errorf("after reset and new row: got %q, want %q", got, want)
	}
	if err := d.Reset("t.zzz"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Reset(missing) error = %v", err)
	}
}

func BenchmarkEvaluateDynamic(b *testing.B) {
	d := New()
	if err := d.LoadString("t", "<table>\n<!-- BDB: row -->\n<tr><td>{id}</td><td>{title}</td></tr>\n<!-- EDB: row -->\n</table>\n"); err != nil {
		b.Fatal(err)
	}
	d.Assign("title", "benchmark row")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.AssignInt("id", i)
		_ = d.EvaluateDynamic("t.row")
	}
}

func BenchmarkLoad(b *testing.B) {
	var src strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&src, "<p>{a%d} text {b=%d}</p>\n<!-- BDB: r%d -->{c}<!-- EDB: r%d -->\n", i, i, i, i)
	}
	s := src.String()
	d := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = d.LoadString("t", s)
	}
}

/*
Package webtpl implements a small text-templating engine for web pages.

A template source is plain text with two kinds of markup. Macro tokens, written
{name} or {name=default}, are replaced by the value assigned to the macro at
render time. A default is assigned when the template loads, replacing any
earlier value. Dynamic blocks are delimited by HTML comments,

	<!-- BEGIN DYNAMIC BLOCK: row -->
	<tr><td>{id}</td><td>{title}</td></tr>
	<!-- END DYNAMIC BLOCK: row -->

(or the short forms <!-- BDB: row --> and <!-- EDB: row -->). A block is not
expanded when its parent renders. Instead the caller assigns the macros for one
repetition and calls EvaluateDynamic with the block's dotted path; each call
appends one more rendering at the block's position:

	doc := webtpl.New()
	if err := doc.LoadFile("page", "page.tpl"); err != nil {
		return err
	}
	for _, r := range rows {
		doc.Assign("id", r.ID)
		doc.Assign("title", webtpl.EscapeHTML(r.Title))
		_ = doc.EvaluateDynamic("page.row")
	}
	_ = doc.EvaluatePlain("PAGE", "page")
	return doc.Write("PAGE")

A Document also carries the CGI plumbing the engine is usually paired with:
decoded form arguments and cookies, outgoing headers and cookies, and the output
sink that receives the header block followed by a rendered macro.

A Document is not safe for concurrent use. Independent Documents share nothing.
*/
package webtpl

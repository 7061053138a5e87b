package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/CTAG07/webtpl/pkg/dataset"
	"github.com/CTAG07/webtpl/pkg/templating"
	"github.com/CTAG07/webtpl/pkg/webtpl"
)

// pageMacro is the macro every page is rendered into.
const pageMacro = "PAGE"

// pageRequest is the CGI view of one request: the environment, the body
// announced by CONTENT_LENGTH and the client address.
type pageRequest struct {
	env        func(string) string
	body       io.Reader
	remoteAddr string
}

// PageRenderer builds pages from configured templates and queries. It is
// shared by the HTTP server and CGI mode.
type PageRenderer struct {
	tm     *templating.TemplateManager
	feeder *dataset.Feeder
	hits   *dataset.HitCounter
	logger *slog.Logger
}

// NewPageRenderer returns a PageRenderer. hits may be nil to disable counting.
func NewPageRenderer(tm *templating.TemplateManager, feeder *dataset.Feeder, hits *dataset.HitCounter, logger *slog.Logger) *PageRenderer {
	return &PageRenderer{tm: tm, feeder: feeder, hits: hits, logger: logger}
}

// Render returns a Document holding the rendered page in the PAGE macro and
// the page's headers queued. Form arguments are available to the template
// HTML-escaped as ARG_<name>, alongside REMOTE_ADDR, REMOTE_USER and HITS.
func (p *PageRenderer) Render(ctx context.Context, page PageConfig, req pageRequest) (*webtpl.Document, error) {
	doc := p.tm.NewDocument()
	if !doc.Has(page.Template) {
		return nil, fmt.Errorf("page %s: template %q is not loaded", page.Path, page.Template)
	}
	if err := doc.LoadArgs(req.env, req.body); err != nil {
		return nil, fmt.Errorf("page %s: %w", page.Path, err)
	}

	seen := make(map[string]struct{})
	for _, a := range doc.Args() {
		if _, ok := seen[a.Name]; ok {
			continue
		}
		seen[a.Name] = struct{}{}
		doc.Assign("ARG_"+a.Name, webtpl.EscapeHTML(a.Value))
	}
	for name, value := range page.Macros {
		doc.Assign(name, value)
	}
	doc.Assign("REMOTE_ADDR", req.remoteAddr)
	doc.Assign("REMOTE_USER", webtpl.EscapeHTML(doc.RemoteUser()))

	if p.hits != nil {
		n, err := p.hits.Record(ctx, page.Path)
		if err != nil {
			p.logger.Warn("Failed to record page hit", "path", page.Path, "error", err)
		} else {
			doc.AssignInt("HITS", int(n))
		}
	}

	for _, b := range page.Blocks {
		args := make([]any, len(b.Params))
		for i, name := range b.Params {
			v, _ := doc.Arg(name)
			args[i] = v
		}
		f := *p.feeder
		f.Raw = b.Raw
		f.MaxRows = b.MaxRows
		if _, err := f.Fill(ctx, doc, page.Template+"."+b.Block, b.Query, args...); err != nil {
			return nil, fmt.Errorf("page %s: block %s: %w", page.Path, b.Block, err)
		}
	}

	names := make([]string, 0, len(page.Headers))
	for name := range page.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.AddHeader(name, page.Headers[name])
	}

	if err := doc.EvaluatePlain(pageMacro, page.Template); err != nil {
		return nil, fmt.Errorf("page %s: %w", page.Path, err)
	}
	return doc, nil
}

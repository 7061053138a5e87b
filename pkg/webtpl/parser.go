package webtpl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Block marker labels, matched after "<!--" and optional blanks.
var (
	beginLabels = []string{"BEGIN DYNAMIC BLOCK:", "BDB:"}
	endLabels   = []string{"END DYNAMIC BLOCK:", "EDB:"}
)

// parser builds one tree from a line-oriented source.
type parser struct {
	tr           *tree
	macros       *MacroTable
	cur          tmplID
	commentStart string
	commentEnd   string
	inComment    bool
	line         int
}

// marker is a block marker found in a line. start and end are byte offsets;
// end is past the closing "-->", or the end of the line if there is none.
type marker struct {
	start, end int
	begin      bool
	name       string
}

// token is a {name} or {name=default} macro token.
type token struct {
	start, end int
	name       string
	def        string
	hasDef     bool
}

func (p *parser) parse(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			p.line++
			if perr := p.readLine(line); perr != nil {
				return perr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return p.fail(ErrSourceRead, "", err)
		}
	}
	if p.cur != rootTemplate {
		return p.fail(ErrMalformedBlockNesting, fmt.Sprintf("block %s did not end", p.tr.template(p.cur).name), nil)
	}
	if p.inComment {
		return p.fail(ErrUnterminatedComment, fmt.Sprintf("comment in %s did not end", p.tr.name()), nil)
	}
	return nil
}

func (p *parser) fail(kind error, msg string, cause error) error {
	return &Error{Op: "load", Kind: kind, Template: p.tr.name(), Line: p.line, Msg: msg, Err: cause}
}

func (p *parser) readLine(line string) error {
	if p.inComment {
		if strings.HasPrefix(line, p.commentEnd) {
			p.inComment = false
		}
		return nil
	}
	if p.commentStart != "" && strings.HasPrefix(line, p.commentStart) {
		if p.commentEnd != "" {
			p.inComment = true
		}
		return nil
	}

	// A line holding only a marker contributes no text, not even its newline.
	trimmed := strings.TrimLeft(line, " \t")
	if mk, ok := findMarker(trimmed, 0); ok && mk.start == 0 && isBlank(trimmed[mk.end:]) {
		return p.marker(mk)
	}

	pos := 0
	mk, hasMarker := findMarker(line, 0)
	for pos < len(line) {
		limit := len(line)
		if hasMarker {
			limit = mk.start
		}
		if tok, ok := findToken(line, pos, limit); ok {
			p.text(line[pos:tok.start])
			p.macro(tok)
			pos = tok.end
			if hasMarker && pos > mk.start {
				mk, hasMarker = findMarker(line, pos)
			}
			continue
		}
		if hasMarker {
			p.text(line[pos:mk.start])
			if err := p.marker(mk); err != nil {
				return err
			}
			pos = mk.end
			mk, hasMarker = findMarker(line, pos)
			continue
		}
		p.text(line[pos:])
		break
	}
	return nil
}

func (p *parser) text(s string) {
	if s != "" {
		p.tr.appendItem(p.cur, textContent(s))
	}
}

func (p *parser) macro(tok token) {
	var i int
	if tok.hasDef {
		i = p.macros.Set(tok.name, tok.def)
	} else {
		i = p.macros.Define(tok.name)
	}
	p.tr.appendItem(p.cur, macroContent(i))
}

func (p *parser) marker(mk marker) error {
	if mk.name == "" {
		return p.fail(ErrMalformedBlockNesting, "block marker without a name", nil)
	}
	if mk.begin {
		p.cur = p.tr.openBlock(p.cur, mk.name)
		return nil
	}
	if p.cur == rootTemplate {
		return p.fail(ErrMalformedBlockNesting, fmt.Sprintf("end of block %s outside any block", mk.name), nil)
	}
	if cur := p.tr.template(p.cur).name; cur != mk.name {
		return p.fail(ErrMalformedBlockNesting, fmt.Sprintf("block %s ended with %s", cur, mk.name), nil)
	}
	p.cur = p.tr.template(p.cur).parent
	return nil
}

// findMarker returns the first block marker in s at or after from.
func findMarker(s string, from int) (marker, bool) {
	for from < len(s) {
		i := strings.Index(s[from:], "<!--")
		if i < 0 {
			return marker{}, false
		}
		start := from + i
		rest := strings.TrimLeft(s[start+4:], " \t")
		off := len(s) - len(rest)
		if label, begin, ok := matchLabel(rest); ok {
			mk := marker{start: start, begin: begin}
			n := off + len(label)
			for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
				n++
			}
			e := n
			for e < len(s) && isNameByte(s[e]) {
				e++
			}
			mk.name = s[n:e]
			if c := strings.Index(s[e:], "-->"); c >= 0 {
				mk.end = e + c + 3
			} else {
				mk.end = len(s)
			}
			return mk, true
		}
		from = start + 4
	}
	return marker{}, false
}

func matchLabel(s string) (label string, begin, ok bool) {
	for _, l := range beginLabels {
		if strings.HasPrefix(s, l) {
			return l, true, true
		}
	}
	for _, l := range endLabels {
		if strings.HasPrefix(s, l) {
			return l, false, true
		}
	}
	return "", false, false
}

// findToken returns the first macro token in s starting in [from, limit).
func findToken(s string, from, limit int) (token, bool) {
	for from < limit {
		i := strings.IndexByte(s[from:limit], '{')
		if i < 0 {
			return token{}, false
		}
		start := from + i
		j := start + 1
		for j < len(s) && isNameByte(s[j]) {
			j++
		}
		if j > start+1 && j < len(s) {
			switch s[j] {
			case '}':
				return token{start: start, end: j + 1, name: s[start+1 : j]}, true
			case '=':
				if k := strings.IndexByte(s[j+1:], '}'); k >= 0 {
					return token{
						start:  start,
						end:    j + 1 + k + 1,
						name:   s[start+1 : j],
						def:    s[j+1 : j+1+k],
						hasDef: true,
					}, true
				}
			}
		}
		from = start + 1
	}
	return token{}, false
}

func isNameByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

package webtpl

import "strings"

// render concatenates t's items, resolving macro references against macros.
// Dynamic items contribute nothing but have their block's anchor reset to the
// item before them. With consume set, generated text in t's own list is
// removed once it has been copied.
func (tr *tree) render(t tmplID, macros *MacroTable, consume bool) string {
	var b strings.Builder
	b.Grow(tr.renderLen(t, macros))
	prev := noItem
	for id := tr.template(t).head; id != noItem; {
		it := tr.item(id)
		switch c := it.content.(type) {
		case textContent:
			b.WriteString(string(c))
		case generatedContent:
			b.Write(c)
			if consume && prev != noItem {
				id = tr.removeAfter(prev)
				continue
			}
		case macroContent:
			b.WriteString(macros.value(int(c)))
		case dynamicContent:
			tr.template(tmplID(c)).anchor = prev
		}
		prev = id
		id = it.next
	}
	return b.String()
}

func (tr *tree) renderLen(t tmplID, macros *MacroTable) int {
	n := 0
	for id := tr.template(t).head; id != noItem; id = tr.item(id).next {
		switch c := tr.item(id).content.(type) {
		case textContent:
			n += len(c)
		case generatedContent:
			n += len(c)
		case macroContent:
			n += len(macros.value(int(c)))
		}
	}
	return n
}

// splice renders the dynamic block t and inserts the result into its parent's
// list after the block's anchor, merging with generated text already there.
// The anchor then moves to the inserted or merged item.
func (tr *tree) splice(t tmplID, macros *MacroTable) {
	s := tr.render(t, macros, true)
	tp := tr.template(t)
	anchor := tr.insertAfter(tp.anchor, generatedContent(s))
	tr.template(t).anchor = anchor
}

// clear removes all generated text below t and points every block anchor at
// the item that now precedes its Dynamic item.
func (tr *tree) clear(t tmplID) {
	prev := noItem
	for id := tr.template(t).head; id != noItem; {
		it := tr.item(id)
		switch c := it.content.(type) {
		case generatedContent:
			if prev != noItem {
				id = tr.removeAfter(prev)
				continue
			}
			it.content = generatedContent(nil)
		case dynamicContent:
			tr.template(tmplID(c)).anchor = prev
			tr.clear(tmplID(c))
		}
		prev = id
		id = tr.item(id).next
	}
}

package webtpl

import "strings"

// tmplID addresses a template in its tree's arena.
type tmplID int32

const (
	noTemplate tmplID = -1
	// rootTemplate is the plain template every tree is built around.
	rootTemplate tmplID = 0
)

// template is one named item list. The root of a tree is a plain template;
// every other template is a dynamic block owned by the Dynamic item that
// references it in its parent's list.
type template struct {
	name   string
	parent tmplID
	head   itemID
	tail   itemID
	// anchor is the item in the parent's list after which the next rendering
	// of this block is spliced. Reset on every render of the parent.
	anchor itemID
}

// tree holds one plain template and all of its dynamic descendants. Items and
// templates reference each other by index, so a tree is dropped as a whole
// when its plain template is replaced.
type tree struct {
	templates []template
	items     []item
	free      []itemID
}

func newTree(name string) *tree {
	tr := &tree{}
	tr.templates = append(tr.templates, template{
		name:   name,
		parent: noTemplate,
		head:   noItem,
		tail:   noItem,
		anchor: noItem,
	})
	return tr
}

func (tr *tree) name() string {
	return tr.templates[rootTemplate].name
}

func (tr *tree) template(t tmplID) *template {
	return &tr.templates[t]
}

// openBlock starts a dynamic child called name at the end of parent's list.
// A parent with an empty list first gets a zero-length text item so the block
// always has an anchor.
func (tr *tree) openBlock(parent tmplID, name string) tmplID {
	if tr.template(parent).tail == noItem {
		tr.appendItem(parent, textContent(""))
	}
	anchor := tr.template(parent).tail
	tr.templates = append(tr.templates, template{
		name:   name,
		parent: parent,
		head:   noItem,
		tail:   noItem,
		anchor: anchor,
	})
	child := tmplID(len(tr.templates) - 1)
	tr.appendItem(parent, dynamicContent(child))
	return child
}

// findChild returns the dynamic child of t called name.
func (tr *tree) findChild(t tmplID, name string) tmplID {
	for id := tr.template(t).head; id != noItem; id = tr.item(id).next {
		if d, ok := tr.item(id).content.(dynamicContent); ok && tr.template(tmplID(d)).name == name {
			return tmplID(d)
		}
	}
	return noTemplate
}

// resolve walks the block names below the root.
func (tr *tree) resolve(blocks []string) tmplID {
	t := rootTemplate
	for _, name := range blocks {
		if t = tr.findChild(t, name); t == noTemplate {
			return noTemplate
		}
	}
	return t
}

// path returns the dotted path of t.
func (tr *tree) path(t tmplID) string {
	var names []string
	for ; t != noTemplate; t = tr.template(t).parent {
		names = append(names, tr.template(t).name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, ".")
}

package webtpl

// itemID addresses an item in its tree's arena.
type itemID int32

const noItem itemID = -1

// content is the closed set of item variants.
type content interface {
	isContent()
}

// textContent is literal text copied from the source.
type textContent string

// macroContent references an entry of the document's substitution table.
type macroContent int

// dynamicContent references a child template in the same tree.
type dynamicContent tmplID

// generatedContent is text produced by evaluating a dynamic child.
type generatedContent []byte

func (textContent) isContent()      {}
func (macroContent) isContent()     {}
func (dynamicContent) isContent()   {}
func (generatedContent) isContent() {}

type item struct {
	next    itemID
	owner   tmplID
	content content
}

func (tr *tree) item(id itemID) *item {
	return &tr.items[id]
}

// newItem allocates an unlinked item, reusing a freed slot when one exists.
func (tr *tree) newItem(owner tmplID, c content) itemID {
	it := item{next: noItem, owner: owner, content: c}
	if n := len(tr.free); n > 0 {
		id := tr.free[n-1]
		tr.free = tr.free[:n-1]
		tr.items[id] = it
		return id
	}
	tr.items = append(tr.items, it)
	return itemID(len(tr.items) - 1)
}

// appendItem links a new item at the end of t's list in O(1).
func (tr *tree) appendItem(t tmplID, c content) itemID {
	id := tr.newItem(t, c)
	tp := tr.template(t)
	if tp.tail == noItem {
		tp.head = id
	} else {
		tr.item(tp.tail).next = id
	}
	tp.tail = id
	return id
}

// insertAfter links a new item directly after at, which must be a member of
// some template's list. Generated text inserted after generated text is merged
// into the existing item instead; the returned id is then at itself. Either
// way the returned item holds the inserted content and directly follows at,
// or is at.
func (tr *tree) insertAfter(at itemID, c content) itemID {
	if g, ok := c.(generatedContent); ok {
		if tr.mergeGenerated(at, g) {
			return at
		}
	}
	owner, next := tr.item(at).owner, tr.item(at).next
	id := tr.newItem(owner, c)
	tr.item(id).next = next
	tr.item(at).next = id
	if tp := tr.template(owner); tp.tail == at {
		tp.tail = id
	}
	return id
}

// mergeGenerated appends g to the generated text held by at. It reports
// false, changing nothing, when at does not hold generated text.
func (tr *tree) mergeGenerated(at itemID, g generatedContent) bool {
	it := tr.item(at)
	cur, ok := it.content.(generatedContent)
	if !ok {
		return false
	}
	it.content = append(cur, g...)
	return true
}

// removeAfter unlinks and frees the item following prev and returns the id of
// the item that now follows prev.
func (tr *tree) removeAfter(prev itemID) itemID {
	p := tr.item(prev)
	id := p.next
	if id == noItem {
		return noItem
	}
	next := tr.item(id).next
	p.next = next
	if tp := tr.template(p.owner); tp.tail == id {
		tp.tail = prev
	}
	tr.items[id] = item{next: noItem, owner: noTemplate}
	tr.free = append(tr.free, id)
	return next
}

// itemsOf returns the ids of t's list in order.
func (tr *tree) itemsOf(t tmplID) []itemID {
	var ids []itemID
	for id := tr.template(t).head; id != noItem; id = tr.item(id).next {
		ids = append(ids, id)
	}
	return ids
}

package webtpl

// Macro is a named, optionally valued substitution unit. Extra1 and Extra2 are
// opaque side slots; for uploaded files they hold the file name and the
// content type.
type Macro struct {
	Name   string
	Value  string
	Set    bool // false when the macro has no value
	Extra1 string
	Extra2 string
}

// MacroTable is an insertion-ordered collection of macros. Names are unique
// for entries created through Define or Set; Append adds same-named entries
// for multi-valued data. Entry indexes never change until Clear.
type MacroTable struct {
	macros []Macro
	first  map[string]int // name -> index of the first entry with that name
}

// NewMacroTable returns an empty table.
func NewMacroTable() *MacroTable {
	return &MacroTable{first: make(map[string]int)}
}

// Define returns the index of the macro called name, creating it without a
// value if it does not exist. An existing value is left untouched, so a value
// assigned before a template mentions the macro survives the parse.
func (t *MacroTable) Define(name string) int {
	if i, ok := t.first[name]; ok {
		return i
	}
	return t.add(Macro{Name: name})
}

// Set assigns value to the macro called name, creating it if needed, and
// returns its index.
func (t *MacroTable) Set(name, value string) int {
	i := t.Define(name)
	t.macros[i].Value = value
	t.macros[i].Set = true
	return i
}

// Unset removes the value of the macro called name. It reports whether the
// macro exists.
func (t *MacroTable) Unset(name string) bool {
	i, ok := t.first[name]
	if !ok {
		return false
	}
	t.macros[i].Value = ""
	t.macros[i].Set = false
	return true
}

// Append always adds a new entry, even when a macro called name already
// exists, and returns its index.
func (t *MacroTable) Append(m Macro) int {
	return t.add(m)
}

func (t *MacroTable) add(m Macro) int {
	i := len(t.macros)
	t.macros = append(t.macros, m)
	if _, ok := t.first[m.Name]; !ok {
		t.first[m.Name] = i
	}
	return i
}

// Lookup returns the first macro called name in insertion order.
func (t *MacroTable) Lookup(name string) (Macro, bool) {
	i, ok := t.first[name]
	if !ok {
		return Macro{}, false
	}
	return t.macros[i], true
}

// Values returns the values of every valued entry called name, in the order
// they were added.
func (t *MacroTable) Values(name string) []string {
	if _, ok := t.first[name]; !ok {
		return nil
	}
	var values []string
	for _, m := range t.macros {
		if m.Name == name && m.Set {
			values = append(values, m.Value)
		}
	}
	return values
}

// At returns the entry at index i.
func (t *MacroTable) At(i int) Macro {
	return t.macros[i]
}

// value returns the current bytes of entry i, empty if it has no value.
func (t *MacroTable) value(i int) string {
	return t.macros[i].Value
}

// Len returns the number of entries.
func (t *MacroTable) Len() int {
	return len(t.macros)
}

// All returns a copy of all entries in insertion order.
func (t *MacroTable) All() []Macro {
	out := make([]Macro, len(t.macros))
	copy(out, t.macros)
	return out
}

// Clear removes every entry.
func (t *MacroTable) Clear() {
	t.macros = nil
	t.first = make(map[string]int)
}

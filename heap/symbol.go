package heap

import "github.com/joshuapare/heapkit/internal/format"

// MakeSymbol allocates an uninterned symbol. Its value, function and
// property list start out nil.
func (h *Heap) MakeSymbol(name string) (Value, error) {
	s, err := h.MakeString(name)
	if err != nil {
		return 0, err
	}
	return h.makeSymbol(s)
}

func (h *Heap) makeSymbol(name Value) (Value, error) {
	if err := h.beginAlloc(name); err != nil {
		return 0, err
	}
	addr, err := h.allocCell(&h.symbols)
	if err != nil {
		return 0, err
	}
	h.initSymbol(addr, name)
	h.noteAlloc(KindSymbol, format.SymbolSize)
	return makeRef(addr, TagSymbol), nil
}

func (h *Heap) initSymbol(addr uint64, name Value) {
	h.setWord(addr+format.SymbolNameOffset, uint64(name))
	h.setWord(addr+format.SymbolValueOffset, uint64(h.nilV))
	h.setWord(addr+format.SymbolFunctionOffset, uint64(h.nilV))
	h.setWord(addr+format.SymbolPlistOffset, uint64(h.nilV))
}

// Intern returns the symbol registered under name, creating it if needed.
// Interned symbols are roots and are never reclaimed.
func (h *Heap) Intern(name string) (Value, error) {
	if sym, ok := h.obarray[name]; ok {
		return sym, nil
	}
	sym, err := h.MakeSymbol(name)
	if err != nil {
		return 0, err
	}
	h.obarray[name] = sym
	return sym, nil
}

// InternSoft returns the symbol registered under name, if any.
func (h *Heap) InternSoft(name string) (Value, bool) {
	sym, ok := h.obarray[name]
	return sym, ok
}

// Unintern removes name from the symbol table. The symbol itself lives on
// while referenced.
func (h *Heap) Unintern(name string) bool {
	if _, ok := h.obarray[name]; !ok {
		return false
	}
	delete(h.obarray, name)
	return true
}

func (h *Heap) interned(sym Value) bool {
	name, err := h.SymbolName(sym)
	if err != nil {
		return false
	}
	return h.obarray[name] == sym
}

// SymbolName returns the print name of a symbol.
func (h *Heap) SymbolName(sym Value) (string, error) {
	addr, err := h.objectAddr("symbol-name", sym, KindSymbol)
	if err != nil {
		return "", err
	}
	return h.StringText(Value(h.word(addr + format.SymbolNameOffset)))
}

func (h *Heap) symbolField(op string, sym Value, off uint64) (Value, error) {
	addr, err := h.objectAddr(op, sym, KindSymbol)
	if err != nil {
		return 0, err
	}
	return Value(h.word(addr + off)), nil
}

func (h *Heap) setSymbolField(op string, sym Value, off uint64, v Value) error {
	addr, err := h.objectAddr(op, sym, KindSymbol)
	if err != nil {
		return err
	}
	if err := h.checkMutable(op, sym); err != nil {
		return err
	}
	h.setWord(addr+off, uint64(v))
	return nil
}

// SymbolValue returns a symbol's value cell.
func (h *Heap) SymbolValue(sym Value) (Value, error) {
	return h.symbolField("symbol-value", sym, format.SymbolValueOffset)
}

// SetSymbolValue sets a symbol's value cell. nil and t are constants.
func (h *Heap) SetSymbolValue(sym, v Value) error {
	return h.setSymbolField("set", sym, format.SymbolValueOffset, v)
}

// SymbolFunction returns a symbol's function cell.
func (h *Heap) SymbolFunction(sym Value) (Value, error) {
	return h.symbolField("symbol-function", sym, format.SymbolFunctionOffset)
}

// SetSymbolFunction sets a symbol's function cell.
func (h *Heap) SetSymbolFunction(sym, fn Value) error {
	return h.setSymbolField("fset", sym, format.SymbolFunctionOffset, fn)
}

// SymbolPlist returns a symbol's property list.
func (h *Heap) SymbolPlist(sym Value) (Value, error) {
	return h.symbolField("symbol-plist", sym, format.SymbolPlistOffset)
}

// SetSymbolPlist replaces a symbol's property list.
func (h *Heap) SetSymbolPlist(sym, plist Value) error {
	return h.setSymbolField("setplist", sym, format.SymbolPlistOffset, plist)
}

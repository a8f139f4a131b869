package compiler

import (
	"strings"

	"github.com/chazu/ymsl/types"
	"github.com/chazu/ymsl/vm"
)

// ---------------------------------------------------------------------------
// Handle: what a name refers to
// ---------------------------------------------------------------------------

// HandleKind says which kind of object a Handle refers to.
type HandleKind uint8

const (
	VariableHandle HandleKind = iota
	FunctionHandle
	TypeHandle
	LabelHandle
	ScopeHandle
	ConstHandle
)

func (k HandleKind) String() string {
	switch k {
	case VariableHandle:
		return "variable"
	case FunctionHandle:
		return "function"
	case TypeHandle:
		return "type"
	case LabelHandle:
		return "label"
	case ScopeHandle:
		return "scope"
	case ConstHandle:
		return "constant"
	}
	return "unknown"
}

// Handle is one scope entry. The accessor for a kind other than the
// handle's own returns nil.
type Handle struct {
	name string
	kind HandleKind

	variable *vm.Variable
	function *Function
	typ      *types.Type
	label    *Label
	scope    *Scope
	constant *Constant
}

func (h *Handle) Name() string     { return h.name }
func (h *Handle) Kind() HandleKind { return h.kind }

// Variable returns the variable, or nil.
func (h *Handle) Variable() *vm.Variable { return h.variable }

// Function returns the function, or nil.
func (h *Handle) Function() *Function { return h.function }

// Type returns the named type, or nil.
func (h *Handle) Type() *types.Type { return h.typ }

// Label returns the label, or nil.
func (h *Handle) Label() *Label { return h.label }

// Const returns the constant, or nil.
func (h *Handle) Const() *Constant { return h.constant }

// Scope returns the child scope for scope handles and for types that carry
// members (enums).
func (h *Handle) Scope() *Scope { return h.scope }

// ---------------------------------------------------------------------------
// Scope: hierarchical symbol table
// ---------------------------------------------------------------------------

// Scope maps names to handles. Lookups fall back to the parent chain;
// declarations never shadow within one scope.
type Scope struct {
	parent  *Scope
	name    string
	handles map[string]*Handle
}

// NewScope creates a scope. parent is nil for the global scope.
func NewScope(parent *Scope, name string) *Scope {
	return &Scope{parent: parent, name: name, handles: make(map[string]*Handle)}
}

func (s *Scope) Parent() *Scope { return s.parent }
func (s *Scope) Name() string   { return s.name }

// FullName joins the names of the scope chain with dots, omitting unnamed
// scopes.
func (s *Scope) FullName() string {
	var parts []string
	for sc := s; sc != nil; sc = sc.parent {
		if sc.name != "" {
			parts = append(parts, sc.name)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

func (s *Scope) add(h *Handle) error {
	if prev, ok := s.handles[h.name]; ok {
		return errorf(s.FullName(), ErrDuplicate, "%s %q already declared as a %s", h.kind, h.name, prev.kind)
	}
	s.handles[h.name] = h
	return nil
}

// DeclareVariable binds v under its name.
func (s *Scope) DeclareVariable(v *vm.Variable) error {
	return s.add(&Handle{name: v.Name(), kind: VariableHandle, variable: v})
}

// DeclareFunction binds f under its name.
func (s *Scope) DeclareFunction(f *Function) error {
	return s.add(&Handle{name: f.Name(), kind: FunctionHandle, function: f})
}

// DeclareType binds a type name. members, when not nil, is the scope of the
// type's named constants.
func (s *Scope) DeclareType(name string, t *types.Type, members *Scope) error {
	return s.add(&Handle{name: name, kind: TypeHandle, typ: t, scope: members})
}

// DeclareLabel binds l under its name.
func (s *Scope) DeclareLabel(l *Label) error {
	return s.add(&Handle{name: l.Name(), kind: LabelHandle, label: l})
}

// DeclareScope binds child under its name.
func (s *Scope) DeclareScope(child *Scope) error {
	return s.add(&Handle{name: child.Name(), kind: ScopeHandle, scope: child})
}

// DeclareConst binds c under its name.
func (s *Scope) DeclareConst(c *Constant) error {
	return s.add(&Handle{name: c.Name(), kind: ConstHandle, constant: c})
}

// LookupLocal finds name in this scope only.
func (s *Scope) LookupLocal(name string) *Handle {
	return s.handles[name]
}

// Lookup finds name in this scope or the nearest enclosing one.
func (s *Scope) Lookup(name string) *Handle {
	for sc := s; sc != nil; sc = sc.parent {
		if h, ok := sc.handles[name]; ok {
			return h
		}
	}
	return nil
}

// LookupPath resolves a dotted name: the first element through the parent
// chain, the rest through the member scopes of the handles found.
func (s *Scope) LookupPath(names ...string) *Handle {
	if len(names) == 0 {
		return nil
	}
	h := s.Lookup(names[0])
	for _, name := range names[1:] {
		if h == nil || h.scope == nil {
			return nil
		}
		h = h.scope.LookupLocal(name)
	}
	return h
}

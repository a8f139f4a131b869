package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is the kind-independent part of an instruction. An instruction
// word combines an Opcode with the Kind it operates on; see Instr.
type Opcode uint8

// Stack operations
const (
	OpNOP Opcode = iota
	OpPOP
	OpPushImm  // push immediate (kind-sized operand)
	OpPushZero // push 0 / 0.0
	OpPushOne  // push 1 / 1.0
	OpPushNull // push null object handle
)

// Variable operations (one Int operand: slot index)
const (
	OpLoadGlobal Opcode = iota + 0x10
	OpStoreGlobal
	OpLoadLocal
	OpStoreLocal
)

// Unary operations
const (
	OpMinus Opcode = iota + 0x20
	OpInc
	OpDec
	OpNot    // bitwise complement
	OpLogNot // logical negation
	OpToBool
	OpToFloat
	OpToInt
)

// Binary operations: rhs is popped first, then lhs; pushes lhs OP rhs.
const (
	OpAdd Opcode = iota + 0x30
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpEQ
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpAnd
	OpOr
	OpXor
)

// Ternary
const (
	OpITE Opcode = 0x40 // pops else, then, cond
)

// Control flow. The non-R forms take an absolute address operand; the R
// forms pop the address from the stack (then the condition).
const (
	OpJump Opcode = iota + 0x50
	OpJumpR
	OpBranchTrue
	OpBranchFalse
	OpBranchTrueR
	OpBranchFalseR
)

// Calls
const (
	OpCall Opcode = iota + 0x60 // one Int operand: function index
	OpCallR                     // pops function index
	OpReturn                    // kind of returned value, KindNone for void
	OpHalt
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// kindSet is a bitmask of the kinds an opcode is defined for.
type kindSet uint8

const (
	untyped kindSet = 1 << KindNone
	ints    kindSet = 1 << KindInt
	flts    kindSet = 1 << KindFloat
	objs    kindSet = 1 << KindObj
	typed           = ints | flts | objs
	nums            = ints | flts
)

func (s kindSet) has(k Kind) bool { return s&(1<<k) != 0 }

// immediate marks an opcode whose operand size depends on its kind.
const immediate = -1

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Format   string  // mnemonic; %s is replaced by the kind
	Kinds    kindSet // kinds the opcode is defined for
	Operands int     // operand words, or immediate
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:      {"NOP", untyped, 0},
	OpPOP:      {"POP", untyped, 0},
	OpPushImm:  {"PUSH_%s_IMM", typed, immediate},
	OpPushZero: {"PUSH_%s_ZERO", nums, 0},
	OpPushOne:  {"PUSH_%s_ONE", nums, 0},
	OpPushNull: {"PUSH_%s_NULL", objs, 0},

	OpLoadGlobal:  {"LOAD_GLOBAL_%s", typed, 1},
	OpStoreGlobal: {"STORE_GLOBAL_%s", typed, 1},
	OpLoadLocal:   {"LOAD_LOCAL_%s", typed, 1},
	OpStoreLocal:  {"STORE_LOCAL_%s", typed, 1},

	OpMinus:   {"%s_MINUS", nums, 0},
	OpInc:     {"%s_INC", ints, 0},
	OpDec:     {"%s_DEC", ints, 0},
	OpNot:     {"%s_NOT", ints, 0},
	OpLogNot:  {"%s_LOGNOT", ints, 0},
	OpToBool:  {"%s_TO_BOOL", nums, 0},
	OpToFloat: {"%s_TO_FLOAT", ints, 0},
	OpToInt:   {"%s_TO_INT", flts, 0},

	OpAdd: {"%s_ADD", nums, 0},
	OpSub: {"%s_SUB", nums, 0},
	OpMul: {"%s_MUL", nums, 0},
	OpDiv: {"%s_DIV", nums, 0},
	OpMod: {"%s_MOD", ints, 0},
	OpShl: {"%s_LSHIFT", ints, 0},
	OpShr: {"%s_RSHIFT", ints, 0},
	OpEQ:  {"%s_EQ", typed, 0},
	OpNE:  {"%s_NE", typed, 0},
	OpLT:  {"%s_LT", nums, 0},
	OpLE:  {"%s_LE", nums, 0},
	OpGT:  {"%s_GT", nums, 0},
	OpGE:  {"%s_GE", nums, 0},
	OpAnd: {"%s_AND", ints, 0},
	OpOr:  {"%s_OR", ints, 0},
	OpXor: {"%s_XOR", ints, 0},

	OpITE: {"%s_ITE", typed, 0},

	OpJump:         {"JUMP", untyped, 1},
	OpJumpR:        {"JUMP_R", untyped, 0},
	OpBranchTrue:   {"BRANCH_TRUE", untyped, 1},
	OpBranchFalse:  {"BRANCH_FALSE", untyped, 1},
	OpBranchTrueR:  {"BRANCH_TRUE_R", untyped, 0},
	OpBranchFalseR: {"BRANCH_FALSE_R", untyped, 0},

	OpCall:   {"CALL", untyped, 1},
	OpCallR:  {"CALL_R", untyped, 0},
	OpReturn: {"RETURN_%s", untyped | typed, 0},
	OpHalt:   {"HALT", untyped, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

// IsJump reports whether op takes an absolute address operand.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpBranchTrue || op == OpBranchFalse
}

// ---------------------------------------------------------------------------
// Instr: one instruction word
// ---------------------------------------------------------------------------

const kindShift = 8

// Instr is an encoded instruction word: Opcode in the low byte, Kind in the
// next.
type Instr Word

// MakeInstr combines an opcode with a kind.
func MakeInstr(op Opcode, k Kind) Instr {
	return Instr(op) | Instr(k)<<kindShift
}

// Op returns the opcode part.
func (i Instr) Op() Opcode { return Opcode(i) }

// Kind returns the kind part.
func (i Instr) Kind() Kind { return Kind(i >> kindShift) }

// Valid reports whether the opcode exists and is defined for the kind.
func (i Instr) Valid() bool {
	if i>>(kindShift+8) != 0 {
		return false
	}
	info, ok := i.Op().Info()
	return ok && info.Kinds.has(i.Kind())
}

// OperandWords returns the number of code words following the instruction.
func (i Instr) OperandWords() int {
	info, _ := i.Op().Info()
	if info.Operands == immediate {
		return i.Kind().Words()
	}
	return info.Operands
}

// String returns the mnemonic, e.g. INT_ADD or PUSH_FLOAT_IMM.
func (i Instr) String() string {
	info, ok := i.Op().Info()
	if !ok {
		return fmt.Sprintf("UNKNOWN_%04X", uint32(i))
	}
	if !strings.Contains(info.Format, "%s") {
		return info.Format
	}
	if i.Kind() == KindNone {
		// RETURN_%s without a value
		return strings.TrimSuffix(strings.ReplaceAll(info.Format, "%s", ""), "_")
	}
	return fmt.Sprintf(info.Format, i.Kind())
}

// ---------------------------------------------------------------------------
// Code: an immutable code stream
// ---------------------------------------------------------------------------

// Code is a finished, immutable sequence of code words.
type Code struct {
	words []Word
}

// NewCode copies words into a new Code.
func NewCode(words []Word) *Code {
	return &Code{words: append([]Word(nil), words...)}
}

// Len returns the number of words.
func (c *Code) Len() int { return len(c.words) }

// Word returns the word at pos.
func (c *Code) Word(pos int) Word { return c.words[pos] }

// Words returns a copy of the code words.
func (c *Code) Words() []Word { return append([]Word(nil), c.words...) }

// ReadInstr reads the instruction word at *pc and advances *pc.
func (c *Code) ReadInstr(pc *int) Instr {
	w := c.words[*pc]
	*pc++
	return Instr(w)
}

// ReadInt reads an Int operand at *pc and advances *pc.
func (c *Code) ReadInt(pc *int) int32 {
	w := c.words[*pc]
	*pc++
	return int32(w)
}

// ReadFloat reads a two-word Float operand, low word first.
func (c *Code) ReadFloat(pc *int) float64 {
	return Value(c.readDouble(pc)).Float()
}

// ReadObjPtr reads a two-word ObjPtr operand, low word first.
func (c *Code) ReadObjPtr(pc *int) ObjPtr {
	return ObjPtr(c.readDouble(pc))
}

func (c *Code) readDouble(pc *int) uint64 {
	lo := uint64(c.words[*pc])
	hi := uint64(c.words[*pc+1])
	*pc += 2
	return lo | hi<<32
}

// ---------------------------------------------------------------------------
// Builder: helper for constructing code
// ---------------------------------------------------------------------------

// Builder appends instructions to a growing code stream and resolves
// labels. Use Build to obtain the immutable Code.
type Builder struct {
	words  []Word
	labels []*Label
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{words: make([]Word, 0, 64)}
}

// Len returns the current length in words; the address of the next
// instruction.
func (b *Builder) Len() int {
	return len(b.words)
}

// Emit appends an instruction word. Emitting an opcode for a kind it is not
// defined for is a logic error.
func (b *Builder) Emit(op Opcode, k Kind) {
	instr := MakeInstr(op, k)
	if !instr.Valid() {
		panic(fmt.Sprintf("vm: invalid instruction %s for kind %s", instr, k))
	}
	b.words = append(b.words, Word(instr))
}

// EmitInt appends an Int operand.
func (b *Builder) EmitInt(v int32) {
	b.words = append(b.words, Word(uint32(v)))
}

// EmitFloat appends a Float operand.
func (b *Builder) EmitFloat(v float64) {
	b.emitDouble(uint64(FloatValue(v)))
}

// EmitObjPtr appends an ObjPtr operand.
func (b *Builder) EmitObjPtr(p ObjPtr) {
	b.emitDouble(uint64(p))
}

func (b *Builder) emitDouble(v uint64) {
	b.words = append(b.words, Word(uint32(v)), Word(uint32(v>>32)))
}

// EmitPushInt appends PUSH_INT_IMM v, using the short forms for 0 and 1.
func (b *Builder) EmitPushInt(v int32) {
	switch v {
	case 0:
		b.Emit(OpPushZero, KindInt)
	case 1:
		b.Emit(OpPushOne, KindInt)
	default:
		b.Emit(OpPushImm, KindInt)
		b.EmitInt(v)
	}
}

// EmitPushFloat appends PUSH_FLOAT_IMM v, using the short forms for 0 and 1.
func (b *Builder) EmitPushFloat(v float64) {
	switch {
	case v == 0 && !signbit(v):
		b.Emit(OpPushZero, KindFloat)
	case v == 1:
		b.Emit(OpPushOne, KindFloat)
	default:
		b.Emit(OpPushImm, KindFloat)
		b.EmitFloat(v)
	}
}

// EmitPushObj appends PUSH_OBJ_IMM p, or PUSH_OBJ_NULL for the null handle.
func (b *Builder) EmitPushObj(p ObjPtr) {
	if p == NullPtr {
		b.Emit(OpPushNull, KindObj)
		return
	}
	b.Emit(OpPushImm, KindObj)
	b.EmitObjPtr(p)
}

// EmitWithIndex appends an instruction taking a slot or function index.
func (b *Builder) EmitWithIndex(op Opcode, k Kind, index int) {
	b.Emit(op, k)
	b.EmitInt(int32(index))
}

// Build returns the finished Code. Every label referenced by a jump must
// have been placed.
func (b *Builder) Build() *Code {
	for _, l := range b.labels {
		if !l.placed && len(l.fixups) > 0 {
			panic(fmt.Sprintf("vm: label %q referenced but never placed", l.name))
		}
	}
	return &Code{words: append([]Word(nil), b.words...)}
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label names a code address that may not be known yet. Jumps to an
// unplaced label record a fix-up that Place back-patches.
type Label struct {
	name   string
	placed bool
	addr   int
	fixups []int // operand positions awaiting the address
}

// NewLabel creates an unplaced label.
func (b *Builder) NewLabel(name string) *Label {
	l := &Label{name: name}
	b.labels = append(b.labels, l)
	return l
}

// Name returns the label's name.
func (l *Label) Name() string { return l.name }

// Placed reports whether the label has an address.
func (l *Label) Placed() bool { return l.placed }

// Address returns the label's address and whether it has been placed.
func (l *Label) Address() (int, bool) {
	return l.addr, l.placed
}

// MustAddress returns the address of a placed label. Reading an unplaced
// label is a logic error.
func (l *Label) MustAddress() int {
	if !l.placed {
		panic(fmt.Sprintf("vm: label %q has no address", l.name))
	}
	return l.addr
}

// Place binds the label to the current position and patches every
// recorded fix-up. A label is placed at most once.
func (b *Builder) Place(l *Label) {
	if l.placed {
		panic(fmt.Sprintf("vm: label %q already placed", l.name))
	}
	l.placed = true
	l.addr = len(b.words)
	for _, pos := range l.fixups {
		b.words[pos] = Word(uint32(l.addr))
	}
	l.fixups = nil
}

// EmitJump appends JUMP, BRANCH_TRUE or BRANCH_FALSE targeting l.
func (b *Builder) EmitJump(op Opcode, l *Label) {
	if !op.IsJump() {
		panic(fmt.Sprintf("vm: %s is not a jump", MakeInstr(op, KindNone)))
	}
	b.Emit(op, KindNone)
	b.EmitAddress(l)
}

// EmitAddress appends the address of l as an Int operand, recording a
// fix-up when l is not placed yet. Combined with PUSH_INT_IMM it feeds the
// register-indirect jumps.
func (b *Builder) EmitAddress(l *Label) {
	if l.placed {
		b.EmitInt(int32(l.addr))
		return
	}
	l.fixups = append(l.fixups, len(b.words))
	b.EmitInt(0)
}

func signbit(f float64) bool {
	return FloatValue(f)>>63 != 0
}

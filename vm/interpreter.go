package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// Default capacities of a VM's heap and stack, in slots.
const (
	DefaultHeapSize  = 1 << 12
	DefaultStackSize = 1 << 16
)

// ---------------------------------------------------------------------------
// Call frames
// ---------------------------------------------------------------------------

// frame saves the caller's state across a call into compiled code.
type frame struct {
	code *Code
	pc   int
	base int
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM executes linked YMSL programs. Globals live in a fixed heap, locals
// and temporaries on a single stack addressed through BASE. A VM is not
// safe for concurrent use; independent VMs share nothing.
type VM struct {
	heap   []Value
	stack  []Value
	sp     int
	base   int
	frames []frame

	// Kind tags, maintained only in ymsldebug builds.
	heapTags  []Kind
	stackTags []Kind

	exe       *Executable
	functions []*Function
	objects   []any

	halted bool
	trace  bool
	log    commonlog.Logger

	heapSize  int
	stackSize int
}

// Option configures a VM.
type Option func(*VM)

// WithHeapSize sets the number of global slots.
func WithHeapSize(n int) Option {
	return func(vm *VM) { vm.heapSize = n }
}

// WithStackSize sets the number of stack slots.
func WithStackSize(n int) Option {
	return func(vm *VM) { vm.stackSize = n }
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(on bool) Option {
	return func(vm *VM) { vm.trace = on }
}

// WithLogger replaces the default "ymsl.vm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// New creates a VM with empty heap and stack.
func New(opts ...Option) *VM {
	vm := &VM{
		log:       commonlog.GetLogger("ymsl.vm"),
		heapSize:  DefaultHeapSize,
		stackSize: DefaultStackSize,
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.heap = make([]Value, vm.heapSize)
	vm.stack = make([]Value, vm.stackSize)
	if debugTags {
		vm.heapTags = make([]Kind, vm.heapSize)
		vm.stackTags = make([]Kind, vm.stackSize)
	}
	return vm
}

// Load verifies exe and installs it, resetting all machine state. String
// literals are interned as the first object handles.
func (vm *VM) Load(exe *Executable) error {
	if exe.GlobalCount() > len(vm.heap) {
		return fmt.Errorf("%w: %d globals exceed heap size %d",
			ErrMalformed, exe.GlobalCount(), len(vm.heap))
	}
	nfuncs := len(exe.Functions)
	for i, f := range exe.Functions {
		if f.Index() != i {
			return fmt.Errorf("%w: function %s at slot %d has index %d",
				ErrMalformed, f.Name(), i, f.Index())
		}
		if f.IsBuiltin() {
			continue
		}
		if f.Code() == nil {
			return fmt.Errorf("%w: function %s has no code", ErrMalformed, f.Name())
		}
		if err := verifyCode(f.Code(), nfuncs, exe.GlobalCount(), f.FrameSize()); err != nil {
			return fmt.Errorf("function %s: %w", f.Name(), err)
		}
	}
	for _, c := range exe.Inits {
		if err := verifyCode(c, nfuncs, exe.GlobalCount(), 0); err != nil {
			return fmt.Errorf("init code: %w", err)
		}
	}

	vm.Reset()
	vm.exe = exe
	vm.functions = exe.Functions
	if debugTags {
		copy(vm.heapTags, exe.GlobalKinds)
	}
	vm.objects = vm.objects[:0]
	for _, s := range exe.Strings {
		vm.objects = append(vm.objects, s)
	}
	vm.log.Debugf("loaded %s: %d functions, %d globals, %d strings",
		exe.Name, nfuncs, exe.GlobalCount(), len(exe.Strings))
	return nil
}

// Reset clears the heap, the stack and the frame stack. The loaded
// executable and interned objects are kept.
func (vm *VM) Reset() {
	clear(vm.heap)
	vm.sp = 0
	vm.base = 0
	vm.frames = vm.frames[:0]
	vm.halted = false
}

// Run executes the init code of every linked module in dependency order.
// Execution ends early when a module halts.
func (vm *VM) Run() error {
	if vm.exe == nil {
		return ErrNotLoaded
	}
	for _, c := range vm.exe.Inits {
		vm.Execute(c)
		if vm.halted {
			break
		}
	}
	return nil
}

// Execute runs code as a top-level block: BASE is the current stack top
// and the stack is restored when the code ends, returns or halts.
func (vm *VM) Execute(code *Code) {
	vm.halted = false
	savedSP, savedBase := vm.sp, vm.base
	vm.base = vm.sp
	vm.run(code, len(vm.frames))
	vm.sp, vm.base = savedSP, savedBase
}

// Call invokes function index with args and returns its result. Void
// functions return the zero Value.
func (vm *VM) Call(index int, args ...Value) (Value, error) {
	if index < 0 || index >= len(vm.functions) {
		return 0, fmt.Errorf("%w: index %d", ErrNoSuchFunction, index)
	}
	f := vm.functions[index]
	if len(args) != f.ArgNum() {
		return 0, fmt.Errorf("function %s takes %d arguments, got %d",
			f.Name(), f.ArgNum(), len(args))
	}

	vm.halted = false
	savedBase := vm.base
	base := vm.sp
	for i, a := range args {
		vm.push(a, f.argKind(i))
	}
	if f.IsBuiltin() {
		vm.callBuiltin(f)
	} else {
		depth := len(vm.frames)
		vm.base = vm.enter(f)
		vm.run(f.code, depth)
	}
	var ret Value
	if !vm.halted {
		ret = vm.stack[base]
	}
	vm.sp = base
	vm.base = savedBase
	return ret, nil
}

// CallFunction looks up an exported function by name and calls it.
func (vm *VM) CallFunction(name string, args ...Value) (Value, error) {
	if vm.exe == nil {
		return 0, ErrNotLoaded
	}
	f := vm.exe.Function(name)
	if f == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoSuchFunction, name)
	}
	return vm.Call(f.Index(), args...)
}

// ---------------------------------------------------------------------------
// Machine state accessors
// ---------------------------------------------------------------------------

// SP returns the stack pointer: the index of the next free slot.
func (vm *VM) SP() int { return vm.sp }

// Base returns the BASE register.
func (vm *VM) Base() int { return vm.base }

// Stack returns the live part of the stack. The slice aliases VM memory.
func (vm *VM) Stack() []Value { return vm.stack[:vm.sp] }

// Global returns heap slot i.
func (vm *VM) Global(i int) Value { return vm.heap[i] }

// SetGlobal writes heap slot i.
func (vm *VM) SetGlobal(i int, v Value) { vm.heap[i] = v }

// Halted reports whether the last execution ended with HALT.
func (vm *VM) Halted() bool { return vm.halted }

// Executable returns the loaded program, or nil.
func (vm *VM) Executable() *Executable { return vm.exe }

// ---------------------------------------------------------------------------
// Object handles
// ---------------------------------------------------------------------------

// NewObject registers a host object and returns its handle. Objects are
// never collected.
func (vm *VM) NewObject(obj any) ObjPtr {
	vm.objects = append(vm.objects, obj)
	return ObjPtr(len(vm.objects))
}

// Object returns the object behind a handle, or nil for the null handle
// and unknown handles.
func (vm *VM) Object(p ObjPtr) any {
	if p == NullPtr || p > ObjPtr(len(vm.objects)) {
		return nil
	}
	return vm.objects[p-1]
}

// StringObject returns the string behind a handle.
func (vm *VM) StringObject(p ObjPtr) (string, bool) {
	s, ok := vm.Object(p).(string)
	return s, ok
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value, k Kind) {
	vm.stack[vm.sp] = v
	if debugTags {
		vm.stackTags[vm.sp] = k
	}
	vm.sp++
}

// pop removes the top value. k is the kind the caller reads it as;
// KindNone skips the tag check.
func (vm *VM) pop(k Kind) Value {
	vm.sp--
	if debugTags {
		checkTag("stack", vm.sp, vm.stackTags[vm.sp], k)
	}
	return vm.stack[vm.sp]
}

func (vm *VM) pushInt(i int32)     { vm.push(IntValue(i), KindInt) }
func (vm *VM) pushFloat(f float64) { vm.push(FloatValue(f), KindFloat) }
func (vm *VM) pushBool(b bool)     { vm.push(BoolValue(b), KindInt) }
func (vm *VM) popInt() int32       { return vm.pop(KindInt).Int() }
func (vm *VM) popFloat() float64   { return vm.pop(KindFloat).Float() }

func checkTag(where string, slot int, have, want Kind) {
	if want != KindNone && have != KindNone && have != want {
		panic(fmt.Sprintf("vm: %s slot %d holds %s, read as %s", where, slot, have, want))
	}
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (f *Function) argKind(i int) Kind {
	return KindOf(f.typ.Input(i))
}

// callBuiltin runs a host function whose arguments are on the stack and
// replaces them with its result.
func (vm *VM) callBuiltin(f *Function) {
	n := f.ArgNum()
	base := vm.sp - n
	saved := vm.base
	vm.base = base
	ret := f.builtin(vm, vm.stack[base:base+n:base+n])
	vm.base = saved
	vm.stack[base] = ret
	if debugTags {
		vm.stackTags[base] = f.ReturnKind()
	}
	vm.sp = base + 1
}

// enter lays out the frame of a compiled function whose arguments are on
// the stack. Locals beyond the parameters start zeroed. Returns the new
// BASE.
func (vm *VM) enter(f *Function) int {
	base := vm.sp - f.ArgNum()
	top := base + len(f.locals)
	clear(vm.stack[vm.sp:top])
	if debugTags {
		copy(vm.stackTags[base:top], f.locals)
	}
	vm.sp = top
	return base
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// run executes code until it returns to frame depth, halts or runs off the
// end. Running off the end behaves as a void RETURN.
func (vm *VM) run(code *Code, depth int) {
	words := code.words
	pc := 0
	for {
		var instr Instr
		if pc < len(words) {
			instr = Instr(words[pc])
			if vm.trace {
				vm.traceInstr(code, pc)
			}
			pc++
		} else {
			instr = MakeInstr(OpReturn, KindNone)
		}
		k := instr.Kind()

		switch instr.Op() {
		case OpNOP:

		case OpPOP:
			vm.sp--

		case OpPushImm:
			switch k {
			case KindInt:
				vm.push(Value(uint32(words[pc])), KindInt)
				pc++
			default:
				v := Value(uint64(words[pc]) | uint64(words[pc+1])<<32)
				vm.push(v, k)
				pc += 2
			}

		case OpPushZero:
			if k == KindInt {
				vm.pushInt(0)
			} else {
				vm.pushFloat(0)
			}

		case OpPushOne:
			if k == KindInt {
				vm.pushInt(1)
			} else {
				vm.pushFloat(1)
			}

		case OpPushNull:
			vm.push(ObjValue(NullPtr), KindObj)

		case OpLoadGlobal:
			idx := int(int32(words[pc]))
			pc++
			if debugTags {
				checkTag("heap", idx, vm.heapTags[idx], k)
			}
			vm.push(vm.heap[idx], k)

		case OpStoreGlobal:
			idx := int(int32(words[pc]))
			pc++
			vm.heap[idx] = vm.pop(k)
			if debugTags {
				vm.heapTags[idx] = k
			}

		case OpLoadLocal:
			slot := vm.base + int(int32(words[pc]))
			pc++
			if debugTags {
				checkTag("stack", slot, vm.stackTags[slot], k)
			}
			vm.push(vm.stack[slot], k)

		case OpStoreLocal:
			slot := vm.base + int(int32(words[pc]))
			pc++
			vm.stack[slot] = vm.pop(k)
			if debugTags {
				vm.stackTags[slot] = k
			}

		case OpMinus, OpInc, OpDec, OpNot, OpLogNot, OpToBool, OpToFloat, OpToInt:
			if k == KindInt {
				vm.unaryInt(instr.Op())
			} else {
				vm.unaryFloat(instr.Op())
			}

		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpShl, OpShr,
			OpEQ, OpNE, OpLT, OpLE, OpGT, OpGE, OpAnd, OpOr, OpXor:
			switch k {
			case KindInt:
				vm.binaryInt(instr.Op())
			case KindFloat:
				vm.binaryFloat(instr.Op())
			default:
				vm.binaryObj(instr.Op())
			}

		case OpITE:
			els := vm.pop(k)
			then := vm.pop(k)
			if vm.popInt() != 0 {
				vm.push(then, k)
			} else {
				vm.push(els, k)
			}

		case OpJump:
			pc = int(int32(words[pc]))

		case OpJumpR:
			pc = int(vm.popInt())

		case OpBranchTrue, OpBranchFalse:
			addr := int(int32(words[pc]))
			pc++
			if (vm.popInt() != 0) == (instr.Op() == OpBranchTrue) {
				pc = addr
			}

		case OpBranchTrueR, OpBranchFalseR:
			addr := int(vm.popInt())
			if (vm.popInt() != 0) == (instr.Op() == OpBranchTrueR) {
				pc = addr
			}

		case OpCall, OpCallR:
			var idx int
			if instr.Op() == OpCall {
				idx = int(int32(words[pc]))
				pc++
			} else {
				idx = int(vm.popInt())
			}
			f := vm.functions[idx]
			if f.builtin != nil {
				vm.callBuiltin(f)
				if vm.halted {
					vm.frames = vm.frames[:depth]
					return
				}
				continue
			}
			vm.frames = append(vm.frames, frame{code: code, pc: pc, base: vm.base})
			vm.base = vm.enter(f)
			code, words, pc = f.code, f.code.words, 0

		case OpReturn:
			var ret Value
			if k != KindNone {
				ret = vm.pop(k)
			}
			vm.stack[vm.base] = ret
			if debugTags {
				vm.stackTags[vm.base] = k
			}
			vm.sp = vm.base + 1
			if len(vm.frames) == depth {
				return
			}
			fr := vm.frames[len(vm.frames)-1]
			vm.frames = vm.frames[:len(vm.frames)-1]
			code, words, pc, vm.base = fr.code, fr.code.words, fr.pc, fr.base

		case OpHalt:
			vm.halted = true
			vm.frames = vm.frames[:depth]
			return
		}
	}
}

func (vm *VM) unaryInt(op Opcode) {
	v := vm.popInt()
	switch op {
	case OpMinus:
		vm.pushInt(-v)
	case OpInc:
		vm.pushInt(v + 1)
	case OpDec:
		vm.pushInt(v - 1)
	case OpNot:
		vm.pushInt(^v)
	case OpLogNot:
		vm.pushBool(v == 0)
	case OpToBool:
		vm.pushBool(v != 0)
	case OpToFloat:
		vm.pushFloat(float64(v))
	}
}

func (vm *VM) unaryFloat(op Opcode) {
	v := vm.popFloat()
	switch op {
	case OpMinus:
		vm.pushFloat(-v)
	case OpToBool:
		vm.pushBool(v != 0)
	case OpToInt:
		vm.pushInt(int32(v))
	}
}

// binaryInt pops rhs then lhs and pushes lhs OP rhs. Shift counts use the
// low five bits.
func (vm *VM) binaryInt(op Opcode) {
	r := vm.popInt()
	l := vm.popInt()
	switch op {
	case OpAdd:
		vm.pushInt(l + r)
	case OpSub:
		vm.pushInt(l - r)
	case OpMul:
		vm.pushInt(l * r)
	case OpDiv:
		vm.pushInt(l / r)
	case OpMod:
		vm.pushInt(l % r)
	case OpShl:
		vm.pushInt(l << (uint32(r) & 31))
	case OpShr:
		vm.pushInt(l >> (uint32(r) & 31))
	case OpEQ:
		vm.pushBool(l == r)
	case OpNE:
		vm.pushBool(l != r)
	case OpLT:
		vm.pushBool(l < r)
	case OpLE:
		vm.pushBool(l <= r)
	case OpGT:
		vm.pushBool(l > r)
	case OpGE:
		vm.pushBool(l >= r)
	case OpAnd:
		vm.pushInt(l & r)
	case OpOr:
		vm.pushInt(l | r)
	case OpXor:
		vm.pushInt(l ^ r)
	}
}

func (vm *VM) binaryFloat(op Opcode) {
	r := vm.popFloat()
	l := vm.popFloat()
	switch op {
	case OpAdd:
		vm.pushFloat(l + r)
	case OpSub:
		vm.pushFloat(l - r)
	case OpMul:
		vm.pushFloat(l * r)
	case OpDiv:
		vm.pushFloat(l / r)
	case OpEQ:
		vm.pushBool(l == r)
	case OpNE:
		vm.pushBool(l != r)
	case OpLT:
		vm.pushBool(l < r)
	case OpLE:
		vm.pushBool(l <= r)
	case OpGT:
		vm.pushBool(l > r)
	case OpGE:
		vm.pushBool(l >= r)
	}
}

func (vm *VM) binaryObj(op Opcode) {
	r := vm.pop(KindObj).Obj()
	l := vm.pop(KindObj).Obj()
	if op == OpEQ {
		vm.pushBool(l == r)
	} else {
		vm.pushBool(l != r)
	}
}

func (vm *VM) traceInstr(code *Code, pc int) {
	text, _ := disassembleAt(code, pc)
	vm.log.Debugf("%s    ; sp=%d base=%d depth=%d", text, vm.sp, vm.base, len(vm.frames))
}

package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// disassembleAt renders the instruction at pc and returns the position of
// the next one.
func disassembleAt(c *Code, pc int) (string, int) {
	at := pc
	instr := c.ReadInstr(&pc)
	if !instr.Valid() {
		return fmt.Sprintf("%04d  .word %#x", at, uint32(instr)), pc
	}
	if pc+instr.OperandWords() > c.Len() {
		return fmt.Sprintf("%04d  %s <truncated>", at, instr), c.Len()
	}

	var operand string
	switch {
	case instr.Op() == OpPushImm && instr.Kind() == KindInt:
		operand = fmt.Sprint(c.ReadInt(&pc))
	case instr.Op() == OpPushImm && instr.Kind() == KindFloat:
		operand = fmt.Sprintf("%g", c.ReadFloat(&pc))
	case instr.Op() == OpPushImm:
		operand = fmt.Sprintf("@%d", c.ReadObjPtr(&pc))
	case instr.Op().IsJump():
		operand = fmt.Sprintf("-> %04d", c.ReadInt(&pc))
	case instr.OperandWords() == 1:
		operand = fmt.Sprint(c.ReadInt(&pc))
	}
	if operand == "" {
		return fmt.Sprintf("%04d  %s", at, instr), pc
	}
	return fmt.Sprintf("%04d  %-20s %s", at, instr, operand), pc
}

// Disassemble returns a listing of c, one instruction per line.
func Disassemble(c *Code) string {
	var sb strings.Builder
	for pc := 0; pc < c.Len(); {
		var line string
		line, pc = disassembleAt(c, pc)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DisassembleFunction returns a listing of a compiled function with a
// header line.
func DisassembleFunction(f *Function) string {
	if f.IsBuiltin() {
		return fmt.Sprintf("%s  ; builtin\n", f)
	}
	return fmt.Sprintf("%s  ; frame %d\n%s", f, f.FrameSize(), Disassemble(f.Code()))
}

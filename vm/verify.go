package vm

import "fmt"

// verifyCode checks that every instruction in c is defined, that operands
// fit inside the stream and that jump targets, function indices and slot
// indices are in range. The dispatch loop relies on this and does no
// checking of its own.
func verifyCode(c *Code, nfuncs, nglobals, nlocals int) error {
	words := c.words
	for pc := 0; pc < len(words); {
		at := pc
		instr := Instr(words[pc])
		pc++
		if !instr.Valid() {
			return fmt.Errorf("%w: invalid instruction %#x at %d", ErrMalformed, uint32(instr), at)
		}
		n := instr.OperandWords()
		if pc+n > len(words) {
			return fmt.Errorf("%w: %s at %d truncated", ErrMalformed, instr, at)
		}
		if n == 1 && instr.Op() != OpPushImm {
			operand := int(int32(words[pc]))
			var limit int
			switch instr.Op() {
			case OpJump, OpBranchTrue, OpBranchFalse:
				limit = len(words) + 1
			case OpCall:
				limit = nfuncs
			case OpLoadGlobal, OpStoreGlobal:
				limit = nglobals
			case OpLoadLocal, OpStoreLocal:
				limit = nlocals
			}
			if operand < 0 || operand >= limit {
				return fmt.Errorf("%w: %s %d at %d out of range", ErrMalformed, instr, operand, at)
			}
		}
		pc += n
	}
	return nil
}

package vm

import (
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// Disassembler: read-only consumer of the chunk and value formats
// ---------------------------------------------------------------------------

// Disassemble writes a human-readable listing of the whole chunk.
func (c *Chunk) Disassemble(w io.Writer, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)

	for offset := 0; offset < len(c.Code); {
		offset = c.DisassembleInstruction(w, offset)
	}
}

// DisassembleInstruction writes one instruction and returns the offset
// of the next one.
func (c *Chunk) DisassembleInstruction(w io.Writer, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)

	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		fmt.Fprintf(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", c.Lines[offset])
	}

	inst := Opcode(c.Code[offset])

	switch inst {
	case OpConstant, OpConstant16, OpConstant24:
		return c.printConstantInst(w, OpConstant, inst, offset)

	case OpGetLocal, OpGetLocal16, OpGetLocal24:
		return c.printIndexInst(w, OpGetLocal, inst, offset)
	case OpSetLocal, OpSetLocal16, OpSetLocal24:
		return c.printIndexInst(w, OpSetLocal, inst, offset)

	case OpGetGlobal, OpGetGlobal16, OpGetGlobal24:
		return c.printConstantInst(w, OpGetGlobal, inst, offset)
	case OpDefineGlobal, OpDefineGlobal16, OpDefineGlobal24:
		return c.printConstantInst(w, OpDefineGlobal, inst, offset)
	case OpSetGlobal, OpSetGlobal16, OpSetGlobal24:
		return c.printConstantInst(w, OpSetGlobal, inst, offset)

	case OpGetUpvalue, OpGetUpvalue16, OpGetUpvalue24:
		return c.printIndexInst(w, OpGetUpvalue, inst, offset)
	case OpSetUpvalue, OpSetUpvalue16, OpSetUpvalue24:
		return c.printIndexInst(w, OpSetUpvalue, inst, offset)

	case OpGetProperty, OpGetProperty16, OpGetProperty24:
		return c.printConstantInst(w, OpGetProperty, inst, offset)
	case OpSetProperty, OpSetProperty16, OpSetProperty24:
		return c.printConstantInst(w, OpSetProperty, inst, offset)
	case OpGetSuper, OpGetSuper16, OpGetSuper24:
		return c.printConstantInst(w, OpGetSuper, inst, offset)

	case OpPopN, OpCall:
		operand := c.Code[offset+1]
		fmt.Fprintf(w, "%-16s %4d\n", inst, operand)
		return offset + 2

	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		displacement := c.ReadJump(offset + 1)
		target := offset + 3 + int(displacement)
		fmt.Fprintf(w, "%-16s %4d -> %d\n", inst, displacement, target)
		return offset + 3

	case OpInvoke, OpInvoke16, OpInvoke24:
		width := indexWidth(OpInvoke, inst)
		index := c.ReadIndex(offset+1, width)
		argCount := c.Code[offset+1+width]
		fmt.Fprintf(w, "%-16s (%d args) %4d '%s'\n",
			inst, argCount, index, FormatValue(c.Constants[index]))
		return offset + 2 + width

	case OpClosure, OpClosure16, OpClosure24:
		width := indexWidth(OpClosure, inst)
		index := c.ReadIndex(offset+1, width)
		fn := c.Constants[index].AsFunction()
		fmt.Fprintf(w, "%-16s %4d %s\n", inst, index, FormatValue(c.Constants[index]))

		next := offset + 1 + width
		for i := 0; i < fn.UpvalueCount; i++ {
			descriptor := c.ReadIndex(next, 2)
			kind := "upvalue"
			if descriptor&0x8000 != 0 {
				kind = "local"
			}
			fmt.Fprintf(w, "%04d    |                     %s %d\n",
				next, kind, descriptor&0x7FFF)
			next += 2
		}
		return next

	default:
		info := GetOpcodeInfo(inst)
		if info.OperandLen == 0 {
			fmt.Fprintf(w, "%s\n", inst)
			return offset + 1
		}
		// Unknown or fixed-operand opcode without a dedicated format.
		fmt.Fprintf(w, "%s\n", inst)
		return offset + 1 + info.OperandLen
	}
}

// printConstantInst formats an instruction whose operand indexes the
// constant pool.
func (c *Chunk) printConstantInst(w io.Writer, base, inst Opcode, offset int) int {
	width := indexWidth(base, inst)
	index := c.ReadIndex(offset+1, width)
	fmt.Fprintf(w, "%-16s %4d '%s'\n", inst, index, FormatValue(c.Constants[index]))
	return offset + 1 + width
}

// printIndexInst formats an instruction whose operand is a slot or
// upvalue index.
func (c *Chunk) printIndexInst(w io.Writer, base, inst Opcode, offset int) int {
	width := indexWidth(base, inst)
	index := c.ReadIndex(offset+1, width)
	fmt.Fprintf(w, "%-16s %4d\n", inst, index)
	return offset + 1 + width
}

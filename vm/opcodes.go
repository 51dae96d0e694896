package vm

import "fmt"

// Opcode represents a bytecode instruction.
//
// Every opcode that carries a constant-pool, variable, or property index
// comes in a family of three consecutive values: the base form with a
// 1-byte operand, then 16-bit and 24-bit forms. Operand bytes are
// little-endian. The encoder picks the smallest fit by magnitude and the
// decoder derives the width from the opcode itself.
type Opcode byte

const (
	// Constants
	OpConstant Opcode = iota
	OpConstant16
	OpConstant24
	OpNil
	OpTrue
	OpFalse

	// Stack manipulation
	OpPop
	OpPopN // operand: 1-byte count

	// Local variables
	OpGetLocal
	OpGetLocal16
	OpGetLocal24
	OpSetLocal
	OpSetLocal16
	OpSetLocal24

	// Global variables
	OpGetGlobal
	OpGetGlobal16
	OpGetGlobal24
	OpDefineGlobal
	OpDefineGlobal16
	OpDefineGlobal24
	OpSetGlobal
	OpSetGlobal16
	OpSetGlobal24

	// Upvalues
	OpGetUpvalue
	OpGetUpvalue16
	OpGetUpvalue24
	OpSetUpvalue
	OpSetUpvalue16
	OpSetUpvalue24

	// Properties
	OpGetProperty
	OpGetProperty16
	OpGetProperty24
	OpSetProperty
	OpSetProperty16
	OpSetProperty24
	OpGetSuper
	OpGetSuper16
	OpGetSuper24

	// Comparison
	OpEqual
	OpGreater
	OpLess

	// Arithmetic
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate

	// Statements
	OpPrint

	// Control flow: operand is a 16-bit signed displacement added to the
	// instruction pointer after reading, so backward jumps are negative.
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue

	// Calls
	OpCall // operand: 1-byte argument count
	OpInvoke
	OpInvoke16
	OpInvoke24

	// Closures
	OpClosure
	OpClosure16
	OpClosure24
	OpCloseUpvalue
	OpReturn

	// Classes
	OpClass
	OpClass16
	OpClass24
	OpInherit
	OpMethod
	OpMethod16
	OpMethod24
)

// OpcodeInfo provides metadata about each opcode for the disassembler
// and for validation.
type OpcodeInfo struct {
	Name       string
	OperandLen int // operand bytes following the opcode; -1 for OpClosure*, whose tail varies
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpConstant:   {"OP_CONSTANT", 1},
	OpConstant16: {"OP_CONSTANT_16", 2},
	OpConstant24: {"OP_CONSTANT_24", 3},
	OpNil:        {"OP_NIL", 0},
	OpTrue:       {"OP_TRUE", 0},
	OpFalse:      {"OP_FALSE", 0},

	OpPop:  {"OP_POP", 0},
	OpPopN: {"OP_POPN", 1},

	OpGetLocal:   {"OP_GET_LOCAL", 1},
	OpGetLocal16: {"OP_GET_LOCAL_16", 2},
	OpGetLocal24: {"OP_GET_LOCAL_24", 3},
	OpSetLocal:   {"OP_SET_LOCAL", 1},
	OpSetLocal16: {"OP_SET_LOCAL_16", 2},
	OpSetLocal24: {"OP_SET_LOCAL_24", 3},

	OpGetGlobal:      {"OP_GET_GLOBAL", 1},
	OpGetGlobal16:    {"OP_GET_GLOBAL_16", 2},
	OpGetGlobal24:    {"OP_GET_GLOBAL_24", 3},
	OpDefineGlobal:   {"OP_DEFINE_GLOBAL", 1},
	OpDefineGlobal16: {"OP_DEFINE_GLOBAL_16", 2},
	OpDefineGlobal24: {"OP_DEFINE_GLOBAL_24", 3},
	OpSetGlobal:      {"OP_SET_GLOBAL", 1},
	OpSetGlobal16:    {"OP_SET_GLOBAL_16", 2},
	OpSetGlobal24:    {"OP_SET_GLOBAL_24", 3},

	OpGetUpvalue:   {"OP_GET_UPVALUE", 1},
	OpGetUpvalue16: {"OP_GET_UPVALUE_16", 2},
	OpGetUpvalue24: {"OP_GET_UPVALUE_24", 3},
	OpSetUpvalue:   {"OP_SET_UPVALUE", 1},
	OpSetUpvalue16: {"OP_SET_UPVALUE_16", 2},
	OpSetUpvalue24: {"OP_SET_UPVALUE_24", 3},

	OpGetProperty:   {"OP_GET_PROPERTY", 1},
	OpGetProperty16: {"OP_GET_PROPERTY_16", 2},
	OpGetProperty24: {"OP_GET_PROPERTY_24", 3},
	OpSetProperty:   {"OP_SET_PROPERTY", 1},
	OpSetProperty16: {"OP_SET_PROPERTY_16", 2},
	OpSetProperty24: {"OP_SET_PROPERTY_24", 3},
	OpGetSuper:      {"OP_GET_SUPER", 1},
	OpGetSuper16:    {"OP_GET_SUPER_16", 2},
	OpGetSuper24:    {"OP_GET_SUPER_24", 3},

	OpEqual:   {"OP_EQUAL", 0},
	OpGreater: {"OP_GREATER", 0},
	OpLess:    {"OP_LESS", 0},

	OpAdd:      {"OP_ADD", 0},
	OpSubtract: {"OP_SUBTRACT", 0},
	OpMultiply: {"OP_MULTIPLY", 0},
	OpDivide:   {"OP_DIVIDE", 0},
	OpNot:      {"OP_NOT", 0},
	OpNegate:   {"OP_NEGATE", 0},

	OpPrint: {"OP_PRINT", 0},

	OpJump:        {"OP_JUMP", 2},
	OpJumpIfFalse: {"OP_JUMP_IF_FALSE", 2},
	OpJumpIfTrue:  {"OP_JUMP_IF_TRUE", 2},

	OpCall:     {"OP_CALL", 1},
	OpInvoke:   {"OP_INVOKE", 2},
	OpInvoke16: {"OP_INVOKE_16", 3},
	OpInvoke24: {"OP_INVOKE_24", 4},

	OpClosure:      {"OP_CLOSURE", -1},
	OpClosure16:    {"OP_CLOSURE_16", -1},
	OpClosure24:    {"OP_CLOSURE_24", -1},
	OpCloseUpvalue: {"OP_CLOSE_UPVALUE", 0},
	OpReturn:       {"OP_RETURN", 0},

	OpClass:    {"OP_CLASS", 1},
	OpClass16:  {"OP_CLASS_16", 2},
	OpClass24:  {"OP_CLASS_24", 3},
	OpInherit:  {"OP_INHERIT", 0},
	OpMethod:   {"OP_METHOD", 1},
	OpMethod16: {"OP_METHOD_16", 2},
	OpMethod24: {"OP_METHOD_24", 3},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with an UNKNOWN name if the opcode is not
// recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// indexWidth maps the offset within a variable-width family to the
// number of operand bytes.
func indexWidth(base, op Opcode) int {
	return int(op-base) + 1
}

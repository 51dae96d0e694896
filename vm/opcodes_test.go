package vm

import "testing"

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" {
			t.Errorf("opcode 0x%02X has no name", byte(op))
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	info := GetOpcodeInfo(Opcode(0xEE))
	if info.Name != "UNKNOWN(0xEE)" {
		t.Errorf("unknown opcode name = %q", info.Name)
	}
}

func TestVariableWidthFamiliesAreConsecutive(t *testing.T) {
	families := []Opcode{
		OpConstant, OpClass, OpMethod, OpInvoke, OpClosure,
		OpDefineGlobal, OpGetGlobal, OpSetGlobal,
		OpGetLocal, OpSetLocal,
		OpGetUpvalue, OpSetUpvalue,
		OpGetProperty, OpSetProperty, OpGetSuper,
	}

	wide16 := map[Opcode]Opcode{
		OpConstant: OpConstant16, OpClass: OpClass16, OpMethod: OpMethod16,
		OpInvoke: OpInvoke16, OpClosure: OpClosure16,
		OpDefineGlobal: OpDefineGlobal16, OpGetGlobal: OpGetGlobal16,
		OpSetGlobal: OpSetGlobal16, OpGetLocal: OpGetLocal16,
		OpSetLocal: OpSetLocal16, OpGetUpvalue: OpGetUpvalue16,
		OpSetUpvalue: OpSetUpvalue16, OpGetProperty: OpGetProperty16,
		OpSetProperty: OpSetProperty16, OpGetSuper: OpGetSuper16,
	}
	wide24 := map[Opcode]Opcode{
		OpConstant: OpConstant24, OpClass: OpClass24, OpMethod: OpMethod24,
		OpInvoke: OpInvoke24, OpClosure: OpClosure24,
		OpDefineGlobal: OpDefineGlobal24, OpGetGlobal: OpGetGlobal24,
		OpSetGlobal: OpSetGlobal24, OpGetLocal: OpGetLocal24,
		OpSetLocal: OpSetLocal24, OpGetUpvalue: OpGetUpvalue24,
		OpSetUpvalue: OpSetUpvalue24, OpGetProperty: OpGetProperty24,
		OpSetProperty: OpSetProperty24, OpGetSuper: OpGetSuper24,
	}

	for _, base := range families {
		if wide16[base] != base+1 {
			t.Errorf("%s: 16-bit form is not base+1", base)
		}
		if wide24[base] != base+2 {
			t.Errorf("%s: 24-bit form is not base+2", base)
		}
	}
}

func TestIndexWidth(t *testing.T) {
	if got := indexWidth(OpConstant, OpConstant); got != 1 {
		t.Errorf("indexWidth(base, base) = %d, want 1", got)
	}
	if got := indexWidth(OpConstant, OpConstant16); got != 2 {
		t.Errorf("indexWidth(base, base+1) = %d, want 2", got)
	}
	if got := indexWidth(OpConstant, OpConstant24); got != 3 {
		t.Errorf("indexWidth(base, base+2) = %d, want 3", got)
	}
}

func TestOpcodeString(t *testing.T) {
	if got := OpReturn.String(); got != "OP_RETURN" {
		t.Errorf("OpReturn.String() = %q, want OP_RETURN", got)
	}
	if got := OpConstant24.String(); got != "OP_CONSTANT_24" {
		t.Errorf("OpConstant24.String() = %q, want OP_CONSTANT_24", got)
	}
}

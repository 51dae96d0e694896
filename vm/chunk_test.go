package vm

import "testing"

func TestChunkWrite(t *testing.T) {
	c := NewChunk()

	c.Write(byte(OpNil), 1)
	c.Write(byte(OpReturn), 2)

	if len(c.Code) != 2 {
		t.Fatalf("len(Code) = %d, want 2", len(c.Code))
	}
	if Opcode(c.Code[0]) != OpNil {
		t.Errorf("Code[0] = 0x%02X, want OP_NIL", c.Code[0])
	}
	if c.Lines[0] != 1 || c.Lines[1] != 2 {
		t.Errorf("Lines = %v, want [1 2]", c.Lines)
	}
}

func TestChunkReadBack(t *testing.T) {
	c := NewChunk()
	c.Write(0x10, 1)
	c.Write(0x20, 1)
	c.Write(0x30, 1)

	if got := c.ReadBack(0); got != 0x30 {
		t.Errorf("ReadBack(0) = 0x%02X, want 0x30", got)
	}
	if got := c.ReadBack(2); got != 0x10 {
		t.Errorf("ReadBack(2) = 0x%02X, want 0x10", got)
	}
}

func TestAddConstantDeduplicates(t *testing.T) {
	c := NewChunk()

	i0 := c.AddConstant(NumberValue(1.5))
	i1 := c.AddConstant(NumberValue(2.5))
	i2 := c.AddConstant(NumberValue(1.5))

	if i0 != 0 || i1 != 1 {
		t.Errorf("indices = %d, %d, want 0, 1", i0, i1)
	}
	if i2 != i0 {
		t.Errorf("duplicate constant index = %d, want %d", i2, i0)
	}
	if len(c.Constants) != 2 {
		t.Errorf("len(Constants) = %d, want 2", len(c.Constants))
	}

	machine := NewVM(Options{})
	a := machine.InternString("dup")
	b := machine.InternString("dup")
	ia := c.AddConstant(ObjectValue(&a.Obj))
	ib := c.AddConstant(ObjectValue(&b.Obj))
	if ia != ib {
		t.Errorf("interned string constants got indices %d and %d, want equal", ia, ib)
	}
}

func TestWriteVarOpWidths(t *testing.T) {
	cases := []struct {
		index    int
		wantOp   Opcode
		wantLen  int
	}{
		{0, OpConstant, 2},
		{255, OpConstant, 2},
		{256, OpConstant16, 3},
		{65535, OpConstant16, 3},
		{65536, OpConstant24, 4},
		{1<<24 - 1, OpConstant24, 4},
	}

	for _, tc := range cases {
		c := NewChunk()
		c.WriteVarOp(OpConstant, tc.index, 1)

		if len(c.Code) != tc.wantLen {
			t.Errorf("index %d: len = %d, want %d", tc.index, len(c.Code), tc.wantLen)
			continue
		}
		if Opcode(c.Code[0]) != tc.wantOp {
			t.Errorf("index %d: opcode = %s, want %s", tc.index, Opcode(c.Code[0]), tc.wantOp)
			continue
		}

		width := indexWidth(OpConstant, Opcode(c.Code[0]))
		if got := c.ReadIndex(1, width); got != tc.index {
			t.Errorf("index %d: decoded %d", tc.index, got)
		}
	}
}

func TestJumpPatchRoundTrip(t *testing.T) {
	c := NewChunk()

	at := c.EmitJump(OpJumpIfFalse, 1)
	if c.Code[at] != 0xFF || c.Code[at+1] != 0xFF {
		t.Fatal("EmitJump did not write the 0xFFFF placeholder")
	}

	for i := 0; i < 20; i++ {
		c.Write(byte(OpNil), 1)
	}
	displacement := int16(len(c.Code) - (at + 2))
	c.PatchJump16(at, displacement)

	if got := c.ReadJump(at); got != displacement {
		t.Errorf("ReadJump = %d, want %d", got, displacement)
	}
}

func TestJumpNegativeDisplacement(t *testing.T) {
	c := NewChunk()
	for i := 0; i < 10; i++ {
		c.Write(byte(OpNil), 1)
	}
	at := c.EmitJump(OpJump, 1)
	c.PatchJump16(at, -13) // back to offset 0: 13 = at+2 after reading

	if got := c.ReadJump(at); got != -13 {
		t.Errorf("ReadJump = %d, want -13", got)
	}
}

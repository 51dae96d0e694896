package vm

import (
	"bytes"
	"strings"
	"testing"
)

// buildScript assembles a nameless zero-arity function for direct
// execution, in lieu of the compiler, which lives a package up.
func buildScript(machine *VM, build func(c *Chunk)) *ObjFunction {
	fn := machine.NewFunction()
	machine.PushRoot(ObjectValue(&fn.Obj))
	build(&fn.Chunk)
	machine.PopRoot()
	return fn
}

func runScript(t *testing.T, build func(machine *VM, c *Chunk)) (string, string, InterpretResult) {
	t.Helper()
	var out, errOut bytes.Buffer
	machine := NewVM(Options{Stdout: &out, Stderr: &errOut})
	fn := buildScript(machine, func(c *Chunk) { build(machine, c) })
	result := machine.Interpret(fn)
	return out.String(), errOut.String(), result
}

func TestRunArithmetic(t *testing.T) {
	out, _, result := runScript(t, func(machine *VM, c *Chunk) {
		// print 1 + 2 * 3;  (already folded into operand order)
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(1)), 1)
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(2)), 1)
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(3)), 1)
		c.Write(byte(OpMultiply), 1)
		c.Write(byte(OpAdd), 1)
		c.Write(byte(OpPrint), 1)
		c.Write(byte(OpNil), 1)
		c.Write(byte(OpReturn), 1)
	})

	if result != InterpretOK {
		t.Fatalf("result = %v, want InterpretOK", result)
	}
	if out != "7\n" {
		t.Errorf("output = %q, want \"7\\n\"", out)
	}
}

func TestRunComparisonChain(t *testing.T) {
	out, _, result := runScript(t, func(machine *VM, c *Chunk) {
		// print !(5 - 4 > 3 * 2 == !nil);
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(5)), 1)
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(4)), 1)
		c.Write(byte(OpSubtract), 1)
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(3)), 1)
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(2)), 1)
		c.Write(byte(OpMultiply), 1)
		c.Write(byte(OpGreater), 1)
		c.Write(byte(OpNil), 1)
		c.Write(byte(OpNot), 1)
		c.Write(byte(OpEqual), 1)
		c.Write(byte(OpNot), 1)
		c.Write(byte(OpPrint), 1)
		c.Write(byte(OpNil), 1)
		c.Write(byte(OpReturn), 1)
	})

	if result != InterpretOK {
		t.Fatalf("result = %v, want InterpretOK", result)
	}
	if out != "true\n" {
		t.Errorf("output = %q, want \"true\\n\"", out)
	}
}

func TestRunStringConcatenation(t *testing.T) {
	var interned *ObjString
	out, _, result := runScript(t, func(machine *VM, c *Chunk) {
		he := machine.InternString("he")
		llo := machine.InternString("llo")
		interned = machine.InternString("hello")
		c.WriteVarOp(OpConstant, c.AddConstant(ObjectValue(&he.Obj)), 1)
		c.WriteVarOp(OpConstant, c.AddConstant(ObjectValue(&llo.Obj)), 1)
		c.Write(byte(OpAdd), 1)
		c.WriteVarOp(OpConstant, c.AddConstant(ObjectValue(&interned.Obj)), 1)
		c.Write(byte(OpEqual), 1)
		c.Write(byte(OpPrint), 1)
		c.Write(byte(OpNil), 1)
		c.Write(byte(OpReturn), 1)
	})

	if result != InterpretOK {
		t.Fatalf("result = %v, want InterpretOK", result)
	}
	// concatenation interns, so the result is pointer-equal to "hello"
	if out != "true\n" {
		t.Errorf("output = %q, want \"true\\n\"", out)
	}
}

func TestRunGlobals(t *testing.T) {
	out, _, result := runScript(t, func(machine *VM, c *Chunk) {
		name := machine.InternString("answer")
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(42)), 1)
		c.WriteVarOp(OpDefineGlobal, c.AddConstant(ObjectValue(&name.Obj)), 1)
		c.WriteVarOp(OpGetGlobal, c.AddConstant(ObjectValue(&name.Obj)), 2)
		c.Write(byte(OpPrint), 2)
		c.Write(byte(OpNil), 2)
		c.Write(byte(OpReturn), 2)
	})

	if result != InterpretOK {
		t.Fatalf("result = %v, want InterpretOK", result)
	}
	if out != "42\n" {
		t.Errorf("output = %q, want \"42\\n\"", out)
	}
}

func TestRunJumpForward(t *testing.T) {
	out, _, result := runScript(t, func(machine *VM, c *Chunk) {
		// false branch skips the first print
		c.Write(byte(OpFalse), 1)
		at := c.EmitJump(OpJumpIfFalse, 1)
		c.Write(byte(OpPop), 1)
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(1)), 1)
		c.Write(byte(OpPrint), 1)
		c.PatchJump16(at, int16(len(c.Code)-(at+2)))
		c.Write(byte(OpPop), 1)
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(2)), 1)
		c.Write(byte(OpPrint), 1)
		c.Write(byte(OpNil), 1)
		c.Write(byte(OpReturn), 1)
	})

	if result != InterpretOK {
		t.Fatalf("result = %v, want InterpretOK", result)
	}
	if out != "2\n" {
		t.Errorf("output = %q, want \"2\\n\"", out)
	}
}

func TestRunPopN(t *testing.T) {
	_, _, result := runScript(t, func(machine *VM, c *Chunk) {
		for i := 0; i < 5; i++ {
			c.Write(byte(OpNil), 1)
		}
		c.Write(byte(OpPopN), 1)
		c.Write(5, 1)
		c.Write(byte(OpNil), 1)
		c.Write(byte(OpReturn), 1)
	})

	if result != InterpretOK {
		t.Fatalf("result = %v, want InterpretOK", result)
	}
}

func TestRuntimeErrorOperandMustBeNumber(t *testing.T) {
	_, errOut, result := runScript(t, func(machine *VM, c *Chunk) {
		c.Write(byte(OpTrue), 3)
		c.Write(byte(OpNegate), 3)
	})

	if result != InterpretRuntimeError {
		t.Fatalf("result = %v, want InterpretRuntimeError", result)
	}
	if !strings.Contains(errOut, "Operand must be a number.") {
		t.Errorf("stderr = %q, missing canonical message", errOut)
	}
	if !strings.Contains(errOut, "[line 3] in script") {
		t.Errorf("stderr = %q, missing stack trace line", errOut)
	}
}

func TestRuntimeErrorOperandsMustBeNumbers(t *testing.T) {
	for _, op := range []Opcode{OpSubtract, OpMultiply, OpDivide, OpGreater, OpLess} {
		_, errOut, result := runScript(t, func(machine *VM, c *Chunk) {
			c.Write(byte(OpTrue), 1)
			c.Write(byte(OpTrue), 1)
			c.Write(byte(op), 1)
		})
		if result != InterpretRuntimeError {
			t.Errorf("%s: result = %v, want InterpretRuntimeError", op, result)
		}
		if !strings.Contains(errOut, "Operands must be numbers.") {
			t.Errorf("%s: stderr = %q", op, errOut)
		}
	}
}

func TestRuntimeErrorAddMismatched(t *testing.T) {
	_, errOut, result := runScript(t, func(machine *VM, c *Chunk) {
		s := machine.InternString("s")
		c.WriteVarOp(OpConstant, c.AddConstant(ObjectValue(&s.Obj)), 1)
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(1)), 1)
		c.Write(byte(OpAdd), 1)
	})

	if result != InterpretRuntimeError {
		t.Fatalf("result = %v, want InterpretRuntimeError", result)
	}
	if !strings.Contains(errOut, "Operands must be two numbers or two strings.") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestRuntimeErrorUndefinedVariable(t *testing.T) {
	_, errOut, result := runScript(t, func(machine *VM, c *Chunk) {
		name := machine.InternString("ghost")
		c.WriteVarOp(OpGetGlobal, c.AddConstant(ObjectValue(&name.Obj)), 1)
	})

	if result != InterpretRuntimeError {
		t.Fatalf("result = %v, want InterpretRuntimeError", result)
	}
	if !strings.Contains(errOut, "Undefined variable 'ghost'.") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestRuntimeErrorCallNonCallable(t *testing.T) {
	_, errOut, result := runScript(t, func(machine *VM, c *Chunk) {
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(1)), 1)
		c.Write(byte(OpCall), 1)
		c.Write(0, 1)
	})

	if result != InterpretRuntimeError {
		t.Fatalf("result = %v, want InterpretRuntimeError", result)
	}
	if !strings.Contains(errOut, "Can only call functions and classes.") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestRuntimeErrorResetsStack(t *testing.T) {
	var out bytes.Buffer
	machine := NewVM(Options{Stdout: &out, Stderr: &out})
	fn := buildScript(machine, func(c *Chunk) {
		c.Write(byte(OpTrue), 1)
		c.Write(byte(OpTrue), 1)
		c.Write(byte(OpNegate), 1)
	})

	if machine.Interpret(fn) != InterpretRuntimeError {
		t.Fatal("expected a runtime error")
	}
	if machine.stackTop != 0 {
		t.Errorf("stackTop = %d after runtime error, want 0", machine.stackTop)
	}
	if machine.frameCount != 0 {
		t.Errorf("frameCount = %d after runtime error, want 0", machine.frameCount)
	}
	if machine.openUpvalues != nil {
		t.Error("open upvalues survived the stack reset")
	}
}

func TestNativeClock(t *testing.T) {
	out, _, result := runScript(t, func(machine *VM, c *Chunk) {
		name := machine.InternString("clock")
		// print clock() >= 0;
		c.WriteVarOp(OpGetGlobal, c.AddConstant(ObjectValue(&name.Obj)), 1)
		c.Write(byte(OpCall), 1)
		c.Write(0, 1)
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(0)), 1)
		c.Write(byte(OpLess), 1)
		c.Write(byte(OpNot), 1)
		c.Write(byte(OpPrint), 1)
		c.Write(byte(OpNil), 1)
		c.Write(byte(OpReturn), 1)
	})

	if result != InterpretOK {
		t.Fatalf("result = %v, want InterpretOK", result)
	}
	if out != "true\n" {
		t.Errorf("output = %q, want \"true\\n\"", out)
	}
}

func TestTraceOutput(t *testing.T) {
	var out bytes.Buffer
	machine := NewVM(Options{Trace: true, Stdout: &out, Stderr: &out})
	fn := buildScript(machine, func(c *Chunk) {
		c.WriteVarOp(OpConstant, c.AddConstant(NumberValue(9)), 1)
		c.Write(byte(OpPrint), 1)
		c.Write(byte(OpNil), 1)
		c.Write(byte(OpReturn), 1)
	})
	machine.Interpret(fn)

	text := out.String()
	if !strings.Contains(text, "== trace ==") {
		t.Error("trace banner missing")
	}
	if !strings.Contains(text, "OP_CONSTANT") {
		t.Error("trace does not disassemble instructions")
	}
	if !strings.Contains(text, "[ 9 ]") {
		t.Error("trace does not print the value stack")
	}
}

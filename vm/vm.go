package vm

import (
	"fmt"
	"io"
	"os"
	"time"
)

const (
	// FramesMax is the call-frame limit.
	FramesMax = 64

	// StackMax is the value stack size. The stack is never reallocated;
	// exhausting it is a fatal stack-overflow error.
	StackMax = 64 * 1024
)

// InterpretResult is the outcome of executing a compiled function.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// CallFrame is the execution state of a single call. Slot base of the
// frame is the callee value itself, followed by its arguments and then
// its locals; for methods the callee slot is overwritten with the
// receiver.
type CallFrame struct {
	fn      *ObjFunction
	closure *ObjClosure // nil when calling a plain function
	ip      int
	base    int
}

// Options configures a VM.
type Options struct {
	// Trace prints the value stack and the pending instruction before
	// every dispatch.
	Trace bool

	// GCFloor is the minimum collection threshold in live objects.
	// Zero selects DefaultGCFloor.
	GCFloor int

	// GCStress collects on every allocation.
	GCStress bool

	// Stdout and Stderr default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// VM executes compiled functions. It owns the value stack, the call
// frames, the globals and string-intern tables, and the object heap.
// A VM is single-threaded and not reentrant.
type VM struct {
	stack    []Value
	stackTop int

	frames     []CallFrame
	frameCount int

	globals Table
	strings Table

	// initString is the pinned interned "init", used by class calls.
	initString *ObjString

	objects      *Obj
	openUpvalues *ObjUpvalue
	objectCount  int
	nextGC       int
	gcFloor      int
	gcStress     bool

	// tempRoots holds values the compiler (or a snapshot loader) is
	// still constructing, so a collection cannot sweep them.
	tempRoots []Value

	trace     bool
	stdout    io.Writer
	stderr    io.Writer
	startTime time.Time
}

// NewVM creates a VM with the single built-in native installed.
func NewVM(opts Options) *VM {
	vm := &VM{
		stack:     make([]Value, StackMax),
		frames:    make([]CallFrame, FramesMax),
		trace:     opts.Trace,
		gcStress:  opts.GCStress,
		gcFloor:   opts.GCFloor,
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
		startTime: time.Now(),
	}
	if vm.gcFloor <= 0 {
		vm.gcFloor = DefaultGCFloor
	}
	vm.nextGC = vm.gcFloor
	if vm.stdout == nil {
		vm.stdout = os.Stdout
	}
	if vm.stderr == nil {
		vm.stderr = os.Stderr
	}

	vm.initString = vm.InternString("init")
	registerNatives(vm)
	return vm
}

// Stdout returns the VM's output writer.
func (vm *VM) Stdout() io.Writer { return vm.stdout }

// Stderr returns the VM's error writer. Compile diagnostics share it.
func (vm *VM) Stderr() io.Writer { return vm.stderr }

// PushRoot pins a value against collection while it is being constructed
// outside the stack, typically by the compiler.
func (vm *VM) PushRoot(v Value) {
	vm.tempRoots = append(vm.tempRoots, v)
}

// PopRoot unpins the most recently pushed root.
func (vm *VM) PopRoot() {
	vm.tempRoots = vm.tempRoots[:len(vm.tempRoots)-1]
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(depth int) Value {
	return vm.stack[vm.stackTop-1-depth]
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// runtimeError reports a fatal runtime error: the message, then a stack
// trace innermost first, then the stack is reset.
func (vm *VM) runtimeError(format string, args ...interface{}) {
	fmt.Fprintf(vm.stderr, format, args...)
	fmt.Fprintln(vm.stderr)

	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		// ip already advanced past the failing instruction
		line := frame.fn.Chunk.Lines[frame.ip-1]
		fmt.Fprintf(vm.stderr, "[line %d] in ", line)
		if frame.fn.Name == nil {
			fmt.Fprintf(vm.stderr, "script\n")
		} else {
			fmt.Fprintf(vm.stderr, "%s()\n", frame.fn.Name.Chars)
		}
	}

	vm.resetStack()
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// call pushes a frame for fn. closure is nil when fn was reached as a
// bare constant (zero upvalues).
func (vm *VM) call(fn *ObjFunction, closure *ObjClosure, argCount int) bool {
	if argCount != fn.Arity {
		vm.runtimeError("Expected %d arguments but got %d.", fn.Arity, argCount)
		return false
	}
	if vm.frameCount == FramesMax {
		vm.runtimeError("Stack overflow.")
		return false
	}

	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.fn = fn
	frame.closure = closure
	frame.ip = 0
	frame.base = vm.stackTop - argCount - 1
	return true
}

// callValue dispatches a call on any callable value sitting at
// peek(argCount).
func (vm *VM) callValue(callee Value, argCount int) bool {
	if callee.IsObject() {
		switch callee.Object().Kind {
		case KindFunction:
			return vm.call(callee.AsFunction(), nil, argCount)

		case KindClosure:
			closure := callee.AsClosure()
			return vm.call(closure.Fn, closure, argCount)

		case KindNative:
			native := callee.AsNative()
			result := native.Fn(argCount, vm.stack[vm.stackTop-argCount:vm.stackTop])
			vm.stackTop -= argCount + 1
			vm.push(result)
			return true

		case KindClass:
			class := callee.AsClass()
			instance := vm.NewInstance(class)
			vm.stack[vm.stackTop-argCount-1] = ObjectValue(&instance.Obj)
			if initializer, ok := class.Methods.Get(vm.initString); ok {
				return vm.callValue(initializer, argCount)
			}
			if argCount != 0 {
				vm.runtimeError("Expected 0 arguments but got %d.", argCount)
				return false
			}
			return true

		case KindBoundMethod:
			bound := callee.AsBoundMethod()
			vm.stack[vm.stackTop-argCount-1] = bound.Receiver
			return vm.callValue(bound.Method, argCount)
		}
	}

	vm.runtimeError("Can only call functions and classes.")
	return false
}

// invokeFromClass resolves name in a class's method table and calls it
// against the receiver already sitting in the callee slot.
func (vm *VM) invokeFromClass(class *ObjClass, name *ObjString, argCount int) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	return vm.callValue(method, argCount)
}

// bindMethod looks name up in a class and replaces the receiver on top
// of the stack with a bound method.
func (vm *VM) bindMethod(class *ObjClass, name *ObjString) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}

	bound := vm.NewBoundMethod(vm.peek(0), method)
	vm.pop()
	vm.push(ObjectValue(&bound.Obj))
	return true
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue returns the open upvalue for a stack slot, creating one
// if needed. The open list stays sorted by descending slot.
func (vm *VM) captureUpvalue(slot int) *ObjUpvalue {
	var prev *ObjUpvalue
	upvalue := vm.openUpvalues
	for upvalue != nil && upvalue.Slot > slot {
		prev = upvalue
		upvalue = upvalue.NextOpen
	}
	if upvalue != nil && upvalue.Slot == slot {
		return upvalue
	}

	created := vm.newUpvalue(slot)
	created.NextOpen = upvalue
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above the given stack
// slot, copying the stack value into the upvalue's own storage.
func (vm *VM) closeUpvalues(from int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= from {
		upvalue := vm.openUpvalues
		upvalue.Closed = *upvalue.Location
		upvalue.Location = &upvalue.Closed
		upvalue.Slot = -1
		vm.openUpvalues = upvalue.NextOpen
		upvalue.NextOpen = nil
	}
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// concatenate joins the two strings on top of the stack, interning the
// result. The operands stay on the stack until the result exists so a
// collection cannot free them.
func (vm *VM) concatenate() bool {
	b := vm.peek(0).AsString()
	a := vm.peek(1).AsString()

	if len(a.Chars)+len(b.Chars) >= StringMaxLen {
		vm.runtimeError("String too long.")
		return false
	}

	result := vm.InternString(a.Chars + b.Chars)
	vm.pop()
	vm.pop()
	vm.push(ObjectValue(&result.Obj))
	return true
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Interpret executes a compiled top-level function.
func (vm *VM) Interpret(fn *ObjFunction) InterpretResult {
	vm.push(ObjectValue(&fn.Obj))
	vm.call(fn, nil, 0)

	if vm.trace {
		fmt.Fprintf(vm.stdout, "\n== trace ==\n")
	}
	return vm.run()
}

func (vm *VM) run() InterpretResult {
	frame := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := frame.fn.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}

	// readIndex decodes a 1/2/3-byte little-endian operand; it is shared
	// by every variable-width opcode family.
	readIndex := func(width int) int {
		index := frame.fn.Chunk.ReadIndex(frame.ip, width)
		frame.ip += width
		return index
	}

	readJump := func() int {
		d := frame.fn.Chunk.ReadJump(frame.ip)
		frame.ip += 2
		return int(d)
	}

	readConstant := func(width int) Value {
		return frame.fn.Chunk.Constants[readIndex(width)]
	}

	readString := func(width int) *ObjString {
		return readConstant(width).AsString()
	}

	for {
		// No single instruction grows the stack by more than one slot.
		if vm.stackTop >= StackMax-1 {
			vm.runtimeError("Stack overflow.")
			return InterpretRuntimeError
		}

		if vm.trace {
			fmt.Fprintf(vm.stdout, "          ")
			for i := 0; i < vm.stackTop; i++ {
				fmt.Fprintf(vm.stdout, "[ %s ]", FormatValue(vm.stack[i]))
			}
			fmt.Fprintf(vm.stdout, "\n")
			frame.fn.Chunk.DisassembleInstruction(vm.stdout, frame.ip)
		}

		inst := Opcode(readByte())

		switch inst {

		case OpConstant, OpConstant16, OpConstant24:
			vm.push(readConstant(indexWidth(OpConstant, inst)))

		case OpNil:
			vm.push(Nil)
		case OpTrue:
			vm.push(True)
		case OpFalse:
			vm.push(False)

		case OpPop:
			vm.pop()

		case OpPopN:
			n := int(readByte())
			vm.stackTop -= n

		case OpGetLocal, OpGetLocal16, OpGetLocal24:
			slot := readIndex(indexWidth(OpGetLocal, inst))
			vm.push(vm.stack[frame.base+slot])

		case OpSetLocal, OpSetLocal16, OpSetLocal24:
			slot := readIndex(indexWidth(OpSetLocal, inst))
			vm.stack[frame.base+slot] = vm.peek(0)

		case OpGetGlobal, OpGetGlobal16, OpGetGlobal24:
			name := readString(indexWidth(OpGetGlobal, inst))
			value, ok := vm.globals.Get(name)
			if !ok {
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}
			vm.push(value)

		case OpDefineGlobal, OpDefineGlobal16, OpDefineGlobal24:
			name := readString(indexWidth(OpDefineGlobal, inst))
			vm.globals.Put(name, vm.peek(0))
			vm.pop()

		case OpSetGlobal, OpSetGlobal16, OpSetGlobal24:
			name := readString(indexWidth(OpSetGlobal, inst))
			if !vm.globals.Set(name, vm.peek(0)) {
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}

		case OpGetUpvalue, OpGetUpvalue16, OpGetUpvalue24:
			index := readIndex(indexWidth(OpGetUpvalue, inst))
			vm.push(*frame.closure.Upvalues[index].Location)

		case OpSetUpvalue, OpSetUpvalue16, OpSetUpvalue24:
			index := readIndex(indexWidth(OpSetUpvalue, inst))
			*frame.closure.Upvalues[index].Location = vm.peek(0)

		case OpGetProperty, OpGetProperty16, OpGetProperty24:
			if !vm.peek(0).IsInstance() {
				vm.runtimeError("Only instances have properties.")
				return InterpretRuntimeError
			}
			instance := vm.peek(0).AsInstance()
			name := readString(indexWidth(OpGetProperty, inst))

			if value, ok := instance.Fields.Get(name); ok {
				vm.pop()
				vm.push(value)
				break
			}
			if !vm.bindMethod(instance.Class, name) {
				return InterpretRuntimeError
			}

		case OpSetProperty, OpSetProperty16, OpSetProperty24:
			if !vm.peek(1).IsInstance() {
				vm.runtimeError("Only instances have fields.")
				return InterpretRuntimeError
			}
			instance := vm.peek(1).AsInstance()
			name := readString(indexWidth(OpSetProperty, inst))
			instance.Fields.Put(name, vm.peek(0))

			// leave the stored value on top, instance popped beneath
			value := vm.pop()
			vm.pop()
			vm.push(value)

		case OpGetSuper, OpGetSuper16, OpGetSuper24:
			name := readString(indexWidth(OpGetSuper, inst))
			superclass := vm.pop().AsClass()
			if !vm.bindMethod(superclass, name) {
				return InterpretRuntimeError
			}

		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolValue(ValuesEqual(a, b)))

		case OpGreater:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				vm.runtimeError("Operands must be numbers.")
				return InterpretRuntimeError
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(BoolValue(a > b))

		case OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				vm.runtimeError("Operands must be numbers.")
				return InterpretRuntimeError
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(BoolValue(a < b))

		case OpAdd:
			if vm.peek(0).IsString() && vm.peek(1).IsString() {
				if !vm.concatenate() {
					return InterpretRuntimeError
				}
			} else if vm.peek(0).IsNumber() && vm.peek(1).IsNumber() {
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(NumberValue(a + b))
			} else {
				vm.runtimeError("Operands must be two numbers or two strings.")
				return InterpretRuntimeError
			}

		case OpSubtract:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				vm.runtimeError("Operands must be numbers.")
				return InterpretRuntimeError
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(NumberValue(a - b))

		case OpMultiply:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				vm.runtimeError("Operands must be numbers.")
				return InterpretRuntimeError
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(NumberValue(a * b))

		case OpDivide:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				vm.runtimeError("Operands must be numbers.")
				return InterpretRuntimeError
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(NumberValue(a / b))

		case OpNot:
			vm.push(BoolValue(!vm.pop().IsTruthy()))

		case OpNegate:
			if !vm.peek(0).IsNumber() {
				vm.runtimeError("Operand must be a number.")
				return InterpretRuntimeError
			}
			vm.push(NumberValue(-vm.pop().AsNumber()))

		case OpPrint:
			fmt.Fprintln(vm.stdout, FormatValue(vm.pop()))

		case OpJump:
			frame.ip += readJump()

		case OpJumpIfFalse:
			displacement := readJump()
			if !vm.peek(0).IsTruthy() {
				frame.ip += displacement
			}

		case OpJumpIfTrue:
			displacement := readJump()
			if vm.peek(0).IsTruthy() {
				frame.ip += displacement
			}

		case OpCall:
			argCount := int(readByte())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]

		case OpInvoke, OpInvoke16, OpInvoke24:
			name := readString(indexWidth(OpInvoke, inst))
			argCount := int(readByte())

			receiver := vm.peek(argCount)
			if !receiver.IsInstance() {
				vm.runtimeError("Only instances have methods.")
				return InterpretRuntimeError
			}
			instance := receiver.AsInstance()

			if field, ok := instance.Fields.Get(name); ok {
				vm.stack[vm.stackTop-argCount-1] = field
				if !vm.callValue(field, argCount) {
					return InterpretRuntimeError
				}
			} else if !vm.invokeFromClass(instance.Class, name, argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]

		case OpClosure, OpClosure16, OpClosure24:
			fn := readConstant(indexWidth(OpClosure, inst)).AsFunction()
			closure := vm.NewClosure(fn)
			vm.push(ObjectValue(&closure.Obj))
			for i := 0; i < fn.UpvalueCount; i++ {
				descriptor := readIndex(2)
				isLocal := descriptor&0x8000 != 0
				index := descriptor & 0x7FFF
				if isLocal {
					closure.Upvalues[i] = vm.captureUpvalue(frame.base + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.base)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // script callee
				return InterpretOK
			}
			vm.stackTop = frame.base
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		case OpClass, OpClass16, OpClass24:
			name := readString(indexWidth(OpClass, inst))
			class := vm.NewClass(name)
			vm.push(ObjectValue(&class.Obj))

		case OpInherit:
			superclass := vm.peek(1)
			if !superclass.IsClass() {
				vm.runtimeError("Superclass must be a class.")
				return InterpretRuntimeError
			}
			subclass := vm.peek(0).AsClass()
			subclass.Methods.PutAll(&superclass.AsClass().Methods)
			vm.pop() // subclass

		case OpMethod, OpMethod16, OpMethod24:
			name := readString(indexWidth(OpMethod, inst))
			method := vm.peek(0)
			class := vm.peek(1).AsClass()
			class.Methods.Put(name, method)
			vm.pop()

		default:
			vm.runtimeError("Unknown opcode 0x%02X.", byte(inst))
			return InterpretRuntimeError
		}
	}
}

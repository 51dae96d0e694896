package vm

import (
	"fmt"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Heap objects
// ---------------------------------------------------------------------------

// ObjKind identifies the variant of a heap object.
type ObjKind uint8

const (
	KindString ObjKind = iota
	KindFunction
	KindNative
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
)

var objKindNames = map[ObjKind]string{
	KindString:      "string",
	KindFunction:    "function",
	KindNative:      "native",
	KindClosure:     "closure",
	KindUpvalue:     "upvalue",
	KindClass:       "class",
	KindInstance:    "instance",
	KindBoundMethod: "bound method",
}

func (k ObjKind) String() string {
	if name, ok := objKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ObjKind(%d)", k)
}

// Obj is the header shared by every heap allocation. It carries the
// variant tag, the GC mark bit, and the link into the VM's allocation
// list. Subtypes embed Obj as their first field, so a pointer to the
// subtype and a pointer to its header are the same address.
type Obj struct {
	Kind   ObjKind
	Marked bool
	Next   *Obj
}

// ObjString is an immutable byte sequence with a cached FNV-1a hash.
// Strings are always interned: two equal strings are the same object.
type ObjString struct {
	Obj
	Hash  uint32
	Chars string
}

// ObjFunction is a compiled function: arity, captured-upvalue count, the
// bytecode chunk, and an optional name.
type ObjFunction struct {
	Obj
	Arity        int
	UpvalueCount int
	Name         *ObjString // nil for the top-level script
	Chunk        Chunk
}

// NativeFn is the signature of a built-in function.
// Natives borrow the argument slice and must not retain it past return.
type NativeFn func(argCount int, args []Value) Value

// ObjNative wraps a built-in function.
type ObjNative struct {
	Obj
	Fn NativeFn
}

// ObjClosure pairs a function with its captured upvalue cells.
type ObjClosure struct {
	Obj
	Fn       *ObjFunction
	Upvalues []*ObjUpvalue
}

// ObjUpvalue is a captured variable. While open it references a live
// stack slot; once closed it owns its value in Closed. Open upvalues are
// linked through NextOpen in a VM-wide list sorted by descending slot.
type ObjUpvalue struct {
	Obj
	Location *Value // points into the stack while open, at &Closed once closed
	Slot     int    // stack slot while open, -1 once closed
	Closed   Value
	NextOpen *ObjUpvalue
}

// ObjClass is a class: a name and a method table.
type ObjClass struct {
	Obj
	Name    *ObjString
	Methods Table
}

// ObjInstance is an instance of a class with an open set of fields.
type ObjInstance struct {
	Obj
	Class  *ObjClass
	Fields Table
}

// ObjBoundMethod pairs a receiver with a method pulled off its class.
type ObjBoundMethod struct {
	Obj
	Receiver Value
	Method   Value // closure or function
}

// StringMaxLen is the longest representable string. Interning and
// concatenation reject anything at or above this length.
const StringMaxLen = 0x7FFFFF00

// hashString computes the 32-bit FNV-1a hash of a string.
func hashString(s string) uint32 {
	hash := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// ---------------------------------------------------------------------------
// Value accessors for object subtypes
// ---------------------------------------------------------------------------

func (v Value) isObjKind(k ObjKind) bool {
	return v.IsObject() && v.Object().Kind == k
}

// IsString returns true if v is a string object.
func (v Value) IsString() bool { return v.isObjKind(KindString) }

// IsFunction returns true if v is a function object.
func (v Value) IsFunction() bool { return v.isObjKind(KindFunction) }

// IsNative returns true if v is a native function object.
func (v Value) IsNative() bool { return v.isObjKind(KindNative) }

// IsClosure returns true if v is a closure object.
func (v Value) IsClosure() bool { return v.isObjKind(KindClosure) }

// IsClass returns true if v is a class object.
func (v Value) IsClass() bool { return v.isObjKind(KindClass) }

// IsInstance returns true if v is an instance object.
func (v Value) IsInstance() bool { return v.isObjKind(KindInstance) }

// IsBoundMethod returns true if v is a bound method object.
func (v Value) IsBoundMethod() bool { return v.isObjKind(KindBoundMethod) }

// AsString returns v as a string object. The caller must have checked the kind.
func (v Value) AsString() *ObjString { return (*ObjString)(unsafe.Pointer(v.Object())) }

// AsFunction returns v as a function object. The caller must have checked the kind.
func (v Value) AsFunction() *ObjFunction { return (*ObjFunction)(unsafe.Pointer(v.Object())) }

// AsNative returns v as a native object. The caller must have checked the kind.
func (v Value) AsNative() *ObjNative { return (*ObjNative)(unsafe.Pointer(v.Object())) }

// AsClosure returns v as a closure object. The caller must have checked the kind.
func (v Value) AsClosure() *ObjClosure { return (*ObjClosure)(unsafe.Pointer(v.Object())) }

// AsClass returns v as a class object. The caller must have checked the kind.
func (v Value) AsClass() *ObjClass { return (*ObjClass)(unsafe.Pointer(v.Object())) }

// AsInstance returns v as an instance object. The caller must have checked the kind.
func (v Value) AsInstance() *ObjInstance { return (*ObjInstance)(unsafe.Pointer(v.Object())) }

// AsBoundMethod returns v as a bound method object. The caller must have checked the kind.
func (v Value) AsBoundMethod() *ObjBoundMethod { return (*ObjBoundMethod)(unsafe.Pointer(v.Object())) }

// ---------------------------------------------------------------------------
// Allocation (all through the VM, which owns the heap)
// ---------------------------------------------------------------------------

// registerObject threads a freshly allocated object onto the allocation
// list. A collection may run first; the new object is not yet reachable,
// so it cannot be swept.
func (vm *VM) registerObject(o *Obj) {
	vm.maybeCollect()
	o.Next = vm.objects
	vm.objects = o
	vm.objectCount++
}

// InternString returns the canonical string object for the given bytes,
// allocating and interning it on first sight. Strings at or above
// StringMaxLen are rejected by returning nil.
func (vm *VM) InternString(chars string) *ObjString {
	if len(chars) >= StringMaxLen {
		return nil
	}
	hash := hashString(chars)
	if interned := vm.strings.FindString(chars, hash); interned != nil {
		return interned
	}

	s := &ObjString{Obj: Obj{Kind: KindString}, Hash: hash, Chars: chars}
	vm.registerObject(&s.Obj)
	vm.strings.Put(s, Nil)
	return s
}

// NewFunction allocates an empty function object.
func (vm *VM) NewFunction() *ObjFunction {
	f := &ObjFunction{Obj: Obj{Kind: KindFunction}}
	vm.registerObject(&f.Obj)
	return f
}

// NewNative allocates a native function object.
func (vm *VM) NewNative(fn NativeFn) *ObjNative {
	n := &ObjNative{Obj: Obj{Kind: KindNative}, Fn: fn}
	vm.registerObject(&n.Obj)
	return n
}

// NewClosure allocates a closure over fn with an empty upvalue vector.
func (vm *VM) NewClosure(fn *ObjFunction) *ObjClosure {
	c := &ObjClosure{
		Obj:      Obj{Kind: KindClosure},
		Fn:       fn,
		Upvalues: make([]*ObjUpvalue, fn.UpvalueCount),
	}
	vm.registerObject(&c.Obj)
	return c
}

// newUpvalue allocates an open upvalue referencing the given stack slot.
func (vm *VM) newUpvalue(slot int) *ObjUpvalue {
	u := &ObjUpvalue{
		Obj:      Obj{Kind: KindUpvalue},
		Location: &vm.stack[slot],
		Slot:     slot,
		Closed:   Nil,
	}
	vm.registerObject(&u.Obj)
	return u
}

// NewClass allocates a class with an empty method table.
func (vm *VM) NewClass(name *ObjString) *ObjClass {
	c := &ObjClass{Obj: Obj{Kind: KindClass}, Name: name}
	vm.registerObject(&c.Obj)
	return c
}

// NewInstance allocates an instance of class with no fields.
func (vm *VM) NewInstance(class *ObjClass) *ObjInstance {
	i := &ObjInstance{Obj: Obj{Kind: KindInstance}, Class: class}
	vm.registerObject(&i.Obj)
	return i
}

// NewBoundMethod allocates a binding of method to receiver.
func (vm *VM) NewBoundMethod(receiver, method Value) *ObjBoundMethod {
	b := &ObjBoundMethod{Obj: Obj{Kind: KindBoundMethod}, Receiver: receiver, Method: method}
	vm.registerObject(&b.Obj)
	return b
}

// defineNative installs a native function in the globals table. The
// push/pop pair keeps both values reachable if interning triggers a
// collection.
func (vm *VM) defineNative(name string, fn NativeFn) {
	native := vm.NewNative(fn)
	vm.push(ObjectValue(&native.Obj))
	str := vm.InternString(name)
	vm.push(ObjectValue(&str.Obj))
	vm.globals.Put(str, vm.stack[vm.stackTop-2])
	vm.pop()
	vm.pop()
}

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

func formatFunction(fn *ObjFunction) string {
	if fn.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", fn.Name.Chars)
}

func formatObject(o *Obj) string {
	switch o.Kind {
	case KindString:
		return (*ObjString)(unsafe.Pointer(o)).Chars
	case KindFunction:
		return formatFunction((*ObjFunction)(unsafe.Pointer(o)))
	case KindNative:
		return "<native fn>"
	case KindClosure:
		return formatFunction((*ObjClosure)(unsafe.Pointer(o)).Fn)
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return (*ObjClass)(unsafe.Pointer(o)).Name.Chars
	case KindInstance:
		return (*ObjInstance)(unsafe.Pointer(o)).Class.Name.Chars + " instance"
	case KindBoundMethod:
		bound := (*ObjBoundMethod)(unsafe.Pointer(o))
		return FormatValue(bound.Method)
	default:
		return fmt.Sprintf("<obj %s>", o.Kind)
	}
}

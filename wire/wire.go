// Package wire serializes compiled functions to canonical CBOR for
// debugging and tooling. The format is internal: there is no on-disk
// compatibility promise between versions.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/ringtail/vm"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// cborEncMode holds CBOR encoding options with canonical mode for
// deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Constant kinds in a snapshot.
const (
	ConstNumber   = "number"
	ConstString   = "string"
	ConstNil      = "nil"
	ConstTrue     = "true"
	ConstFalse    = "false"
	ConstFunction = "function"
)

// Constant is one constant-pool entry.
type Constant struct {
	Kind     string    `cbor:"kind"`
	Number   float64   `cbor:"number,omitempty"`
	String   string    `cbor:"string,omitempty"`
	Function *Function `cbor:"function,omitempty"`
}

// Function is a serialized function: its code, its line map, and its
// constants, with nested functions serialized recursively.
type Function struct {
	Name         string     `cbor:"name,omitempty"`
	Arity        int        `cbor:"arity"`
	UpvalueCount int        `cbor:"upvalues"`
	Code         []byte     `cbor:"code"`
	Lines        []int      `cbor:"lines"`
	Constants    []Constant `cbor:"constants"`
}

// Snapshot wraps a top-level function with a format version.
type Snapshot struct {
	Version  uint16   `cbor:"version"`
	Function Function `cbor:"function"`
}

// MarshalFunction serializes a compiled top-level function to CBOR.
func MarshalFunction(fn *vm.ObjFunction) ([]byte, error) {
	data, err := encodeFunction(fn)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(&Snapshot{Version: SnapshotVersion, Function: *data})
}

// UnmarshalFunction deserializes a snapshot into a function on the given
// VM. Strings are re-interned through the VM, so the interning invariant
// holds for loaded snapshots.
func UnmarshalFunction(data []byte, machine *vm.VM) (*vm.ObjFunction, error) {
	var snapshot Snapshot
	if err := cbor.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("wire: unmarshal snapshot: %w", err)
	}
	if snapshot.Version > SnapshotVersion {
		return nil, fmt.Errorf("wire: snapshot version %d is newer than supported version %d",
			snapshot.Version, SnapshotVersion)
	}
	return decodeFunction(&snapshot.Function, machine)
}

func encodeFunction(fn *vm.ObjFunction) (*Function, error) {
	out := &Function{
		Arity:        fn.Arity,
		UpvalueCount: fn.UpvalueCount,
		Code:         fn.Chunk.Code,
		Lines:        fn.Chunk.Lines,
	}
	if fn.Name != nil {
		out.Name = fn.Name.Chars
	}

	out.Constants = make([]Constant, 0, len(fn.Chunk.Constants))
	for i, value := range fn.Chunk.Constants {
		constant, err := encodeConstant(value)
		if err != nil {
			return nil, fmt.Errorf("wire: constant %d: %w", i, err)
		}
		out.Constants = append(out.Constants, constant)
	}
	return out, nil
}

func encodeConstant(v vm.Value) (Constant, error) {
	switch {
	case v.IsNumber():
		return Constant{Kind: ConstNumber, Number: v.AsNumber()}, nil
	case v == vm.Nil:
		return Constant{Kind: ConstNil}, nil
	case v == vm.True:
		return Constant{Kind: ConstTrue}, nil
	case v == vm.False:
		return Constant{Kind: ConstFalse}, nil
	case v.IsString():
		return Constant{Kind: ConstString, String: v.AsString().Chars}, nil
	case v.IsFunction():
		fn, err := encodeFunction(v.AsFunction())
		if err != nil {
			return Constant{}, err
		}
		return Constant{Kind: ConstFunction, Function: fn}, nil
	default:
		return Constant{}, fmt.Errorf("unsupported constant kind %s", v.Object().Kind)
	}
}

func decodeFunction(data *Function, machine *vm.VM) (*vm.ObjFunction, error) {
	fn := machine.NewFunction()

	// Pin the function while its constants are rebuilt; interning can
	// trigger a collection.
	machine.PushRoot(vm.ObjectValue(&fn.Obj))
	defer machine.PopRoot()

	fn.Arity = data.Arity
	fn.UpvalueCount = data.UpvalueCount
	fn.Chunk.Code = append([]byte(nil), data.Code...)
	fn.Chunk.Lines = append([]int(nil), data.Lines...)
	if data.Name != "" {
		fn.Name = machine.InternString(data.Name)
	}

	for i := range data.Constants {
		value, err := decodeConstant(&data.Constants[i], machine)
		if err != nil {
			return nil, fmt.Errorf("wire: constant %d: %w", i, err)
		}
		fn.Chunk.Constants = append(fn.Chunk.Constants, value)
	}
	return fn, nil
}

func decodeConstant(c *Constant, machine *vm.VM) (vm.Value, error) {
	switch c.Kind {
	case ConstNumber:
		return vm.NumberValue(c.Number), nil
	case ConstNil:
		return vm.Nil, nil
	case ConstTrue:
		return vm.True, nil
	case ConstFalse:
		return vm.False, nil
	case ConstString:
		str := machine.InternString(c.String)
		if str == nil {
			return vm.Nil, fmt.Errorf("string constant too long")
		}
		return vm.ObjectValue(&str.Obj), nil
	case ConstFunction:
		if c.Function == nil {
			return vm.Nil, fmt.Errorf("function constant missing body")
		}
		fn, err := decodeFunction(c.Function, machine)
		if err != nil {
			return vm.Nil, err
		}
		return vm.ObjectValue(&fn.Obj), nil
	default:
		return vm.Nil, fmt.Errorf("unknown constant kind %q", c.Kind)
	}
}

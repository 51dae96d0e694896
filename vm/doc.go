// Package vm provides the ringtail runtime: the NaN-boxed value
// representation, the heap object model, the bytecode chunk format, and
// a stack-based virtual machine with a precise mark-and-sweep collector.
//
// The bytecode format is designed for:
//   - Compact representation (most instructions are 1-4 bytes)
//   - Fast decoding (widths derived from the opcode itself)
//   - Simple emission (the compiler picks the smallest operand that fits)
//
// # Architecture Overview
//
//   - Value: a 64-bit NaN-boxed word holding nil, a boolean, an IEEE-754
//     double, or a 48-bit heap pointer
//
//   - Obj and friends: heap objects sharing a header with a variant tag,
//     a mark bit, and the allocation-list link the sweeper walks
//
//   - Table: an open-addressed, tombstone-preserving hash table keyed by
//     interned strings; it backs globals, fields, methods, and the
//     string intern table
//
//   - Chunk: a bytecode buffer with a parallel source-line map and a
//     de-duplicated constant pool; index-carrying opcodes come in
//     8/16/24-bit little-endian families
//
//   - VM: the dispatch loop, value stack, call frames, and open upvalue
//     list; it owns the heap and is single-threaded and non-reentrant
//
// # Garbage Collection
//
// Collection is triggered at allocation sites when the live object count
// reaches a threshold, which doubles with the surviving population.
// Roots are the value stack, the call frames, the open upvalues, the
// globals, the pinned "init" string, and any values registered through
// PushRoot while the compiler or a snapshot loader is constructing them.
// The string intern table is weak: unmarked strings drop out of it
// before the sweep.
package vm

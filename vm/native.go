package vm

import "time"

// registerNatives installs the built-in functions. There is exactly one:
// clock() returns seconds since the VM started, as a number.
//
// Natives run synchronously on the VM's thread and cannot signal errors;
// they return a value unconditionally.
func registerNatives(vm *VM) {
	vm.defineNative("clock", func(argCount int, args []Value) Value {
		return NumberValue(time.Since(vm.startTime).Seconds())
	})
}

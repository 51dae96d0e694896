// ring - the ringtail interpreter CLI
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/ringtail/compiler"
	"github.com/chazu/ringtail/manifest"
	"github.com/chazu/ringtail/vm"
	"github.com/chazu/ringtail/wire"
)

// sysexits-style exit codes
const (
	exUsage    = 64 // incorrect command-line usage
	exDataErr  = 65 // compile errors
	exSoftware = 70 // runtime errors
	exIOErr    = 74 // I/O error
)

var log = commonlog.GetLogger("ring")

func main() {
	debug := flag.Bool("d", false, "Trace execution and disassemble each instruction")
	verbose := flag.Bool("v", false, "Verbose output")
	emitPath := flag.String("emit", "", "Write a bytecode snapshot to this path instead of executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ring [-d] [-v] [-emit out] [path]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the script at path, or starts an interactive session.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ring                      # Start the REPL\n")
		fmt.Fprintf(os.Stderr, "  ring script.rtl           # Run a script\n")
		fmt.Fprintf(os.Stderr, "  ring -d script.rtl        # Run with execution tracing\n")
		fmt.Fprintf(os.Stderr, "  ring -emit out.rtc script.rtl  # Compile to a snapshot\n")
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(1, nil)
	}

	opts := vm.Options{Trace: *debug}

	// ringtail.toml settings apply beneath the command line.
	man, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	} else if man != nil {
		log.Infof("loaded manifest from %s", man.Dir)
		opts.Trace = opts.Trace || man.VM.Trace
		opts.GCFloor = man.GC.Floor
		opts.GCStress = man.GC.Stress
	}

	machine := vm.NewVM(opts)

	switch args := flag.Args(); len(args) {
	case 0:
		if *emitPath != "" {
			fmt.Fprintf(os.Stderr, "Usage: ring -emit out [path]\n")
			os.Exit(exUsage)
		}
		repl(machine)
	case 1:
		runFile(machine, args[0], *emitPath, opts.Trace)
	default:
		fmt.Fprintf(os.Stderr, "Usage: ring [-d] [path]\n")
		os.Exit(exUsage)
	}
}

// readSource reads a script file. The buffer is binary-safe up to a
// trailing NUL, which is stripped.
func readSource(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file \"%s\".\n", path)
		os.Exit(exIOErr)
	}
	if n := len(data); n > 0 && data[n-1] == 0 {
		data = data[:n-1]
	}
	return string(data)
}

func runFile(machine *vm.VM, path, emitPath string, disassemble bool) {
	src := readSource(path)

	fn, err := compiler.Compile(src, machine)
	if err != nil {
		os.Exit(exDataErr)
	}
	if disassemble {
		fn.Chunk.Disassemble(os.Stdout, "script")
	}

	if emitPath != "" {
		blob, err := wire.MarshalFunction(fn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exSoftware)
		}
		if err := os.WriteFile(emitPath, blob, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write file \"%s\".\n", emitPath)
			os.Exit(exIOErr)
		}
		log.Infof("wrote snapshot %s (%d bytes)", emitPath, len(blob))
		return
	}

	if machine.Interpret(fn) == vm.InterpretRuntimeError {
		os.Exit(exSoftware)
	}
}

// repl reads one line at a time. The prompt only appears when stdin is
// a terminal, so piped input produces clean output.
func repl(machine *vm.VM) {
	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			if interactive {
				fmt.Println()
			}
			break
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		fn, err := compiler.Compile(line, machine)
		if err != nil {
			continue
		}
		machine.Interpret(fn)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(exIOErr)
	}
}

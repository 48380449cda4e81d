package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"

	"setl/internal/bytecode"
	"setl/internal/fileio"
	"setl/internal/interp"
	"setl/internal/ioformat"
	"setl/internal/loader"
	"setl/internal/procsched"
	"setl/internal/serr"
	"setl/internal/symtab"
	"setl/internal/value"
)

var (
	VERSION   = "1.0.0"
	BuildDate = "2026-07-15"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("setl: ")

	var libPath string
	safe := false
	trace := false
	stats := false

	for _, arg := range os.Args[1:] {
		switch arg {
		case "-safe", "--safe":
			safe = true
		case "-trace", "--trace":
			trace = true
		case "-stats", "--stats":
			stats = true
		case "-version", "--version", "-v":
			showVersion()
			return
		case "-help", "--help", "-h":
			showUsage()
			return
		default:
			if libPath != "" {
				log.Printf("unexpected argument %q", arg)
				showUsage()
				os.Exit(2)
			}
			libPath = arg
		}
	}
	if libPath == "" {
		showUsage()
		os.Exit(2)
	}

	os.Exit(run(libPath, safe, trace, stats))
}

func run(libPath string, safe, trace, stats bool) int {
	vm := interp.New()
	sched := procsched.NewScheduler(vm)
	sched.Bind(vm)

	pid := int32(os.Getpid())
	stamp := time.Now().Unix()
	table := fileio.NewTable(vm.Atoms, pid, stamp)
	table.Safe = safe
	defer table.CloseAll()

	codec := ioformat.NewCodec(pid, stamp)

	lib, err := loader.OpenFile(libPath)
	if err != nil {
		log.Printf("%v", err)
		return 2
	}
	ld := loader.New(vm, lib)

	// The binary codec loads classes lazily while decoding objects.
	codec.ClassVars = func(class string) (int, error) {
		if _, err := ld.Load(class); err != nil {
			return 0, err
		}
		return vm.Slots.VarCount(class), nil
	}
	codec.MakeObject = func(class string, vars []value.Specifier) (value.Specifier, error) {
		obj := value.NewObject(class, len(vars))
		for i, v := range vars {
			obj = obj.SetVar(i, v)
		}
		return value.MakeObject(obj), nil
	}

	fileio.Bind(vm, table, codec, sched)

	if trace {
		vm.Trace = func(frame *interp.Frame, instr bytecode.Instr) {
			log.Printf("%-10s %s", instr.Op, pretty.Sprint(instr))
		}
	}

	prog, err := findProgram(lib)
	if err != nil {
		log.Printf("%v", err)
		return 2
	}
	unit, err := ld.Load(prog)
	if err != nil {
		log.Printf("%v", err)
		return exitStatus(err)
	}

	entry := &value.Procedure{
		Unit:  prog,
		Chunk: unit.BodyCode,
		Env:   unit.SpecBlock,
	}
	_, err = sched.Main(entry, nil)
	table.CloseAll()

	if stats {
		procs, runnable, pending, steps := sched.Stats()
		log.Printf("executed %s instructions", humanize.Comma(int64(steps)))
		log.Printf("%d processes (%d runnable at exit), %d pending messages", procs, runnable, pending)
		log.Printf("%d open files at exit, %s spec block", table.Count(), humanize.Bytes(uint64(len(unit.SpecBlock))*24))
	}

	if err != nil && err != interp.ErrStopAll {
		if _, handled := vm.ConsultAbend(err); handled {
			return 0
		}
		log.Printf("%v", err)
		return exitStatus(err)
	}
	return 0
}

// findProgram picks the program unit out of the library; a compiled
// library holds exactly one.
func findProgram(lib *loader.FileLibrary) (string, error) {
	for _, name := range lib.Units() {
		rec, err := lib.ReadUnit(name)
		if err != nil {
			continue
		}
		if rec.Type == symtab.UnitProgram {
			return name, nil
		}
	}
	return "", fmt.Errorf("library contains no program unit")
}

func exitStatus(err error) int {
	if serr.IsGiveup(err) {
		return 2
	}
	return 1
}

func showVersion() {
	fmt.Printf("setl %s (built %s)\n", VERSION, BuildDate)
}

func showUsage() {
	fmt.Println(`usage: setl [options] <library>

Runs the program unit of a compiled library.

options:
  -safe      restrict file access to File1..File5
  -trace     pretty-print each instruction as it executes
  -stats     print execution counters on exit
  -version   print version and exit
  -help      this text`)
}

package fileio

import (
	"setl/internal/interp"
	"setl/internal/ioformat"
	"setl/internal/procsched"
	"setl/internal/serr"
	"setl/internal/value"
)

// Bind registers the I/O and serialization built-ins on vm's native
// registry under the predefined library. sched may be nil when
// running without a process scheduler; when present, blocking reads
// hand the baton off through its bounded I/O pool.
func Bind(vm *interp.VM, t *Table, codec *ioformat.Codec, sched *procsched.Scheduler) {
	vm.Files = t

	strOv := func(obj *value.ObjectHeader) (string, bool) {
		res, ok, err := vm.StrOverride(obj)
		if err != nil || !ok || res.Form != value.FormString {
			return "", false
		}
		return res.Ptr.(*value.StringHeader).String(), true
	}

	blocking := func(v *interp.VM, fn func() error) error {
		if sched != nil {
			return sched.BlockingIO(v, fn)
		}
		return fn()
	}

	handleArg := func(args []value.Specifier, builtin string) (*Record, error) {
		if len(args) < 1 || args[0].Form != value.FormAtom {
			form := "omega"
			if len(args) > 0 {
				form = args[0].Form.String()
			}
			return nil, serr.Typef(form, "bad file handle")
		}
		return t.Lookup(args[0].Atom)
	}

	reg := func(name string, fn interp.NativeFunc) {
		vm.RegisterNative(procsched.PredefinedLib, name, fn)
	}

	printTo := func(rec *Record, args []value.Specifier, newline bool) (value.Specifier, error) {
		for i, a := range args {
			if i > 0 {
				if err := t.WriteText(rec, " "); err != nil {
					return value.Omega, err
				}
			}
			if err := t.WriteText(rec, ioformat.StrWith(a, strOv)); err != nil {
				return value.Omega, err
			}
		}
		if newline {
			if err := t.WriteText(rec, "\n"); err != nil {
				return value.Omega, err
			}
		}
		if rec.bw != nil {
			rec.bw.Flush()
		}
		return value.Omega, nil
	}

	reg("print", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		return printTo(t.Stdout(), args, true)
	})
	reg("nprint", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		return printTo(t.Stdout(), args, false)
	})
	reg("printa", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		rec, err := handleArg(args, "printa")
		if err != nil {
			return value.Omega, err
		}
		return printTo(rec, args[1:], true)
	})
	reg("nprinta", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		rec, err := handleArg(args, "nprinta")
		if err != nil {
			return value.Omega, err
		}
		return printTo(rec, args[1:], false)
	})

	readFrom := func(v *interp.VM, rec *Record) (value.Specifier, error) {
		if rec.rd == nil {
			return value.Omega, serr.Typef(rec.Name, "attempt to read from non-text file")
		}
		var out value.Specifier
		err := blocking(v, func() error {
			var rerr error
			out, rerr = rec.rd.ReadValue()
			return rerr
		})
		if err != nil {
			return value.Omega, err
		}
		rec.Eof = rec.rd.LastEOF
		t.LastEOF = rec.rd.LastEOF
		return out, nil
	}

	reg("read", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		return readFrom(vm, t.Stdin())
	})
	reg("reada", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		rec, err := handleArg(args, "reada")
		if err != nil {
			return value.Omega, err
		}
		return readFrom(vm, rec)
	})
	reg("reads", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		if len(args) != 1 || args[0].Form != value.FormString {
			return value.Omega, serr.Typef("reads", "bad argument kind for builtin reads")
		}
		rd := ioformat.FromString(args[0].Ptr.(*value.StringHeader).String())
		out, err := rd.ReadValue()
		if err != nil {
			return value.Omega, err
		}
		t.LastEOF = rd.LastEOF
		return out, nil
	})

	reg("get", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		return getLine(vm, t, t.Stdin(), blocking)
	})
	reg("geta", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		rec, err := handleArg(args, "geta")
		if err != nil {
			return value.Omega, err
		}
		return getLine(vm, t, rec, blocking)
	})

	reg("str", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		if len(args) != 1 {
			return value.Omega, serr.Typef("str", "wrong number of parameters")
		}
		return value.Specifier{Form: value.FormString, Ptr: value.NewString(ioformat.StrWith(args[0], strOv))}, nil
	})
	reg("unstr", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		if len(args) != 1 || args[0].Form != value.FormString {
			return value.Omega, serr.Typef("unstr", "bad argument kind for builtin unstr")
		}
		return ioformat.Unstr(args[0].Ptr.(*value.StringHeader).String())
	})

	reg("binstr", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		if len(args) != 1 {
			return value.Omega, serr.Typef("binstr", "wrong number of parameters")
		}
		data, err := codec.Encode(args[0])
		if err != nil {
			return value.Omega, err
		}
		return value.Specifier{Form: value.FormString, Ptr: value.NewString(string(data))}, nil
	})
	reg("unbinstr", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		if len(args) != 1 || args[0].Form != value.FormString {
			return value.Omega, serr.Typef("unbinstr", "bad argument kind for builtin unbinstr")
		}
		return codec.Decode(args[0].Ptr.(*value.StringHeader).Bytes())
	})

	reg("open", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		if len(args) != 2 || args[0].Form != value.FormString || args[1].Form != value.FormString {
			return value.Omega, serr.Typef("open", "bad argument kind for builtin open")
		}
		id, err := t.Open(args[0].Ptr.(*value.StringHeader).String(), args[1].Ptr.(*value.StringHeader).String())
		if err != nil {
			return value.Omega, err
		}
		return value.MakeAtom(id), nil
	})
	reg("close", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		if len(args) != 1 || args[0].Form != value.FormAtom {
			return value.Omega, serr.Typef("close", "bad file handle")
		}
		return value.Omega, t.Close(args[0].Atom)
	})

	reg("getb", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		rec, err := handleArg(args, "getb")
		if err != nil {
			return value.Omega, err
		}
		var data []byte
		var ok bool
		err = blocking(vm, func() error {
			var rerr error
			data, ok, rerr = t.GetRecord(rec)
			return rerr
		})
		if err != nil || !ok {
			return value.Omega, err
		}
		return codec.Decode(data)
	})
	reg("putb", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		rec, err := handleArg(args, "putb")
		if err != nil {
			return value.Omega, err
		}
		if len(args) != 2 {
			return value.Omega, serr.Typef("putb", "wrong number of parameters")
		}
		data, err := codec.Encode(args[1])
		if err != nil {
			return value.Omega, err
		}
		return value.Omega, t.PutRecord(rec, data)
	})

	reg("gets", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		rec, err := handleArg(args, "gets")
		if err != nil {
			return value.Omega, err
		}
		if len(args) != 3 || args[1].Form != value.FormShort || args[2].Form != value.FormShort {
			return value.Omega, serr.Typef("gets", "bad argument kind for builtin gets")
		}
		var s string
		err = blocking(vm, func() error {
			var rerr error
			s, rerr = t.GetSpan(rec, args[1].Short, int(args[2].Short))
			return rerr
		})
		if err != nil {
			return value.Omega, err
		}
		return value.Specifier{Form: value.FormString, Ptr: value.NewString(s)}, nil
	})
	reg("puts", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		rec, err := handleArg(args, "puts")
		if err != nil {
			return value.Omega, err
		}
		if len(args) != 3 || args[1].Form != value.FormShort || args[2].Form != value.FormString {
			return value.Omega, serr.Typef("puts", "bad argument kind for builtin puts")
		}
		return value.Omega, t.PutSpan(rec, args[1].Short, args[2].Ptr.(*value.StringHeader).String())
	})
	reg("fsize", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		rec, err := handleArg(args, "fsize")
		if err != nil {
			return value.Omega, err
		}
		n, err := t.Size(rec)
		if err != nil {
			return value.Omega, err
		}
		return value.MakeShort(n), nil
	})

	reg("eof", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		return value.MakeBool(t.LastEOF), nil
	})
}

func getLine(vm *interp.VM, t *Table, rec *Record, blocking func(*interp.VM, func() error) error) (value.Specifier, error) {
	var line string
	var ok bool
	err := blocking(vm, func() error {
		var rerr error
		line, ok, rerr = t.GetLine(rec)
		return rerr
	})
	if err != nil {
		return value.Omega, err
	}
	if !ok {
		return value.Omega, nil
	}
	return value.Specifier{Form: value.FormString, Ptr: value.NewString(line)}, nil
}

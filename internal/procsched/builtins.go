package procsched

import (
	"setl/internal/interp"
	"setl/internal/serr"
	"setl/internal/value"
)

// PredefinedLib is the library path the built-in native procedures
// register under; it backs the "$predefined" slot of every unit
// vector.
const PredefinedLib = "$predefined"

// Bind registers the process built-ins (send, receive, yield) on vm's
// native registry. receive is restricted to the mailbox owner; send
// never blocks.
func (s *Scheduler) Bind(vm *interp.VM) {
	vm.RegisterNative(PredefinedLib, "send", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		if len(args) != 2 {
			return value.Omega, serr.Typef("send", "wrong number of parameters")
		}
		mb, err := s.mailboxArg(args[0])
		if err != nil {
			return value.Omega, err
		}
		s.send(mb, args[1])
		return value.Omega, nil
	})

	vm.RegisterNative(PredefinedLib, "receive", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		if len(args) != 1 {
			return value.Omega, serr.Typef("receive", "wrong number of parameters")
		}
		mb, err := s.mailboxArg(args[0])
		if err != nil {
			return value.Omega, err
		}
		p := s.processFor(vm)
		if p == nil || mb.owner != p {
			return value.Omega, serr.Typef("receive", "receive is restricted to the mailbox owner")
		}
		return s.receive(p), nil
	})

	vm.RegisterNative(PredefinedLib, "yield", func(vm *interp.VM, args []value.Specifier) (value.Specifier, error) {
		s.Yield(vm)
		return value.Omega, nil
	})
}

func (s *Scheduler) mailboxArg(arg value.Specifier) (*Mailbox, error) {
	if arg.Form != value.FormMailbox {
		return nil, serr.Typef(arg.Form.String(), "bad argument kind for builtin send")
	}
	mb, ok := arg.Ptr.(*value.Mailbox).Impl.(*Mailbox)
	if !ok {
		return nil, serr.Typef(arg.Form.String(), "bad argument kind for builtin send")
	}
	return mb, nil
}

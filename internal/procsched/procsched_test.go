package procsched

import (
	"testing"

	"setl/internal/interp"
	"setl/internal/value"
)

func nativeProc(name string, fn interp.NativeFunc) *value.Procedure {
	return &value.Procedure{Unit: name, Native: fn}
}

func TestMainReturnsEntryResult(t *testing.T) {
	vm := interp.New()
	s := NewScheduler(vm)
	entry := nativeProc("main", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		return value.MakeShort(42), nil
	})
	res, err := s.Main(entry, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Short != 42 {
		t.Fatalf("main result = %v", res)
	}
}

func TestMailboxFIFODelivery(t *testing.T) {
	vm := interp.New()
	s := NewScheduler(vm)

	var got []int64
	var consumerMb *Mailbox

	consumer := nativeProc("consumer", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		p := s.processFor(v)
		for i := 0; i < 5; i++ {
			msg := s.receive(p)
			got = append(got, msg.Short)
		}
		return value.Omega, nil
	})

	producer := nativeProc("producer", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		for i := int64(1); i <= 5; i++ {
			s.send(consumerMb, value.MakeShort(i))
		}
		return value.Omega, nil
	})

	obj, err := s.Spawn(consumer, nil)
	if err != nil {
		t.Fatal(err)
	}
	consumerMb = obj.Process.(*Process).Mbox
	if _, err := s.Spawn(producer, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(); err != nil {
		t.Fatal(err)
	}

	if len(got) != 5 {
		t.Fatalf("received %d messages", len(got))
	}
	for i, v := range got {
		if v != int64(i+1) {
			t.Fatalf("delivery order %v, want send order", got)
		}
	}
}

func TestReceiveBlocksUntilSend(t *testing.T) {
	vm := interp.New()
	s := NewScheduler(vm)

	var order []string
	var mb *Mailbox

	waiter := nativeProc("waiter", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		p := s.processFor(v)
		order = append(order, "wait")
		msg := s.receive(p)
		order = append(order, "got "+value.Form(msg.Form).String())
		return value.Omega, nil
	})
	sender := nativeProc("sender", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		order = append(order, "send")
		s.send(mb, value.MakeShort(1))
		return value.Omega, nil
	})

	obj, _ := s.Spawn(waiter, nil)
	mb = obj.Process.(*Process).Mbox
	s.Spawn(sender, nil)
	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	want := []string{"wait", "send", "got short"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestYieldInterleavesProcesses(t *testing.T) {
	vm := interp.New()
	s := NewScheduler(vm)

	var log []string
	mk := func(tag string) *value.Procedure {
		return nativeProc(tag, func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
			for i := 0; i < 3; i++ {
				log = append(log, tag)
				s.Yield(v)
			}
			return value.Omega, nil
		})
	}
	s.Spawn(mk("a"), nil)
	s.Spawn(mk("b"), nil)
	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "a", "b", "a", "b"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestYieldWithoutCompetitorsIsNoop(t *testing.T) {
	vm := interp.New()
	s := NewScheduler(vm)
	ran := false
	entry := nativeProc("solo", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		s.Yield(v)
		s.Yield(v)
		ran = true
		return value.Omega, nil
	})
	if _, err := s.Main(entry, nil); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatalf("solo process never finished")
	}
}

func TestStopallHaltsScheduler(t *testing.T) {
	vm := interp.New()
	s := NewScheduler(vm)
	otherRan := false
	stopper := nativeProc("stopper", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		return value.Omega, interp.ErrStopAll
	})
	other := nativeProc("other", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		otherRan = true
		return value.Omega, nil
	})
	s.Spawn(stopper, nil)
	s.Spawn(other, nil)
	if err := s.Run(); err != interp.ErrStopAll {
		t.Fatalf("Run returned %v", err)
	}
	if otherRan {
		t.Fatalf("process ran after stopall")
	}
}

func TestBlockingIOHandsBatonOff(t *testing.T) {
	vm := interp.New()
	s := NewScheduler(vm)

	ioDone := false // written only by the reader's goroutine
	var log []string
	reader := nativeProc("reader", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		err := s.BlockingIO(v, func() error {
			ioDone = true
			return nil
		})
		log = append(log, "after-io")
		return value.Omega, err
	})
	worker := nativeProc("worker", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		log = append(log, "work")
		return value.Omega, nil
	})
	s.Spawn(reader, nil)
	s.Spawn(worker, nil)
	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	if !ioDone {
		t.Fatalf("I/O callback never ran")
	}
	if len(log) != 2 {
		t.Fatalf("log = %v", log)
	}
}

func TestReceiveRestrictedToOwner(t *testing.T) {
	vm := interp.New()
	s := NewScheduler(vm)
	s.Bind(vm)

	var recvErr error
	var foreign value.Specifier

	owner := nativeProc("owner", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		p := s.processFor(v)
		s.send(p.Mbox, value.MakeShort(1)) // keep the receive below non-blocking
		return value.Omega, nil
	})
	obj, _ := s.Spawn(owner, nil)
	foreign = value.MakeMailbox(&value.Mailbox{Impl: obj.Process.(*Process).Mbox})

	thief := nativeProc("thief", func(v *interp.VM, args []value.Specifier) (value.Specifier, error) {
		fn := vm.Natives[PredefinedLib+"#receive"]
		_, recvErr = fn(v, []value.Specifier{foreign})
		return value.Omega, nil
	})
	s.Spawn(thief, nil)
	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	if recvErr == nil {
		t.Fatalf("foreign receive accepted")
	}
}

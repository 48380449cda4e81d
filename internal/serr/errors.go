// Package serr implements the four-tier error model of the runtime:
// type/arity errors, invariant-violation giveups, I/O errors, and
// loader errors. None of these are panics — every fallible call in
// this module returns an error, and the CLI driver is the only place
// that turns a Tier into a process exit status.
package serr

import (
	"fmt"
	"strings"
)

// Tier classifies where a RuntimeError sits in the severity model.
type Tier int

const (
	// TierType covers bad argument kinds, wrong arity, bad file
	// handles and similar: the current top-level call fails with a
	// formatted message naming the offending operand.
	TierType Tier = iota
	// TierInvariant covers internal data-structure integrity
	// assertions that must never fire for a well-formed program; the
	// runtime "gives up" and terminates.
	TierInvariant
	// TierIO covers read/write failures on a stream.
	TierIO
	// TierLoader covers timestamp/type mismatches while resolving
	// inherited or imported units.
	TierLoader
)

func (t Tier) String() string {
	switch t {
	case TierType:
		return "type error"
	case TierInvariant:
		return "giveup"
	case TierIO:
		return "I/O error"
	case TierLoader:
		return "loader error"
	default:
		return "error"
	}
}

// RuntimeError is the single error type this runtime returns. Callers
// that need to distinguish tiers type-assert or call errors.As.
type RuntimeError struct {
	Tier    Tier
	Message string
	// Operand, if non-empty, is the printable form of the operand
	// that caused a TierType failure, folded into Error() so the
	// message names the offending value.
	Operand string
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Tier.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Operand != "" {
		b.WriteString(" (got ")
		b.WriteString(e.Operand)
		b.WriteString(")")
	}
	return b.String()
}

// Typef builds a TierType error, e.g. "bad argument kind for builtin X".
func Typef(operand, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Tier: TierType, Message: fmt.Sprintf(format, args...), Operand: operand}
}

// Giveup builds a TierInvariant error: a severe, unrecoverable
// assertion failure on runtime data-structure integrity; it must
// never arise from a well-formed program.
func Giveup(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Tier: TierInvariant, Message: fmt.Sprintf(format, args...)}
}

// IOErrorf builds a TierIO error naming the stream.
func IOErrorf(stream string, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Tier: TierIO, Message: fmt.Sprintf(format, args...), Operand: stream}
}

// Loaderf builds a TierLoader error, e.g. "package needs recompile".
func Loaderf(unit string, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Tier: TierLoader, Message: fmt.Sprintf(format, args...), Operand: unit}
}

// IsGiveup reports whether err is a TierInvariant RuntimeError.
func IsGiveup(err error) bool {
	re, ok := err.(*RuntimeError)
	return ok && re.Tier == TierInvariant
}

// ExtensionMap is the per-unit, public, string->procedure map built
// from a unit's public-symbol stream: any procedure may
// register itself under an error name, and abends consult the
// composed map before aborting. Handler is left abstract (an
// interp.ProcValue in practice) so this package has no dependency on
// the interpreter.
type ExtensionMap struct {
	handlers map[string]interface{}
}

func NewExtensionMap() *ExtensionMap {
	return &ExtensionMap{handlers: make(map[string]interface{})}
}

func (m *ExtensionMap) Register(name string, handler interface{}) {
	m.handlers[name] = handler
}

// Lookup returns the registered handler for name, composing over
// multiple extension maps in call order (the caller passes its own
// map first, then ancestors) so the most specific registration wins.
func Lookup(name string, maps ...*ExtensionMap) (interface{}, bool) {
	for _, m := range maps {
		if m == nil {
			continue
		}
		if h, ok := m.handlers[name]; ok {
			return h, true
		}
	}
	return nil, false
}

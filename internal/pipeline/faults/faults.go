// Package faults classifies pipeline errors so every handler can decide
// between dropping, retrying and dead-lettering without inspecting causes.
package faults

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindTransient covers network, timeout and throttling failures; retried
	// through queue redelivery. Unclassified errors land here so work is
	// never silently dropped.
	KindTransient Kind = iota
	// KindValidation covers malformed input; terminal, never retried.
	KindValidation
	// KindDuplicate marks a redelivered message or repeated event for an
	// already-advanced video; a silent no-op.
	KindDuplicate
	// KindCapacity is engine throttling; same retry path as transient.
	KindCapacity
	// KindTerminal means retries are exhausted or output verification failed
	// irrecoverably; the video is marked failed.
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicate:
		return "duplicate"
	case KindCapacity:
		return "capacity"
	case KindTerminal:
		return "terminal"
	default:
		return "transient"
	}
}

// Retryable reports whether an error of this kind should flow back through
// queue redelivery.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindCapacity
}

type Fault struct {
	kind Kind
	err  error
}

func (f *Fault) Error() string { return fmt.Sprintf("%s: %v", f.kind, f.err) }
func (f *Fault) Unwrap() error { return f.err }
func (f *Fault) Kind() Kind    { return f.kind }

func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Fault{kind: kind, err: err}
}

func Validationf(format string, args ...any) error {
	return New(KindValidation, fmt.Errorf(format, args...))
}

func Transientf(format string, args ...any) error {
	return New(KindTransient, fmt.Errorf(format, args...))
}

func Duplicatef(format string, args ...any) error {
	return New(KindDuplicate, fmt.Errorf(format, args...))
}

func Capacityf(format string, args ...any) error {
	return New(KindCapacity, fmt.Errorf(format, args...))
}

func Terminalf(format string, args ...any) error {
	return New(KindTerminal, fmt.Errorf(format, args...))
}

// KindOf returns the classification of err, walking the wrap chain.
// Errors nobody classified are conservatively transient.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.kind
	}
	return KindTransient
}

// Classified reports whether err carries an explicit classification.
// Handlers log unclassified errors distinctly before retrying them.
func Classified(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

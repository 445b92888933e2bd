// Package workflow holds the reconciliation status engine: transition tables,
// amount checks and settlement balance rules. It performs no I/O; callers load
// and persist entities inside their own transaction.
package workflow

import "fmt"

// Kind classifies a rejected operation so the request boundary can render it.
type Kind int

const (
	KindInvalidTransition Kind = iota + 1
	KindTerminalStateViolation
	KindAmountStatusConflict
	KindMissingJustification
	KindInvalidAmount
	KindUnknownTransaction
	KindSignatureMismatch
	KindDuplicateConfirmation
	KindConcurrentModification
	KindNotFound
)

var kindNames = map[Kind]string{
	KindInvalidTransition:      "InvalidTransition",
	KindTerminalStateViolation: "TerminalStateViolation",
	KindAmountStatusConflict:   "AmountStatusConflict",
	KindMissingJustification:   "MissingJustification",
	KindInvalidAmount:          "InvalidAmount",
	KindUnknownTransaction:     "UnknownTransaction",
	KindSignatureMismatch:      "SignatureMismatch",
	KindDuplicateConfirmation:  "DuplicateConfirmation",
	KindConcurrentModification: "ConcurrentModification",
	KindNotFound:               "NotFound",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a recoverable, caller-facing rejection.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrInvalidAmount) works
// regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
	ErrTerminalStateViolation = &Error{Kind: KindTerminalStateViolation}
	ErrAmountStatusConflict   = &Error{Kind: KindAmountStatusConflict}
	ErrMissingJustification   = &Error{Kind: KindMissingJustification}
	ErrInvalidAmount          = &Error{Kind: KindInvalidAmount}
	ErrUnknownTransaction     = &Error{Kind: KindUnknownTransaction}
	ErrSignatureMismatch      = &Error{Kind: KindSignatureMismatch}
	ErrDuplicateConfirmation  = &Error{Kind: KindDuplicateConfirmation}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrNotFound               = &Error{Kind: KindNotFound}
)

// Errorf builds a kind-tagged error with a user-facing message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 when err is not a workflow error.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}

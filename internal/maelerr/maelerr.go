// Package maelerr provides the shared error taxonomy used by every actor in
// the simulated network: user nodes, built-in services, and the core itself
// all report failures as one of these codes.
package maelerr

import "fmt"

// Code is a Maelstrom error code, copied into the node library as the
// wire's "code" field.
type Code int

// Reserved error codes.
const (
	Timeout                 Code = 0
	NodeDoesNotExist        Code = 1
	NotSupported            Code = 10
	TemporarilyUnavailable  Code = 11
	MalformedRequest        Code = 12
	Crash                   Code = 13
	Abort                   Code = 14
	KeyDoesNotExist         Code = 20
	KeyAlreadyExists        Code = 21
	PreconditionFailed      Code = 22
	TxnConflict             Code = 30
	workloadDefinedStart    Code = 100
)

// definite codes are guaranteed not to have taken effect; every other
// reserved code is indefinite. Workload-defined codes (>=100) are left to
// the workload to classify.
var definite = map[Code]bool{
	NodeDoesNotExist:       true,
	NotSupported:           true,
	TemporarilyUnavailable: true,
	MalformedRequest:       true,
	KeyDoesNotExist:        true,
	KeyAlreadyExists:       true,
	PreconditionFailed:     true,
	TxnConflict:            true,
}

// Definite reports whether an operation that failed with this code is
// guaranteed not to have taken effect. Indefinite failures (timeout, crash,
// abort, and any code the workload hasn't classified) must be recorded as
// "info" rather than "fail" in a history.
func Definite(c Code) bool {
	return definite[c]
}

// IsWorkloadDefined reports whether c is reserved for workload-specific use.
func IsWorkloadDefined(c Code) bool {
	return c >= workloadDefinedStart
}

// Error is the structured error every actor returns instead of raising a
// language-level exception.
type Error struct {
	Code Code
	Text string
}

// New constructs an Error.
func New(code Code, text string) *Error {
	return &Error{Code: code, Text: text}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("error %d", e.Code)
	}
	return fmt.Sprintf("error %d: %s", e.Code, e.Text)
}

// Definite reports whether e is guaranteed not to have taken effect.
func (e *Error) Definite() bool {
	return Definite(e.Code)
}

// Package op provides constants for the operations the built-in key-value
// and timestamp-oracle services understand.
package op

import "strings"

// An Op is a built-in-service request type.
type Op string

const (
	Read  Op = "read"
	Write Op = "write"
	Cas   Op = "cas"
	Ts    Op = "ts"
)

// New creates an Op from a wire "type" field. It does not validate that the
// operation is supported by the destination service.
func New(s string) Op {
	return Op(strings.ToLower(s))
}

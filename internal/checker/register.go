package checker

import (
	"encoding/json"
	"fmt"

	"github.com/anishathalye/porcupine"
	"github.com/distlab/maelstrom/internal/op"
	"github.com/distlab/maelstrom/internal/set"
)

// absent is the sentinel member used inside the candidate-value set to
// mean "key does not exist yet", mirroring the empty-string convention
// the built-in key-value model uses for missing keys.
const absent = ""

// RegisterInput is the porcupine Input for one read/write/cas built-in
// key-value operation.
type RegisterInput struct {
	Op    op.Op
	Key   string
	From  string
	To    string
	Value string
}

// RegisterOutput is the porcupine Output for one built-in key-value
// operation. Err is nil on success; Definite reports whether a non-nil
// Err is guaranteed to mean the operation had no effect.
type RegisterOutput struct {
	Value    string
	Err      error
	Definite bool
}

// NewRegisterModel builds a porcupine.Model for the built-in key-value
// services' read/write/cas contract. Because a write or cas whose outcome
// is indefinite may or may not have taken effect, the model's state is a
// set of candidate values rather than a single value; a definite outcome
// collapses the candidate set back down to one member.
func NewRegisterModel() porcupine.Model {
	return porcupine.Model{
		Init: func() any { return set.New(absent) },
		Step: func(state, input, output any) (bool, any) {
			in := input.(*RegisterInput)
			out := output.(*RegisterOutput)
			db := state.(*set.Set)
			switch in.Op {
			case op.Read:
				if out.Err != nil {
					if !out.Definite {
						return true, db
					}
					return db.Contains(absent), db
				}
				return db.Contains(out.Value), db
			case op.Write:
				if out.Err != nil {
					if !out.Definite {
						return true, db.With(in.Value)
					}
					return true, db
				}
				return true, set.New(in.Value)
			case op.Cas:
				if out.Err != nil {
					if !out.Definite {
						return true, db.With(in.To)
					}
					// A definite cas failure (key-does-not-exist or
					// precondition-failed) leaves the store unchanged.
					return true, db
				}
				if !db.Contains(in.From) {
					return false, db
				}
				return true, set.New(in.To)
			default:
				return false, db
			}
		},
		DescribeOperation: func(input, output any) string {
			return describeRegister(input.(*RegisterInput), output.(*RegisterOutput))
		},
		Equal: func(left, right any) bool {
			if left == nil || right == nil {
				return left == right
			}
			l := left.(*set.Set)
			r := right.(*set.Set)
			return setEqual(l, r)
		},
	}
}

func setEqual(l, r *set.Set) bool {
	li, ri := l.Items(), r.Items()
	if len(li) != len(ri) {
		return false
	}
	for i := range li {
		if li[i] != ri[i] {
			return false
		}
	}
	return true
}

func describeRegister(in *RegisterInput, out *RegisterOutput) string {
	result := out.Value
	if out.Err != nil {
		result = fmt.Sprintf("ERR %v", out.Err)
	}
	switch in.Op {
	case op.Read:
		return fmt.Sprintf("read %s = %s", in.Key, result)
	case op.Write:
		return fmt.Sprintf("write %s %s = %s", in.Key, in.Value, result)
	case op.Cas:
		return fmt.Sprintf("cas %s %s->%s = %s", in.Key, in.From, in.To, result)
	default:
		return fmt.Sprintf("unknown %v", in.Op)
	}
}

// EncodeJSON renders a JSON value as the canonical string RegisterInput
// and RegisterOutput compare by value.
func EncodeJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return absent
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(bs)
}

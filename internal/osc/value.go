// Package osc implements the OSC 1.0 wire codec used to talk to the
// console: one message is an address plus a typed argument list, padded
// to 4-byte boundaries per the OSC 1.0 spec the console's firmware
// implements.
package osc

import "fmt"

// Type identifies the wire representation of an Arg.
type Type byte

const (
	TypeInt    Type = 'i'
	TypeFloat  Type = 'f'
	TypeString Type = 's'
	TypeBlob   Type = 'b'
)

// Arg is one OSC argument: exactly one of the typed fields is valid,
// selected by Type.
type Arg struct {
	Type Type
	I    int32
	F    float32
	S    string
	B    []byte
}

func Int(v int32) Arg    { return Arg{Type: TypeInt, I: v} }
func Float(v float32) Arg { return Arg{Type: TypeFloat, F: v} }
func String(v string) Arg { return Arg{Type: TypeString, S: v} }
func Blob(v []byte) Arg  { return Arg{Type: TypeBlob, B: v} }

func (a Arg) String() string {
	switch a.Type {
	case TypeInt:
		return fmt.Sprintf("%d", a.I)
	case TypeFloat:
		return fmt.Sprintf("%g", a.F)
	case TypeString:
		return a.S
	case TypeBlob:
		return fmt.Sprintf("<blob %d bytes>", len(a.B))
	}
	return "<invalid>"
}

// Equal compares two args for value equality, used by the codec,
// scene-file and import round-trip tests.
func (a Arg) Equal(o Arg) bool {
	if a.Type != o.Type {
		return false
	}
	switch a.Type {
	case TypeInt:
		return a.I == o.I
	case TypeFloat:
		return a.F == o.F
	case TypeString:
		return a.S == o.S
	case TypeBlob:
		if len(a.B) != len(o.B) {
			return false
		}
		for i := range a.B {
			if a.B[i] != o.B[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Message is a decoded OSC address plus its argument list.
type Message struct {
	Address string
	Args    []Arg
}

package osc

import (
	"encoding/binary"
	"math"

	"github.com/gravwell/x32mgr/internal/errs"
)

const bundleTag = "#bundle\x00"

// pad4 returns n rounded up to the next multiple of 4.
func pad4(n int) int {
	return (n + 3) &^ 3
}

// Encode writes address followed by its typed args in OSC 1.0 wire form:
// address (null-terminated, 4-byte padded), "," + typetag (same padding),
// then each argument in order, 4-byte aligned.
func Encode(address string, args []Arg) ([]byte, error) {
	tag := make([]byte, 0, len(args)+1)
	tag = append(tag, ',')
	for _, a := range args {
		switch a.Type {
		case TypeInt, TypeFloat, TypeString, TypeBlob:
			tag = append(tag, byte(a.Type))
		default:
			return nil, errs.New("osc.Encode", errs.UnsupportedType, nil)
		}
	}

	out := make([]byte, 0, 64)
	out = appendPaddedString(out, address)
	out = appendPaddedString(out, string(tag))

	for _, a := range args {
		switch a.Type {
		case TypeInt:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(a.I))
			out = append(out, b[:]...)
		case TypeFloat:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], math.Float32bits(a.F))
			out = append(out, b[:]...)
		case TypeString:
			out = appendPaddedString(out, a.S)
		case TypeBlob:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(len(a.B)))
			out = append(out, b[:]...)
			out = append(out, a.B...)
			out = appendZeroPad(out, len(a.B))
		}
	}
	return out, nil
}

// appendPaddedString appends s, a null terminator, and zero padding out to
// a 4-byte boundary measured from the start of s.
func appendPaddedString(out []byte, s string) []byte {
	out = append(out, s...)
	out = append(out, 0)
	total := pad4(len(s) + 1)
	for i := len(s) + 1; i < total; i++ {
		out = append(out, 0)
	}
	return out
}

func appendZeroPad(out []byte, n int) []byte {
	total := pad4(n)
	for i := n; i < total; i++ {
		out = append(out, 0)
	}
	return out
}

// Decode parses a wire payload back into an address and its args. It
// recognizes the "#bundle" marker and flattens any nested messages into
// a single slice via decodeBundle; ordinary messages return one Message.
func Decode(buf []byte) ([]Message, error) {
	if len(buf) >= len(bundleTag) && string(buf[:len(bundleTag)]) == bundleTag {
		return decodeBundle(buf)
	}
	m, err := decodeOne(buf)
	if err != nil {
		return nil, err
	}
	return []Message{m}, nil
}

func decodeBundle(buf []byte) ([]Message, error) {
	// skip "#bundle\0" tag and the 8-byte OSC timetag
	off := len(bundleTag) + 8
	if off > len(buf) {
		return nil, errs.New("osc.Decode", errs.MalformedPacket, nil)
	}
	var out []Message
	for off < len(buf) {
		if off+4 > len(buf) {
			return nil, errs.New("osc.Decode", errs.MalformedPacket, nil)
		}
		sz := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		if sz < 0 || off+sz > len(buf) {
			return nil, errs.New("osc.Decode", errs.MalformedPacket, nil)
		}
		elem := buf[off : off+sz]
		off += sz
		if len(elem) >= len(bundleTag) && string(elem[:len(bundleTag)]) == bundleTag {
			nested, err := decodeBundle(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		m, err := decodeOne(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeOne(buf []byte) (Message, error) {
	addr, rest, err := readPaddedString(buf)
	if err != nil {
		return Message{}, err
	}
	tagStr, rest, err := readPaddedString(rest)
	if err != nil {
		return Message{}, err
	}
	if len(tagStr) == 0 || tagStr[0] != ',' {
		return Message{}, errs.New("osc.Decode", errs.MalformedPacket, nil)
	}
	types := tagStr[1:]

	args := make([]Arg, 0, len(types))
	for i := 0; i < len(types); i++ {
		switch Type(types[i]) {
		case TypeInt:
			if len(rest) < 4 {
				return Message{}, errs.New("osc.Decode", errs.MalformedPacket, nil)
			}
			v := int32(binary.BigEndian.Uint32(rest[:4]))
			rest = rest[4:]
			args = append(args, Int(v))
		case TypeFloat:
			if len(rest) < 4 {
				return Message{}, errs.New("osc.Decode", errs.MalformedPacket, nil)
			}
			v := math.Float32frombits(binary.BigEndian.Uint32(rest[:4]))
			rest = rest[4:]
			args = append(args, Float(v))
		case TypeString:
			s, r, err := readPaddedString(rest)
			if err != nil {
				return Message{}, err
			}
			rest = r
			args = append(args, String(s))
		case TypeBlob:
			if len(rest) < 4 {
				return Message{}, errs.New("osc.Decode", errs.MalformedPacket, nil)
			}
			n := int(binary.BigEndian.Uint32(rest[:4]))
			rest = rest[4:]
			if n < 0 || n > len(rest) {
				return Message{}, errs.New("osc.Decode", errs.MalformedPacket, nil)
			}
			b := make([]byte, n)
			copy(b, rest[:n])
			padded := pad4(n)
			if padded > len(rest) {
				return Message{}, errs.New("osc.Decode", errs.MalformedPacket, nil)
			}
			if err := verifyZeroPad(rest, n, padded); err != nil {
				return Message{}, err
			}
			rest = rest[padded:]
			args = append(args, Blob(b))
		default:
			return Message{}, errs.New("osc.Decode", errs.UnsupportedType, nil)
		}
	}
	return Message{Address: addr, Args: args}, nil
}

// readPaddedString scans a null-terminated, 4-byte-padded string starting
// at the front of buf and returns it along with the remainder of buf.
func readPaddedString(buf []byte) (string, []byte, error) {
	term := -1
	for i, b := range buf {
		if b == 0 {
			term = i
			break
		}
	}
	if term < 0 {
		return "", nil, errs.New("osc.Decode", errs.MalformedPacket, nil)
	}
	total := pad4(term + 1)
	if total > len(buf) {
		return "", nil, errs.New("osc.Decode", errs.MalformedPacket, nil)
	}
	if err := verifyZeroPad(buf, term+1, total); err != nil {
		return "", nil, err
	}
	return string(buf[:term]), buf[total:], nil
}

// verifyZeroPad asserts every byte in buf[from:to] is zero, per the
// codec's invariant that padding bytes are always zero.
func verifyZeroPad(buf []byte, from, to int) error {
	for i := from; i < to; i++ {
		if buf[i] != 0 {
			return errs.New("osc.Decode", errs.MalformedPacket, nil)
		}
	}
	return nil
}

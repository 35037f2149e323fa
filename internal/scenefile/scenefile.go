// Package scenefile implements the scene/backup text file codec (C5):
// the bit-exact format the console itself accepts over USB import,
// for both the live scene pointer and local backup files.
package scenefile

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/gravwell/x32mgr/internal/errs"
	"github.com/gravwell/x32mgr/internal/osc"
)

// Header is the file's first line: firmware string, quoted display name,
// quoted notes, safety mask, and a has-aliases flag.
type Header struct {
	Firmware    string
	Name        string
	Notes       string
	SafetyMask  int
	HasAliases  int
}

// Record is one parameter line: an address plus its argument tuple.
type Record struct {
	Address string
	Args    []osc.Arg
}

// Precision controls fractional-digit width for float arguments, keyed
// by address so export can match the console's own per-class printer
// tiers. A nil Precision falls back to DefaultPrecision for every address.
type Precision interface {
	FractionDigits(address string) int
}

// DefaultPrecision is used when the caller supplies no address-aware
// precision table; it matches the "other floats" tier.
const DefaultPrecision = 1

type constPrecision int

func (c constPrecision) FractionDigits(string) int { return int(c) }

// FlatPrecision returns a Precision that always answers n digits,
// useful for tests and for writers with no address-class table handy.
func FlatPrecision(n int) Precision { return constPrecision(n) }

// Write serializes a header and record list into the console's text
// format: one header line, then one `address value value…` line per
// record, each newline-terminated including the last.
func Write(h Header, records []Record, prec Precision) ([]byte, error) {
	if prec == nil {
		prec = constPrecision(DefaultPrecision)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "#%s# %s %s %d %d\n",
		h.Firmware, quoteString(h.Name), quoteString(h.Notes), h.SafetyMask, h.HasAliases)

	for _, r := range records {
		buf.WriteString(r.Address)
		for _, a := range r.Args {
			buf.WriteByte(' ')
			s, err := printArg(a, prec.FractionDigits(r.Address))
			if err != nil {
				return nil, err
			}
			buf.WriteString(s)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func printArg(a osc.Arg, fractionDigits int) (string, error) {
	switch a.Type {
	case osc.TypeInt:
		return strconv.FormatInt(int64(a.I), 10), nil
	case osc.TypeFloat:
		return strconv.FormatFloat(float64(a.F), 'f', fractionDigits, 32), nil
	case osc.TypeString:
		return quoteString(a.S), nil
	case osc.TypeBlob:
		// not used by on-device scene files; represented
		// as a quoted hex string so the format stays line-oriented.
		return quoteString(fmt.Sprintf("%x", a.B)), nil
	}
	return "", errs.New("scenefile.printArg", errs.UnsupportedType, fmt.Errorf("type %v", a.Type))
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' {
			b.WriteByte('"')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// Read parses a scene/backup file's bytes into its header and records,
// tolerating extra whitespace, blank lines, and comment lines after the
// header.
func Read(data []byte) (Header, []Record, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var h Header
	headerSeen := false
	var records []Record

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !headerSeen {
			parsed, err := parseHeader(line)
			if err != nil {
				return Header{}, nil, err
			}
			h = parsed
			headerSeen = true
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseRecord(line)
		if err != nil {
			return Header{}, nil, err
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return Header{}, nil, errs.New("scenefile.Read", errs.MalformedPacket, err)
	}
	if !headerSeen {
		return Header{}, nil, errs.New("scenefile.Read", errs.MalformedPacket, fmt.Errorf("empty file"))
	}
	return h, records, nil
}

// parseHeader reads `#<firmware># "<name>" "<notes>" <safetymask> <hasaliases>`
// tolerantly: extra whitespace is ignored and missing trailing fields
// default to zero.
func parseHeader(line string) (Header, error) {
	if !strings.HasPrefix(line, "#") {
		return Header{}, errs.New("scenefile.parseHeader", errs.MalformedPacket, fmt.Errorf("missing leading #"))
	}
	rest := line[1:]
	end := strings.Index(rest, "#")
	if end < 0 {
		return Header{}, errs.New("scenefile.parseHeader", errs.MalformedPacket, fmt.Errorf("missing firmware terminator"))
	}
	firmware := rest[:end]
	tail := strings.TrimSpace(rest[end+1:])

	toks, err := tokenizeLine(tail)
	if err != nil {
		return Header{}, err
	}
	h := Header{Firmware: firmware}
	if len(toks) > 0 {
		h.Name = toks[0].str
	}
	if len(toks) > 1 {
		h.Notes = toks[1].str
	}
	if len(toks) > 2 {
		if n, err := strconv.Atoi(toks[2].str); err == nil {
			h.SafetyMask = n
		}
	}
	if len(toks) > 3 {
		if n, err := strconv.Atoi(toks[3].str); err == nil {
			h.HasAliases = n
		}
	}
	return h, nil
}

// parseRecord splits `/address value value…` into a Record, inferring
// each value's type from its token shape.
func parseRecord(line string) (Record, error) {
	fields := strings.SplitN(line, " ", 2)
	addr := fields[0]
	if len(fields) == 1 {
		return Record{Address: addr}, nil
	}
	toks, err := tokenizeLine(fields[1])
	if err != nil {
		return Record{}, err
	}
	args := make([]osc.Arg, 0, len(toks))
	for _, tk := range toks {
		args = append(args, tk.toArg())
	}
	return Record{Address: addr, Args: args}, nil
}

type token struct {
	str     string
	quoted  bool
}

func (t token) toArg() osc.Arg {
	if t.quoted {
		return osc.String(t.str)
	}
	if n, err := strconv.ParseInt(t.str, 10, 32); err == nil {
		return osc.Int(int32(n))
	}
	if looksLikeFloat(t.str) {
		if f, err := strconv.ParseFloat(t.str, 32); err == nil {
			return osc.Float(float32(f))
		}
	}
	return osc.String(t.str)
}

func looksLikeFloat(s string) bool {
	if !strings.Contains(s, ".") {
		return false
	}
	trimmed := strings.TrimPrefix(s, "-")
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// tokenizeLine splits whitespace-separated tokens, treating a
// double-quoted span (with doubled-quote escaping) as a single string
// token.
func tokenizeLine(s string) ([]token, error) {
	var toks []token
	i := 0
	n := len(s)
	for i < n {
		for i < n && s[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}
		if s[i] == '"' {
			str, next, err := readQuoted(s, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{str: str, quoted: true})
			i = next
			continue
		}
		start := i
		for i < n && s[i] != ' ' {
			i++
		}
		toks = append(toks, token{str: s[start:i]})
	}
	return toks, nil
}

// readQuoted reads a double-quoted token starting at s[start] == '"',
// unescaping doubled quotes, and returns the decoded string and the
// index just past the closing quote.
func readQuoted(s string, start int) (string, int, error) {
	var b strings.Builder
	i := start + 1
	n := len(s)
	for i < n {
		if s[i] == '"' {
			if i+1 < n && s[i+1] == '"' {
				b.WriteByte('"')
				i += 2
				continue
			}
			return b.String(), i + 1, nil
		}
		b.WriteByte(s[i])
		i++
	}
	return "", 0, errs.New("scenefile.readQuoted", errs.MalformedPacket, fmt.Errorf("unterminated quoted string"))
}

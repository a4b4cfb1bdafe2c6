package field

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind identifies which variant a Value holds
type Kind uint8

const (
	KindInt Kind = iota
	KindUint
	KindBool
	KindString
	KindDebug
	KindError
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindDebug:
		return "debug"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Value is a field value as observed from instrumentation. The zero Value is
// the integer 0.
type Value struct {
	kind Kind
	num  uint64
	str  string
	err  error
}

// IntValue wraps a signed integer
func IntValue(v int64) Value {
	return Value{kind: KindInt, num: uint64(v)}
}

// UintValue wraps an unsigned integer
func UintValue(v uint64) Value {
	return Value{kind: KindUint, num: v}
}

// BoolValue wraps a boolean
func BoolValue(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// StringValue wraps a plain string
func StringValue(v string) Value {
	return Value{kind: KindString, str: v}
}

// DebugValue captures the developer-facing rendering of v at construction
// time. Strings are rendered quoted and escaped.
func DebugValue(v any) Value {
	return Value{kind: KindDebug, str: DebugText(v)}
}

// ErrorValue wraps an error. A nil error encodes as "<nil>".
func ErrorValue(err error) Value {
	return Value{kind: KindError, err: err}
}

// Kind reports the variant held by v
func (v Value) Kind() Kind { return v.kind }

// Int returns the signed integer held by v
func (v Value) Int() int64 { return int64(v.num) }

// Uint returns the unsigned integer held by v
func (v Value) Uint() uint64 { return v.num }

// Bool returns the boolean held by v
func (v Value) Bool() bool { return v.num != 0 }

// Err returns the error held by v, nil for other kinds
func (v Value) Err() error { return v.err }

// Encode returns the canonical string form stored in a Store. It is total:
// every Value has exactly one encoding.
func (v Value) Encode() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(int64(v.num), 10)
	case KindUint:
		return strconv.FormatUint(v.num, 10)
	case KindBool:
		return strconv.FormatBool(v.num != 0)
	case KindError:
		if v.err == nil {
			return "<nil>"
		}
		return v.err.Error()
	default:
		return v.str
	}
}

// DebugString returns the developer-facing rendering. For errors this is the
// verbose %+v form, for debug values the captured text, and the encoding
// otherwise.
func (v Value) DebugString() string {
	if v.kind == KindError {
		if v.err == nil {
			return "<nil>"
		}
		return fmt.Sprintf("%+v", v.err)
	}
	return v.Encode()
}

// DebugText renders v for developers. Strings are quoted with EscapeDebug,
// everything else uses %+v.
func DebugText(v any) string {
	switch t := v.(type) {
	case string:
		return EscapeDebug(t)
	case fmt.Stringer:
		return EscapeDebug(t.String())
	default:
		return fmt.Sprintf("%+v", v)
	}
}

// EscapeDebug wraps s in double quotes and escapes it: quote, backslash and
// the common whitespace controls use their short forms, NUL becomes \0 and
// any other non-printable rune is written as \u{hex}. Printable Unicode is
// kept as is.
func EscapeDebug(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0:
			b.WriteString(`\0`)
		default:
			if unicode.IsPrint(r) && !(r == utf8.RuneError && size == 1) {
				b.WriteRune(r)
				continue
			}
			b.WriteString(`\u{`)
			b.WriteString(strconv.FormatInt(int64(r), 16))
			b.WriteByte('}')
		}
	}
	b.WriteByte('"')
	return b.String()
}

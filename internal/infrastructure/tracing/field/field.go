package field

// Field is a named value attached to a span or event
type Field struct {
	Name  string
	Value Value
}

// Int creates a signed integer field
func Int(name string, v int64) Field {
	return Field{Name: name, Value: IntValue(v)}
}

// Uint creates an unsigned integer field
func Uint(name string, v uint64) Field {
	return Field{Name: name, Value: UintValue(v)}
}

// Bool creates a boolean field
func Bool(name string, v bool) Field {
	return Field{Name: name, Value: BoolValue(v)}
}

// String creates a string field
func String(name, v string) Field {
	return Field{Name: name, Value: StringValue(v)}
}

// Debug creates a field holding the debug rendering of v
func Debug(name string, v any) Field {
	return Field{Name: name, Value: DebugValue(v)}
}

// Error creates an error field named "error"
func Error(err error) Field {
	return NamedError(ErrorKey, err)
}

// NamedError creates an error field with a custom name
func NamedError(name string, err error) Field {
	return Field{Name: name, Value: ErrorValue(err)}
}

// Message creates the conventional "message" field
func Message(msg string) Field {
	return String(MessageKey, msg)
}

// Well-known field names
const (
	MessageKey = "message"
	ErrorKey   = "error"

	// LogPrefix marks fields produced by the log bridge
	LogPrefix = "log."
)

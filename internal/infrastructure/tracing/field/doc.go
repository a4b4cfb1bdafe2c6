/*
Package field defines the values carried by spans and events.

A Value is a closed sum over signed and unsigned integers, booleans, strings,
captured debug text and errors. Every Value has one canonical string encoding
(Encode), which is what a span's Store keeps:

	field.Int("attempt", -3)        // "-3"
	field.Bool("cached", true)      // "true"
	field.Debug("body", "x")        // "\"x\""
	field.Error(io.EOF)             // "EOF"

Store is the per-span key/value map. It is owned by exactly one span and
copied, never shared, when a child span inherits it.
*/
package field

package logfmt

import (
	"strings"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

// Quote returns value ready to be written after "key=". Values that are
// already well-formed are returned untouched; anything else is wrapped in
// quotes with its content escaped.
func Quote(value string) string {
	if !needsQuoting(value) {
		return value
	}
	return field.EscapeDebug(value)
}

func needsQuoting(value string) bool {
	starts := strings.HasPrefix(value, `"`)
	ends := strings.HasSuffix(value, `"`)
	if starts != ends {
		return true
	}

	quoted := len(value) >= 2 && starts && ends
	inner := value
	if quoted {
		inner = value[1 : len(value)-1]
	}

	// an inner quote must be escaped
	var prev rune
	for i, c := range inner {
		if i > 0 && c == '"' && prev != '\\' {
			return true
		}
		prev = c
	}

	if quoted {
		return false
	}
	if strings.IndexByte(inner, '=') >= 0 {
		return true
	}
	for i := 0; i < len(inner); i++ {
		if inner[i] <= ' ' {
			return true
		}
	}
	return false
}

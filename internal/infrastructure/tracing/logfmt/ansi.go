package logfmt

import (
	"strings"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
)

const (
	ansiReset  = "\x1b[0m"
	ansiKey    = "\x1b[3;38;5;245m"
	ansiPurple = "\x1b[1;35m"
	ansiBlue   = "\x1b[1;34m"
	ansiGreen  = "\x1b[1;32m"
	ansiYellow = "\x1b[1;33m"
	ansiRed    = "\x1b[1;31m"
)

func (l *Layer) paintKey(key string) string {
	if !l.ansi {
		return key
	}
	return ansiKey + key + ansiReset
}

func (l *Layer) paintLevel(level tracing.Level) string {
	if !l.ansi {
		return level.String()
	}

	var color string
	switch level {
	case tracing.LevelTrace:
		color = ansiPurple
	case tracing.LevelDebug:
		color = ansiBlue
	case tracing.LevelInfo:
		color = ansiGreen
	case tracing.LevelWarn:
		color = ansiYellow
	default:
		color = ansiRed
	}
	return color + strings.ToUpper(level.String()) + ansiReset
}

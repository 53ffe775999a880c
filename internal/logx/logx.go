// Package logx builds the console loggers the explorer binaries share.
package logx

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog console logger tagged with the service
// name, so the explorer and notifier goroutines are tellable apart in
// shared output.
func NewLogger(service string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		if i := strings.LastIndexByte(file, '/'); i >= 0 {
			file = file[i+1:]
		}
		// Pad for alignment across call sites.
		return fmt.Sprintf("%-24s", fmt.Sprintf("%s:%d", file, line))
	}
	return zerolog.New(output).With().
		Timestamp().
		Caller().
		Str("service", service).
		Logger()
}

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// Setup configures the global logger. format is "console" or "json".
func Setup(level, format string, w io.Writer) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stderr
	}

	var writer log.Writer
	switch strings.ToLower(format) {
	case "", "console":
		writer = &log.ConsoleWriter{
			Writer:      w,
			ColorOutput: isTerminal(w),
		}
	case "json":
		writer = &log.IOWriter{Writer: w}
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	log.DefaultLogger = log.Logger{
		Level:      lvl,
		TimeFormat: "15:04:05",
		Writer:     writer,
	}
	return nil
}

func parseLevel(level string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.TraceLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && log.IsTerminal(f.Fd())
}

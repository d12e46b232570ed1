package log

import (
	"fmt"
	"log"
	"os"
)

// Diagnostic levels. The level prefixes match what a raster filter is
// expected to emit on its side channel.
const (
	DEBUG = "DEBUG"
	INFO  = "INFO"
	WARN  = "WARNING"
	ERROR = "ERROR"
)

// Stdlog and Errlog both write to stderr: stdout may carry the printer
// command stream and must never receive diagnostics.
var Stdlog, Errlog *log.Logger

func init() {
	Stdlog = log.New(os.Stderr, "", 0)
	Errlog = log.New(os.Stderr, "", 0)
}

// LogMessage emits one "LEVEL: message" diagnostic line.
func LogMessage(level, message string) {
	switch level {
	case ERROR:
		Errlog.Printf("%s: %s", level, message)
	default:
		Stdlog.Printf("%s: %s", level, message)
	}
}

// Page emits the per-page accounting line the spooler scrapes.
func Page(page, copies int) {
	Stdlog.Printf("PAGE: %d %d", page, copies)
}

// Debugf emits a formatted DEBUG line.
func Debugf(format string, args ...interface{}) {
	Stdlog.Printf("%s: %s", DEBUG, fmt.Sprintf(format, args...))
}

// PrintIfErr logs msg together with the error if *err is set.
func PrintIfErr(msg string, err *error) {
	if err == nil || *err == nil {
		return
	}
	if msg == "" {
		Errlog.Printf("%s: %v", ERROR, *err)
		return
	}
	Errlog.Printf("%s: %s: %v", ERROR, msg, *err)
}

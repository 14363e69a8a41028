// Package btstack holds the types and helpers shared by the avdtp and smp
// engines: peer addressing, the process-wide logging backend, and the §7
// error taxonomy.
package btstack

import (
	stdlog "log"
	"log/syslog"
	"os"

	"github.com/op/go-logging"
)

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} %{module} ▶ %{message}%{color:reset}`,
)
var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} %{module} ▶ %{message}`,
)

// NewLogger returns a module-scoped logger. Engines take one of these at
// construction time rather than reaching for a package-level global, since
// avdtp and smp are libraries that may be embedded in a process alongside
// other modules logging through the same backend.
func NewLogger(module string) *logging.Logger {
	return logging.MustGetLogger(module)
}

// SetupLogging installs the process-wide logging backend (stderr, or
// syslog when available) and level. Call once from cmd/btstackd; library
// packages never call this themselves.
func SetupLogging(prefix string, defaultLevel logging.Level, trySyslog bool) {
	var backend logging.Backend
	if trySyslog {
		var err error
		backend, err = logging.NewSyslogBackendPriority(prefix, syslog.LOG_NOTICE)
		if err == nil {
			logging.SetFormatter(syslogFormat)
			if syslogBackend, ok := backend.(*logging.SyslogBackend); ok {
				stdlog.SetOutput(syslogBackend.Writer)
			}
		} else {
			backend = nil
		}
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, prefix, 0)
		logging.SetFormatter(stderrFormat)
	}
	leveled := logging.AddModuleLevel(backend)
	switch os.Getenv("BTSTACK_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, "")
	case "ERROR":
		leveled.SetLevel(logging.ERROR, "")
	case "WARNING":
		leveled.SetLevel(logging.WARNING, "")
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, "")
	case "INFO":
		leveled.SetLevel(logging.INFO, "")
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, "")
	default:
		leveled.SetLevel(defaultLevel, "")
	}
	logging.SetBackend(leveled)
}

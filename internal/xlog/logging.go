// Package xlog is the structured logger shared by every component of the
// session: the transport, correlator, bulk engine, orchestrators, store,
// and HTTP/WS glue all log through one *Logger instance handed to them at
// construction, never a package-level global.
package xlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l Level) Valid() bool { return l >= OFF && l <= CRITICAL }

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	}
	return "OFF"
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.Debug
	case INFO:
		return rfc5424.Info
	case WARN:
		return rfc5424.Warning
	case ERROR:
		return rfc5424.Error
	case CRITICAL:
		return rfc5424.Crit
	}
	return rfc5424.Info
}

func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OFF":
		return OFF, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "CRITICAL", "CRIT":
		return CRITICAL, nil
	}
	return OFF, fmt.Errorf("xlog: unrecognized level %q", s)
}

const DefaultID = `x32mgr@1`

var ErrNotOpen = errors.New("logger is not open")

// Logger is a small leveled logger that frames each line as an RFC5424
// structured syslog message, modeled on the ingest-side logger this
// system's teacher codebase uses for its own daemons.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.WriteCloser
	lvl      Level
	hot      bool
	hostname string
	appname  string
}

// New wraps wtr at level INFO. appname is guessed from os.Args if empty.
func New(wtr io.WriteCloser, appname string) *Logger {
	l := &Logger{wtrs: []io.WriteCloser{wtr}, lvl: INFO, hot: true}
	l.hostname, _ = os.Hostname()
	if appname == "" {
		if len(os.Args) > 0 {
			appname = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))
		}
	}
	l.appname = appname
	return l
}

// NewDiscard returns a logger that drops everything; useful in tests that
// don't want to assert on logging but need a non-nil *Logger.
func NewDiscard() *Logger {
	return New(discardCloser{}, "test")
}

type discardCloser struct{}

func (discardCloser) Write(b []byte) (int, error) { return len(b), nil }
func (discardCloser) Close() error                { return nil }

func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.Valid() {
		return fmt.Errorf("xlog: invalid level %d", lvl)
	}
	l.mtx.Lock()
	l.lvl = lvl
	l.mtx.Unlock()
	return nil
}

func (l *Logger) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.hot = false
	var err error
	for _, w := range l.wtrs {
		if e := w.Close(); e != nil {
			err = e
		}
	}
	return err
}

func (l *Logger) Debugf(f string, args ...interface{}) { l.outputf(DEBUG, f, args...) }
func (l *Logger) Infof(f string, args ...interface{})  { l.outputf(INFO, f, args...) }
func (l *Logger) Warnf(f string, args ...interface{})  { l.outputf(WARN, f, args...) }
func (l *Logger) Errorf(f string, args ...interface{}) { l.outputf(ERROR, f, args...) }

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam) { l.output(DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)  { l.output(INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)  { l.output(WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam) { l.output(ERROR, msg, sds...) }

func (l *Logger) outputf(lvl Level, f string, args ...interface{}) {
	l.output(lvl, fmt.Sprintf(f, args...))
}

func (l *Logger) output(lvl Level, msg string, sds ...rfc5424.SDParam) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.hot || lvl < l.lvl || l.lvl == OFF {
		return
	}
	b, err := genRFCMessage(time.Now(), lvl.priority(), l.hostname, l.appname, msg, sds...)
	if err != nil || len(b) == 0 {
		return
	}
	for _, w := range l.wtrs {
		io.WriteString(w, string(b))
		io.WriteString(w, "\n")
	}
}

func genRFCMessage(ts time.Time, prio rfc5424.Priority, hostname, appname, msg string, sds ...rfc5424.SDParam) ([]byte, error) {
	m := rfc5424.Message{
		Priority:  prio,
		Timestamp: ts,
		Hostname:  trimLength(255, hostname),
		AppName:   trimLength(48, appname),
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: DefaultID, Parameters: sds}}
	}
	return m.MarshalBinary()
}

func trimLength(n int, s string) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

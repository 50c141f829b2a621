package reqctx

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Level is the importance of a log entry, lowest first
type Level int

const (
	Spam Level = iota
	Trace
	Debug
	Info
	Warning
	Error
	Critical
)

var levelNames = [...]string{"spam", "trace", "debug", "info", "warning", "error", "critical"}

func (l Level) String() string {
	if l < Spam || l > Critical {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Entry is a single log record. Item is usually a string or a
// fmt.Stringer such as a query log.
type Entry struct {
	ScopeID string
	Item    interface{}
	Level   Level
}

// String renders the entry item
func (e Entry) String() string {
	if s, ok := e.Item.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(e.Item)
}

// Sink receives scope log entries
type Sink interface {
	Log(entry Entry)
}

type discardSink struct{}

func (discardSink) Log(Entry) {}

// MemorySink keeps every entry at or above Min
type MemorySink struct {
	Min     Level
	Entries []Entry
}

// NewMemorySink creates a sink recording entries of level min and above
func NewMemorySink(min Level) *MemorySink {
	return &MemorySink{Min: min}
}

// Log records the entry if it is important enough
func (m *MemorySink) Log(entry Entry) {
	if entry.Level >= m.Min {
		m.Entries = append(m.Entries, entry)
	}
}

// Items returns the logged items in order
func (m *MemorySink) Items() []interface{} {
	items := make([]interface{}, 0, len(m.Entries))
	for _, e := range m.Entries {
		items = append(items, e.Item)
	}
	return items
}

// LogrusSink forwards entries to a logrus logger
type LogrusSink struct {
	Logger *logrus.Logger
}

// Log writes the entry with the matching logrus level
func (l LogrusSink) Log(entry Entry) {
	fields := logrus.Fields{"scope": entry.ScopeID}
	var level logrus.Level
	switch entry.Level {
	case Spam, Trace:
		level = logrus.TraceLevel
	case Debug:
		level = logrus.DebugLevel
	case Info:
		level = logrus.InfoLevel
	case Warning:
		level = logrus.WarnLevel
	case Critical:
		fields["critical"] = true
		level = logrus.ErrorLevel
	default:
		level = logrus.ErrorLevel
	}
	l.Logger.WithFields(fields).Log(level, entry.String())
}

// MultiSink fans an entry out to several sinks
type MultiSink []Sink

// Log passes the entry to every sink
func (m MultiSink) Log(entry Entry) {
	for _, s := range m {
		s.Log(entry)
	}
}

package models

import "time"

// LogTimeLayout renders timestamps the way the diagnostics view shows them.
const LogTimeLayout = "1/2/2006, 3:04:05 PM"

// LogEntry is one line of the rolling diagnostic log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp" msgpack:"t"`
	Message   string    `json:"message" msgpack:"m"`
}

// NewLogEntry stamps message with the current time.
func NewLogEntry(message string) LogEntry {
	return LogEntry{Timestamp: time.Now(), Message: message}
}

// String renders the entry as "<local time>: <message>".
func (e LogEntry) String() string {
	return e.Timestamp.Local().Format(LogTimeLayout) + ": " + e.Message
}

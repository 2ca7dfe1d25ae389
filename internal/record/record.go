// Package record defines the canonical LogRecord type and parsers that turn
// raw input (file lines, syslog frames, HTTP JSON payloads) into records.
package record

import (
	"time"

	"github.com/google/uuid"
)

// Level is a normalized severity token. Unrecognized input keeps its own
// free-form string rather than being coerced into one of the named levels.
const (
	LevelError   = "ERROR"
	LevelWarn    = "WARN"
	LevelInfo    = "INFO"
	LevelDebug   = "DEBUG"
	LevelTrace   = "TRACE"
	LevelUnknown = "UNKNOWN"
)

// Record is the immutable canonical log record.
type Record struct {
	ID         string            `json:"id"`
	IngestTime int64             `json:"ingestTime"`
	RecordTime *int64            `json:"recordTime"`
	Level      string            `json:"level"`
	Message    string            `json:"message"`
	Source     string            `json:"source"`
	Metadata   map[string]string `json:"metadata"`
	RawContent string            `json:"rawContent"`
}

// EffectiveTime returns RecordTime when present, else IngestTime — the
// ordering and windowing key used throughout the index and search service.
func (r Record) EffectiveTime() int64 {
	if r.RecordTime != nil {
		return *r.RecordTime
	}
	return r.IngestTime
}

// NewID returns a fresh globally-unique record id.
func NewID() string {
	return uuid.New().String()
}

// NowMillis returns the current time in epoch milliseconds, the unit used
// throughout the data model for ingestTime/recordTime.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Clone returns a deep-enough copy safe to hand to a redactor without
// mutating the original (metadata map is copied).
func (r Record) Clone() Record {
	c := r
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	if r.RecordTime != nil {
		t := *r.RecordTime
		c.RecordTime = &t
	}
	return c
}

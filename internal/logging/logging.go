// Package logging writes one JSON object per line through the standard logger.
package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Service    string `json:"service"`
	RequestID  string `json:"request_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	OrderID    int64  `json:"order_id,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	Step       string `json:"step,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

type entry struct {
	Fields
	Timestamp string `json:"timestamp"`
}

// Log emits fields with a UTC timestamp.
func Log(fields Fields) {
	log.Print(encode(fields, time.Now()))
}

// Err is Log with the error attached.
func Err(fields Fields, err error) {
	if err != nil {
		fields.Error = err.Error()
	}
	Log(fields)
}

func encode(fields Fields, now time.Time) string {
	data, err := json.Marshal(entry{Fields: fields, Timestamp: now.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		b, _ := json.Marshal(map[string]string{"service": fields.Service, "status": "log_error", "error": err.Error()})
		return string(b)
	}
	return string(data)
}

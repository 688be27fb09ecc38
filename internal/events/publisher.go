// Package events carries lifecycle events (loads, evictions, generations)
// out of the manager. Sinks are pluggable: a structured-log sink is always
// safe, and a Kafka sink can be enabled for external consumers.
package events

import (
	"time"

	"github.com/rs/zerolog"
)

// Event is one lifecycle occurrence.
type Event struct {
	// Name, e.g. "load_done", "evict", "generate_failed".
	Name string `json:"name"`
	// Workload the event concerns, if any.
	Workload string `json:"workload,omitempty"`
	// Job the event concerns, if any.
	JobID string `json:"job_id,omitempty"`
	// Free-form details.
	Fields map[string]any `json:"fields,omitempty"`
	// Time the event was published; filled by the publisher when zero.
	Time time.Time `json:"time"`
}

// Publisher delivers events to a sink. Publish must not block the caller for
// long and must never panic; generation hot paths call it inline.
type Publisher interface {
	Publish(Event)
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	log zerolog.Logger
}

// NewLogPublisher returns a publisher logging at info level.
func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ev Event) {
	e := p.log.Info().Str("event", ev.Name)
	if ev.Workload != "" {
		e = e.Str("workload", ev.Workload)
	}
	if ev.JobID != "" {
		e = e.Str("job_id", ev.JobID)
	}
	if len(ev.Fields) > 0 {
		e = e.Fields(ev.Fields)
	}
	e.Msg("lifecycle event")
}

// Tee fans one event out to several publishers.
type Tee []Publisher

func (t Tee) Publish(ev Event) {
	for _, p := range t {
		p.Publish(ev)
	}
}

package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSearch       EventType = "search"
	EventInvalidQuery EventType = "invalid_query"
	EventIndexBuild   EventType = "index_build"
)

// Event is anything the collector can publish. PartitionKey keeps related
// events on one partition.
type Event interface {
	PartitionKey() string
}

// SearchEvent describes one answered or rejected query. Query is the
// canonical query text, so equivalent queries aggregate together.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms,omitempty"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  float64   `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

func (e SearchEvent) PartitionKey() string {
	return e.Query
}

// BuildEvent describes one successful index build.
type BuildEvent struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
	Accepted   int       `json:"accepted"`
	Filtered   int       `json:"filtered"`
	Skipped    int       `json:"skipped"`
	Terms      int       `json:"terms"`
	DurationMs float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e BuildEvent) PartitionKey() string {
	return string(EventIndexBuild)
}

// Decode reads one published event, dispatching on its type field.
func Decode(value []byte) (Event, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return nil, fmt.Errorf("decoding analytics event: %w", err)
	}
	switch envelope.Type {
	case EventSearch, EventInvalidQuery:
		var e SearchEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding search event: %w", err)
		}
		return e, nil
	case EventIndexBuild:
		var e BuildEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding build event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown analytics event type %q", envelope.Type)
	}
}

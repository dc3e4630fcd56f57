package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

type Type int

const (
	Received Type = iota
	Matched
	Formatted
	Failed
)

func (t Type) String() string {
	switch t {
	case Received:
		return "received"
	case Matched:
		return "matched"
	case Formatted:
		return "formatted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Stats are lifetime counters for the service, covering every request
// regardless of how it arrived (HTTP or stdin mode).
type Stats struct {
	start    time.Time
	counters map[Type]*atomic.Int64
}

func New() Stats {
	return Stats{
		start: time.Now(),
		counters: map[Type]*atomic.Int64{
			Received:  {},
			Matched:   {},
			Formatted: {},
			Failed:    {},
		},
	}
}

func (s *Stats) Add(t Type, delta int64) int64 {
	return s.counters[t].Add(delta)
}

func (s *Stats) Value(t Type) int64 {
	return s.counters[t].Load()
}

func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.start)
}

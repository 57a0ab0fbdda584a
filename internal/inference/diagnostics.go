package inference

import (
	"sync/atomic"

	"github.com/Veraticus/nourish/internal/encoding"
)

var eventKinds = []encoding.EventKind{
	encoding.KindUnseenCategory,
	encoding.KindMissingEncoder,
	encoding.KindDecodeOutOfRange,
	encoding.KindDefaultFilled,
	encoding.KindMissingField,
	encoding.KindSchemaDrift,
	encoding.KindUnknownField,
}

// Diagnostics counts fallback decisions and prediction outcomes. Counters are
// atomic; it is the only mutable state shared between requests.
type Diagnostics struct {
	next        encoding.Observer
	events      map[encoding.EventKind]*atomic.Int64
	predictions atomic.Int64
	failures    atomic.Int64
	unrecorded  atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Events      map[string]int64 `json:"events"`
	Predictions int64            `json:"predictions"`
	Failures    int64            `json:"failures"`
	Unrecorded  int64            `json:"unrecorded"`
}

// NewDiagnostics returns counters that forward every event to next. A nil
// next logs events.
func NewDiagnostics(next encoding.Observer) *Diagnostics {
	if next == nil {
		next = encoding.LogObserver{}
	}
	d := &Diagnostics{
		next:   next,
		events: make(map[encoding.EventKind]*atomic.Int64, len(eventKinds)),
	}
	for _, k := range eventKinds {
		d.events[k] = new(atomic.Int64)
	}
	return d
}

// Observe counts e and forwards it.
func (d *Diagnostics) Observe(e encoding.Event) {
	if c, ok := d.events[e.Kind]; ok {
		c.Add(1)
	}
	d.next.Observe(e)
}

// Count returns the number of events of kind seen so far.
func (d *Diagnostics) Count(kind encoding.EventKind) int64 {
	if c, ok := d.events[kind]; ok {
		return c.Load()
	}
	return 0
}

// Snapshot copies the counters.
func (d *Diagnostics) Snapshot() Snapshot {
	s := Snapshot{
		Events:      make(map[string]int64, len(d.events)),
		Predictions: d.predictions.Load(),
		Failures:    d.failures.Load(),
		Unrecorded:  d.unrecorded.Load(),
	}
	for k, c := range d.events {
		s.Events[string(k)] = c.Load()
	}
	return s
}

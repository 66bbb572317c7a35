package metrics

import "sync"

// Event names counted by the relay. A single registry with an event label
// keeps the in-process surface small while still being scrapeable.
const (
	EventJoinOK            = "join_ok"
	EventJoinRoomFull      = "join_room_full"
	EventJoinRejected      = "join_rejected"
	EventSignalForwarded   = "signal_forwarded"
	EventSignalDropped     = "signal_dropped"
	EventStatusBroadcast   = "status_broadcast"
	EventStatusDropped     = "status_dropped"
	EventUserLeftBroadcast = "user_left_broadcast"

	DropReasonRateLimited  = "rate_limited"
	DropReasonBadMessage   = "bad_message"
	DropReasonSendOverflow = "send_overflow"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay is expected to plug into a real metrics backend eventually; this
// type exists to keep the protocol logic testable and to expose the drop
// counters the operators care about.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}

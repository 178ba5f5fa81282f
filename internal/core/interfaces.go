package core

// Frame is one encoded outbound event.
type Frame []byte

// ConnID identifies one transport session. It is valid only while the
// transport is open.
type ConnID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues without blocking.
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []ConnID
}

// Package mailbox is the single-slot handoff between command intake and the
// render loop. Publishing replaces any pending snapshot, so the consumer only
// ever sees the newest document state no matter how fast edits arrive.
package mailbox

import "context"

// Mailbox coalesces document snapshots. It is safe for concurrent publishers;
// a single consumer loop is expected.
type Mailbox struct {
	slot chan []byte
}

func New() *Mailbox {
	return &Mailbox{slot: make(chan []byte, 1)}
}

// Publish stores snapshot without blocking. A snapshot that has not been
// consumed yet is dropped in favor of the new one.
func (m *Mailbox) Publish(snapshot []byte) {
	for {
		select {
		case m.slot <- snapshot:
			return
		default:
		}

		// Slot occupied: evict the stale snapshot and retry. The consumer may
		// win the race and drain it first, which is fine either way.
		select {
		case <-m.slot:
		default:
		}
	}
}

// Consume blocks until a snapshot is available or ctx is cancelled.
func (m *Mailbox) Consume(ctx context.Context) ([]byte, error) {
	select {
	case snapshot := <-m.slot:
		return snapshot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

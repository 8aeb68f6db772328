package livesync

import "sync"

const defaultOutboxLimit = 64

// outbox buffers encoded command frames that could not be sent, for delivery
// after the next successful connect. Bounded: when full the oldest entries
// are dropped, since the server reconciles conflict state on reconnect anyway.
type outbox struct {
	mu     sync.Mutex
	frames [][]byte
	limit  int
}

func newOutbox(limit int) *outbox {
	if limit <= 0 {
		limit = defaultOutboxLimit
	}
	return &outbox{limit: limit}
}

// add appends a frame and returns how many old frames were dropped to make room.
func (o *outbox) add(frame []byte) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.frames = append(o.frames, frame)
	dropped := 0
	if len(o.frames) > o.limit {
		dropped = len(o.frames) - o.limit
		o.frames = append([][]byte(nil), o.frames[dropped:]...)
	}
	return dropped
}

// drain removes and returns all queued frames in FIFO order.
func (o *outbox) drain() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	frames := o.frames
	o.frames = nil
	return frames
}

// requeue puts frames back at the front after a failed flush, ahead of
// anything queued in the meantime.
func (o *outbox) requeue(frames [][]byte) {
	if len(frames) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	merged := make([][]byte, 0, len(frames)+len(o.frames))
	merged = append(merged, frames...)
	merged = append(merged, o.frames...)
	o.frames = merged
	if len(o.frames) > o.limit {
		o.frames = o.frames[:o.limit]
	}
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

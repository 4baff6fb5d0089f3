package mqtt

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// replayBuffer is a fixed-capacity FIFO holding messages that could not be
// published. When full, the oldest message is dropped to admit the newest.
// Not safe for concurrent use; the caller must synchronize.
type replayBuffer struct {
	slots   []bufferedMsg
	start   int // index of the oldest message
	count   int
	dropped int // messages lost to overflow since the last drain
}

func newReplayBuffer(capacity int) *replayBuffer {
	return &replayBuffer{slots: make([]bufferedMsg, capacity)}
}

func (b *replayBuffer) push(msg bufferedMsg) {
	if b.count == len(b.slots) {
		// Overwrite the oldest slot and advance start past it.
		b.slots[b.start] = msg
		b.start = (b.start + 1) % len(b.slots)
		b.dropped++
		return
	}
	b.slots[(b.start+b.count)%len(b.slots)] = msg
	b.count++
}

// drainAll returns the buffered messages oldest-first and resets the buffer,
// including the drop counter.
func (b *replayBuffer) drainAll() []bufferedMsg {
	if b.count == 0 {
		b.dropped = 0
		return nil
	}

	msgs := make([]bufferedMsg, b.count)
	for i := range msgs {
		msgs[i] = b.slots[(b.start+i)%len(b.slots)]
	}

	b.start = 0
	b.count = 0
	b.dropped = 0
	return msgs
}

func (b *replayBuffer) len() int {
	return b.count
}

func (b *replayBuffer) droppedCount() int {
	return b.dropped
}

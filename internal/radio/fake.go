package radio

import (
	"github.com/orbtap/orb-gateway/internal/proximity"
)

// FakeSampler delivers scripted samples for tests.
type FakeSampler struct {
	ch chan proximity.Sample

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSampler creates a FakeSampler holding up to buffer samples.
func NewFakeSampler(buffer int) *FakeSampler {
	return &FakeSampler{ch: make(chan proximity.Sample, buffer)}
}

// Samples returns the channel scripted samples arrive on.
func (f *FakeSampler) Samples() <-chan proximity.Sample {
	return f.ch
}

// Emit delivers one sample to the consumer. Blocks if the buffer is full.
func (f *FakeSampler) Emit(sample proximity.Sample) {
	f.ch <- sample
}

// Close closes the sample channel.
func (f *FakeSampler) Close() error {
	if !f.Closed {
		f.Closed = true
		close(f.ch)
	}
	return nil
}

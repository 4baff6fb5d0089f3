package mqtt

import (
	"github.com/orbtap/orb-gateway/internal/proximity"
)

// FakePublisher records published traffic for test assertions.
type FakePublisher struct {
	// Events contains all zone events that were published.
	Events []proximity.Event

	// Payloads contains the JSON payloads for zone events.
	Payloads [][]byte

	// SettleResults contains all settlement outcomes that were published.
	SettleResults []SettleResult

	// SettlePayloads contains the JSON payloads for settlement outcomes.
	SettlePayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSettleError, if set, will be returned by PublishSettleResult.
	PublishSettleError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the zone event.
func (f *FakePublisher) Publish(event proximity.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	f.Events = append(f.Events, event)

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Payloads = append(f.Payloads, payload)

	return nil
}

// PublishSettleResult records the settlement outcome.
func (f *FakePublisher) PublishSettleResult(result SettleResult) error {
	if f.PublishSettleError != nil {
		return f.PublishSettleError
	}

	f.SettleResults = append(f.SettleResults, result)

	payload, err := FormatSettleResultPayload(result)
	if err != nil {
		return err
	}
	f.SettlePayloads = append(f.SettlePayloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded traffic.
func (f *FakePublisher) Reset() {
	f.Events = nil
	f.Payloads = nil
	f.SettleResults = nil
	f.SettlePayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.PublishError = nil
	f.PublishSettleError = nil
	f.PublishSystemError = nil
	f.Closed = false
	f.Connected = false
}

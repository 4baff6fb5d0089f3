package radio

import (
	"testing"
	"time"

	"github.com/orbtap/orb-gateway/internal/proximity"
)

// fakeMessage implements paho.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestOrbFromTopic(t *testing.T) {
	tests := []struct {
		topic   string
		wantOrb string
		wantOK  bool
	}{
		{"loyalty/orbs/orb_1/rssi", "orb_1", true},
		{"loyalty/orbs/a4:c1:38:90:12:fe/rssi", "a4:c1:38:90:12:fe", true},
		{"loyalty/orbs/orb_1/battery", "", false},
		{"loyalty/gateway/events", "", false},
		{"energy/orbs/orb_1/rssi", "", false},
		{"loyalty/orbs//rssi", "", false},
		{"loyalty/orbs/orb_1/rssi/extra", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			orb, ok := orbFromTopic(tt.topic)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if orb != tt.wantOrb {
				t.Errorf("orb: got %q, want %q", orb, tt.wantOrb)
			}
		})
	}
}

func TestHandleMessageDeliversSample(t *testing.T) {
	s := &MQTTSampler{samples: make(chan proximity.Sample, 4)}

	s.handleMessage(nil, fakeMessage{
		topic:   "loyalty/orbs/orb_7/rssi",
		payload: []byte("-52"),
	})

	select {
	case sample := <-s.samples:
		if sample.PeerID != "orb_7" {
			t.Errorf("unexpected peer: %s", sample.PeerID)
		}
		if sample.Strength != -52 {
			t.Errorf("unexpected strength: %d", sample.Strength)
		}
		if sample.Time.IsZero() {
			t.Error("expected sample to be timestamped")
		}
	default:
		t.Fatal("expected a sample to be delivered")
	}
}

func TestHandleMessageTrimsWhitespace(t *testing.T) {
	s := &MQTTSampler{samples: make(chan proximity.Sample, 4)}

	s.handleMessage(nil, fakeMessage{
		topic:   "loyalty/orbs/orb_1/rssi",
		payload: []byte(" -55\n"),
	})

	select {
	case sample := <-s.samples:
		if sample.Strength != -55 {
			t.Errorf("unexpected strength: %d", sample.Strength)
		}
	default:
		t.Fatal("expected a sample to be delivered")
	}
}

func TestHandleMessageDropsUnparseable(t *testing.T) {
	s := &MQTTSampler{samples: make(chan proximity.Sample, 4)}

	s.handleMessage(nil, fakeMessage{
		topic:   "loyalty/orbs/orb_1/rssi",
		payload: []byte("strong"),
	})
	s.handleMessage(nil, fakeMessage{
		topic:   "loyalty/orbs/orb_1/rssi",
		payload: []byte(""),
	})

	if len(s.samples) != 0 {
		t.Errorf("expected no samples, got %d", len(s.samples))
	}
}

func TestHandleMessageDropsUnexpectedTopic(t *testing.T) {
	s := &MQTTSampler{samples: make(chan proximity.Sample, 4)}

	s.handleMessage(nil, fakeMessage{
		topic:   "loyalty/gateway/events",
		payload: []byte("-52"),
	})

	if len(s.samples) != 0 {
		t.Errorf("expected no samples, got %d", len(s.samples))
	}
}

func TestHandleMessageDropsWhenFull(t *testing.T) {
	s := &MQTTSampler{samples: make(chan proximity.Sample, 1)}

	s.handleMessage(nil, fakeMessage{topic: "loyalty/orbs/orb_1/rssi", payload: []byte("-50")})
	// Buffer full: must drop instead of blocking the broker callback.
	s.handleMessage(nil, fakeMessage{topic: "loyalty/orbs/orb_2/rssi", payload: []byte("-60")})

	if len(s.samples) != 1 {
		t.Fatalf("expected 1 buffered sample, got %d", len(s.samples))
	}
	sample := <-s.samples
	if sample.PeerID != "orb_1" {
		t.Errorf("expected the first sample kept, got %s", sample.PeerID)
	}
}

func TestHandleMessageAfterClose(t *testing.T) {
	s := &MQTTSampler{samples: make(chan proximity.Sample, 4)}
	s.closed = true
	close(s.samples)

	// Must not panic or send on the closed channel.
	s.handleMessage(nil, fakeMessage{
		topic:   "loyalty/orbs/orb_1/rssi",
		payload: []byte("-50"),
	})
}

func TestFakeSamplerEmit(t *testing.T) {
	f := NewFakeSampler(4)

	want := proximity.Sample{
		PeerID:   "orb_1",
		Strength: -48,
		Time:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.Emit(want)

	got := <-f.Samples()
	if got != want {
		t.Errorf("unexpected sample: %+v", got)
	}
}

func TestFakeSamplerClose(t *testing.T) {
	f := NewFakeSampler(4)
	f.Emit(proximity.Sample{PeerID: "orb_1", Strength: -48})

	if err := f.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("expected Closed to be set")
	}

	// Buffered sample still drains, then the channel reports closed.
	if _, ok := <-f.Samples(); !ok {
		t.Fatal("expected buffered sample before close")
	}
	if _, ok := <-f.Samples(); ok {
		t.Error("expected channel to be closed")
	}

	// Double close must not panic.
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}
}

// Interface compliance, checked at compile time.
var _ Sampler = (*MQTTSampler)(nil)
var _ Sampler = (*FakeSampler)(nil)

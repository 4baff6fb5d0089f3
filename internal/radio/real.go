package radio

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/orbtap/orb-gateway/internal/mqtt"
	"github.com/orbtap/orb-gateway/internal/proximity"
)

const (
	clientID         = "orb-gateway-radio"
	connectTimeout   = 10 * time.Second
	subscribeTimeout = 5 * time.Second
)

// MQTTSampler subscribes to the orb sample topic and converts raw readings
// into samples. Orbs publish a bare integer signal strength to
// loyalty/orbs/<orb>/rssi; the orb id is taken from the topic.
type MQTTSampler struct {
	client  paho.Client
	samples chan proximity.Sample

	mu     sync.Mutex
	closed bool
}

// NewMQTTSampler connects to the broker and subscribes to orb readings.
// The returned sampler holds up to buffer samples; when the consumer lags,
// the newest readings are dropped rather than blocking the broker callback.
func NewMQTTSampler(broker string, buffer int) (*MQTTSampler, error) {
	s := &MQTTSampler{
		samples: make(chan proximity.Sample, buffer),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c paho.Client) {
			// Subscriptions do not survive a reconnect; restore on every
			// connection.
			token := c.Subscribe(mqtt.TopicSamples, 0, s.handleMessage)
			if token.WaitTimeout(subscribeTimeout) && token.Error() == nil {
				return
			}
			log.Printf("radio: subscribe %s failed: %v", mqtt.TopicSamples, token.Error())
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("radio: connection lost: %v", err)
		})

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return s, nil
}

// Samples returns the channel readings arrive on.
func (s *MQTTSampler) Samples() <-chan proximity.Sample {
	return s.samples
}

// Close unsubscribes, disconnects and closes the sample channel.
func (s *MQTTSampler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	token := s.client.Unsubscribe(mqtt.TopicSamples)
	token.WaitTimeout(subscribeTimeout)
	s.client.Disconnect(250)

	close(s.samples)
	return nil
}

func (s *MQTTSampler) handleMessage(_ paho.Client, msg paho.Message) {
	orb, ok := orbFromTopic(msg.Topic())
	if !ok {
		log.Printf("radio: ignoring message on unexpected topic %s", msg.Topic())
		return
	}

	strength, err := strconv.Atoi(strings.TrimSpace(string(msg.Payload())))
	if err != nil {
		log.Printf("radio: dropping unparseable reading from %s: %v", orb, err)
		return
	}

	sample := proximity.Sample{
		PeerID:   orb,
		Strength: strength,
		Time:     time.Now(),
	}

	// The closed check and the send share the mutex so Close cannot close
	// the channel between them.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.samples <- sample:
	default:
		log.Printf("radio: sample channel full, dropping reading from %s", orb)
	}
}

// orbFromTopic extracts the orb id from loyalty/orbs/<orb>/rssi.
func orbFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "loyalty" || parts[1] != "orbs" || parts[3] != "rssi" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

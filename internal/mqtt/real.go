package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/orbtap/orb-gateway/internal/proximity"
)

const (
	clientID         = "orb-gateway"
	connectTimeout   = 10 * time.Second
	publishTimeout   = 5 * time.Second
	subscribeTimeout = 5 * time.Second

	// bufferCapacity bounds how many messages are held for replay while
	// the broker is unreachable.
	bufferCapacity = 256
)

// RealPublisher publishes to an actual MQTT broker. Messages that cannot be
// delivered are held in a bounded buffer and replayed on reconnect; event
// timestamps are embedded in the payloads, so replayed messages stay
// attributable.
type RealPublisher struct {
	client paho.Client

	mu            sync.Mutex
	buffer        *replayBuffer
	subs          []subscription
	connectedOnce bool
}

type subscription struct {
	topic   string
	qos     byte
	handler paho.MessageHandler
}

// NewRealPublisher creates a publisher connected to the given broker. The
// broker holds an OFFLINE system event as the will message, published if the
// gateway vanishes without a clean shutdown.
func NewRealPublisher(broker string) (*RealPublisher, error) {
	p := &RealPublisher{
		buffer: newReplayBuffer(bufferCapacity),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "CONNECTION_LOST",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// Publish sends a zone transition event to the MQTT broker.
func (p *RealPublisher) Publish(event proximity.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(TopicEvents, 0, false, payload)
}

// PublishSettleResult sends a settlement outcome to the MQTT broker.
func (p *RealPublisher) PublishSettleResult(result SettleResult) error {
	payload, err := FormatSettleResultPayload(result)
	if err != nil {
		return fmt.Errorf("format settle result: %w", err)
	}

	// QoS 1 (at-least-once) - requesters reconcile by interaction id
	return p.publish(TopicSettleResults, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) - lifecycle events should not go missing
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

// ListenSettleRequests subscribes to the settle request topic and delivers
// decoded requests on the returned channel. Malformed requests are logged
// and dropped; the channel holds up to buffer requests before new ones are
// dropped to keep the broker callback from blocking.
func (p *RealPublisher) ListenSettleRequests(buffer int) (<-chan SettleRequest, error) {
	ch := make(chan SettleRequest, buffer)
	handler := func(_ paho.Client, msg paho.Message) {
		req, err := ParseSettleRequest(msg.Payload())
		if err != nil {
			log.Printf("mqtt: dropping settle request: %v", err)
			return
		}
		select {
		case ch <- req:
		default:
			log.Printf("mqtt: settle intake full, dropping request %s/%s",
				req.UserID, req.InteractionID)
		}
	}

	if err := p.subscribe(TopicSettleRequests, 1, handler); err != nil {
		return nil, err
	}
	return ch, nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // milliseconds to flush in-flight messages
	return nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		p.bufferMsg(topic, qos, retained, payload)
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.bufferMsg(topic, qos, retained, payload)
		log.Printf("mqtt: publish to %s timed out, message buffered", topic)
		return nil
	}
	if err := token.Error(); err != nil {
		p.bufferMsg(topic, qos, retained, payload)
		log.Printf("mqtt: publish to %s failed (%v), message buffered", topic, err)
		return nil
	}
	return nil
}

func (p *RealPublisher) bufferMsg(topic string, qos byte, retained bool, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
}

func (p *RealPublisher) subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	p.mu.Lock()
	p.subs = append(p.subs, subscription{topic: topic, qos: qos, handler: handler})
	p.mu.Unlock()

	token := p.client.Subscribe(topic, qos, handler)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe timeout for %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// onConnect runs on every (re)connection: restore subscriptions, replay
// buffered messages, and announce the reconnect.
func (p *RealPublisher) onConnect(client paho.Client) {
	p.mu.Lock()
	first := !p.connectedOnce
	p.connectedOnce = true
	subs := make([]subscription, len(p.subs))
	copy(subs, p.subs)
	dropped := p.buffer.droppedCount()
	msgs := p.buffer.drainAll()
	p.mu.Unlock()

	for _, sub := range subs {
		token := client.Subscribe(sub.topic, sub.qos, sub.handler)
		if token.WaitTimeout(subscribeTimeout) && token.Error() == nil {
			continue
		}
		log.Printf("mqtt: resubscribe %s failed: %v", sub.topic, token.Error())
	}

	if len(msgs) > 0 {
		if dropped > 0 {
			log.Printf("mqtt: replaying %d buffered messages (%d dropped while offline)", len(msgs), dropped)
		} else {
			log.Printf("mqtt: replaying %d buffered messages", len(msgs))
		}
	}
	for i, msg := range msgs {
		token := client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if token.WaitTimeout(publishTimeout) && token.Error() == nil {
			continue
		}
		// Connection went away mid-replay. Re-buffer the remainder; the
		// next reconnect picks them up.
		p.mu.Lock()
		for _, rest := range msgs[i:] {
			p.buffer.push(rest)
		}
		p.mu.Unlock()
		log.Printf("mqtt: replay interrupted, %d messages re-buffered", len(msgs)-i)
		break
	}

	if !first {
		event := SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}
		if err := p.PublishSystem(event); err != nil {
			log.Printf("mqtt: publish reconnect event: %v", err)
		}
	}
}

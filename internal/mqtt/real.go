package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/waggle-node/internal/bridge"
)

// bufferCapacity is the number of readings held while the broker is unreachable.
const bufferCapacity = 1000

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client

	mu      sync.Mutex
	pending *ringBuffer
	// connectedOnce distinguishes the first connection from reconnects.
	connectedOnce bool
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is retried in the background; readings published before it comes up are
// buffered. A retained SHUTDOWN will is registered for unclean disconnects.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	p := &RealPublisher{pending: newRingBuffer(bufferCapacity)}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a reading to its hive topic. Readings that cannot be sent,
// because the client is offline or the publish fails, are buffered and
// replayed on the next connect.
func (p *RealPublisher) Publish(r bridge.Reading) error {
	payload, err := FormatPayload(r)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	msg := bufferedMsg{topic: r.Topic(), payload: payload}

	// onConnect drains under p.mu after the client reports open, so a
	// reading pushed here is either drained by it or sent directly.
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.pending.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.send(msg); err != nil {
		log.Printf("mqtt: %v, buffering", err)
		p.mu.Lock()
		p.pending.push(msg)
		p.mu.Unlock()
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// onConnect replays buffered readings and announces reconnects.
func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	msgs, dropped := p.pending.drainAll()
	reconnect := p.connectedOnce
	p.connectedOnce = true
	p.mu.Unlock()

	log.Printf("mqtt: connected, replaying %d buffered readings", len(msgs))
	if dropped > 0 {
		log.Printf("mqtt: %d readings lost while disconnected", dropped)
	}

	// Handlers run on the client's goroutine; publish asynchronously.
	go func() {
		if reconnect {
			if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
				log.Printf("mqtt: reconnect event: %v", err)
			}
		}
		for _, msg := range msgs {
			if err := p.send(msg); err != nil {
				log.Printf("mqtt: replay: %v", err)
			}
		}
	}()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

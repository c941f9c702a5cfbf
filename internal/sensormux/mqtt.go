package sensormux

import (
	"fmt"
	"strings"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSource receives pod report lines over an MQTT bridge instead of the
// serial radio. Pods publish the identical wire format, one or more
// newline-separated lines per message, to a shared topic.
type MQTTSource struct {
	client  mqtt.Client
	topic   string
	pending chan string
	dropped atomic.Int64
}

// NewMQTTSource connects to the broker and subscribes to the given topic.
func NewMQTTSource(broker, clientID, topic string) (*MQTTSource, error) {
	s := &MQTTSource{
		topic:   topic,
		pending: make(chan string, DefaultPendingDepth),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	s.client = mqtt.NewClient(opts)

	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	if token := s.client.Subscribe(topic, 0, s.onMessage); token.Wait() && token.Error() != nil {
		s.client.Disconnect(250)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}

	return s, nil
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	for _, line := range strings.Split(string(msg.Payload()), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		select {
		case s.pending <- line:
		default:
			s.dropped.Add(1)
		}
	}
}

// TryReadLine returns the next pending line without blocking.
func (s *MQTTSource) TryReadLine() (string, bool) {
	select {
	case line := <-s.pending:
		return line, true
	default:
		return "", false
	}
}

// Pending returns the number of buffered lines.
func (s *MQTTSource) Pending() int { return len(s.pending) }

// Dropped returns how many lines were discarded because the queue was full.
func (s *MQTTSource) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes and disconnects from the broker.
func (s *MQTTSource) Close() error {
	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		s.client.Disconnect(250)
		return token.Error()
	}
	s.client.Disconnect(250)
	return nil
}

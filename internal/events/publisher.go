// Package events pushes fleet state changes onto the message bus.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// StatusEvent is published whenever a device crosses the online/offline
// boundary or replaces its connection URL.
type StatusEvent struct {
	Type           string    `json:"type"` // device.online, device.offline, device.reconnected
	CameraID       string    `json:"camera_id"`
	Online         bool      `json:"online"`
	Health         string    `json:"health"`
	ResponseTimeMS int64     `json:"response_time_ms,omitempty"`
	URL            string    `json:"url,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	At             time.Time `json:"at"`
}

const (
	TypeOnline      = "device.online"
	TypeOffline     = "device.offline"
	TypeReconnected = "device.reconnected"
)

// Publisher delivers events to subscribers. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(evt StatusEvent) error
}

// NATSPublisher writes JSON events to one subject with bounded retry.
type NATSPublisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func NewNATSPublisher(conn *nats.Conn, subject string, maxRetries int) *NATSPublisher {
	if subject == "" {
		subject = "ovfleet.device.status"
	}
	return &NATSPublisher{conn: conn, subject: subject, maxRetries: maxRetries}
}

func (p *NATSPublisher) Publish(evt StatusEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, payload)
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}

// Noop discards events. Used when no bus is configured.
type Noop struct{}

func (Noop) Publish(StatusEvent) error { return nil }

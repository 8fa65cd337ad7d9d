package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink forwards events to a NATS server as JSON. Each event is published
// on <subject>.<event type>, e.g. partsync.events.run.completed.
type NATSSink struct {
	nc      *nats.Conn
	subject string
	logger  *Logger
}

// NewNATSSink connects to the NATS server at url.
func NewNATSSink(url, subject string, logger *Logger) (*NATSSink, error) {
	if subject == "" {
		subject = "partsync.events"
	}
	opts := []nats.Option{
		nats.Name("partsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return &NATSSink{nc: nc, subject: subject, logger: logger}, nil
}

// Handle is an EventSubscriber publishing the event.
func (s *NATSSink) Handle(event Event) {
	if err := s.publish(event); err != nil {
		s.logger.WithError(err).Warnf("failed to forward event %s", event.Type)
	}
}

func (s *NATSSink) publish(event Event) error {
	if s.nc == nil || s.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.nc.Publish(subjectFor(s.subject, event.Type), payload)
}

// Close drains pending messages and closes the connection.
func (s *NATSSink) Close() {
	if s.nc != nil {
		_ = s.nc.Drain()
		s.nc.Close()
	}
}

func subjectFor(prefix, eventType string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '*', '>':
			return '_'
		}
		return r
	}, eventType)
	return strings.TrimSuffix(prefix, ".") + "." + token
}

// Package messaging mirrors session snapshots onto NATS so an external
// renderer can follow the client UI. It handles connection lifecycle and
// subject naming; publishing is best effort.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/whisper/chatxp/internal/session"
)

// SubjectSession is the subject prefix for session snapshots (+ .<client_id>).
const SubjectSession = "chatxp.session"

// SessionSubject returns the subject snapshots of clientID are published on.
func SessionSubject(clientID string) string {
	return SubjectSession + "." + clientID
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "chatxp",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Publisher is the part of a NATS connection the mirror needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSClient wraps the NATS connection.
type NATSClient struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, logger zerolog.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("[nats] disconnected")
			} else {
				logger.Info().Msg("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("[nats] reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Msg("[nats] connected")

	return &NATSClient{conn: nc, log: logger}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers handler for subject. The caller owns the subscription.
func (c *NATSClient) Subscribe(subject string, handler func(data []byte)) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Flush waits until the server has processed everything published so far.
func (c *NATSClient) Flush() error {
	return c.conn.Flush()
}

// Close drains the connection.
func (c *NATSClient) Close() {
	if err := c.conn.Drain(); err != nil {
		c.log.Warn().Err(err).Msg("[nats] connection drain")
	}
}

// Mirror publishes every snapshot received on snaps as JSON to the subject
// of clientID until snaps is closed or ctx is done. Failed publishes are
// logged and skipped.
func Mirror(ctx context.Context, pub Publisher, clientID string, snaps <-chan session.State, logger zerolog.Logger) {
	subject := SessionSubject(clientID)
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			data, err := json.Marshal(s)
			if err != nil {
				logger.Warn().Err(err).Msg("[nats] marshal snapshot")
				continue
			}
			if err := pub.Publish(subject, data); err != nil {
				logger.Warn().Err(err).Str("subject", subject).Msg("[nats] publish snapshot")
			}
		}
	}
}

package events

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	// FlushTimeout bounds the round trip made after each publish. Zero skips
	// the flush and publishes fire-and-forget.
	FlushTimeout time.Duration
	// Conn reuses an existing connection. Close leaves it open.
	Conn *nats.Conn
}

// NATSTransport publishes envelopes with core NATS.
type NATSTransport struct {
	conn         *nats.Conn
	ownsConn     bool
	flushTimeout time.Duration
}

// NewNATSTransport connects to NATS unless cfg.Conn is set.
func NewNATSTransport(cfg NATSConfig) (*NATSTransport, error) {
	t := &NATSTransport{flushTimeout: cfg.FlushTimeout}
	if cfg.Conn != nil {
		t.conn = cfg.Conn
		return t, nil
	}

	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "orsa"
	}
	opts := []nats.Option{nats.Name(cfg.Name)}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	t.conn = conn
	t.ownsConn = true
	return t, nil
}

// Publish sends payload on subject.
func (t *NATSTransport) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.conn == nil || t.conn.IsClosed() {
		return errors.New("nats transport closed")
	}
	if err := t.conn.Publish(subject, payload); err != nil {
		return err
	}
	if t.flushTimeout <= 0 {
		return nil
	}
	flushCtx, cancel := context.WithTimeout(ctx, t.flushTimeout)
	defer cancel()
	return t.conn.FlushWithContext(flushCtx)
}

// Close drains and closes an owned connection.
func (t *NATSTransport) Close() error {
	if !t.ownsConn || t.conn == nil || t.conn.IsClosed() {
		return nil
	}
	return t.conn.Drain()
}

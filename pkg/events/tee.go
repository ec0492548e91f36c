package events

import (
	"context"
	"errors"
)

// Tee publishes to a primary transport and, once that succeeds, to a local
// mirror. The mirror only sees messages the primary accepted, so local
// subscribers never observe an event that a retry will send again.
type Tee struct {
	primary Transport
	mirror  Transport
}

var _ Transport = (*Tee)(nil)

// NewTee combines primary and mirror into one Transport.
func NewTee(primary, mirror Transport) *Tee {
	return &Tee{primary: primary, mirror: mirror}
}

// Publish sends to the primary first. Mirror failures are ignored.
func (t *Tee) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := t.primary.Publish(ctx, subject, payload); err != nil {
		return err
	}
	_ = t.mirror.Publish(ctx, subject, payload)
	return nil
}

// Close closes both transports.
func (t *Tee) Close() error {
	return errors.Join(t.primary.Close(), t.mirror.Close())
}

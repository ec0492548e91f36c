package events

import "sync"

// EnvelopeConsumer decodes envelopes and suppresses duplicate deliveries.
type EnvelopeConsumer struct {
	mu         sync.Mutex
	seenEvents map[string]struct{}
}

// NewEnvelopeConsumer creates a consumer.
func NewEnvelopeConsumer() *EnvelopeConsumer {
	return &EnvelopeConsumer{seenEvents: make(map[string]struct{})}
}

// Decode decodes raw event bytes. duplicate is true when the event id was seen before.
func (c *EnvelopeConsumer) Decode(raw []byte) (env Envelope, duplicate bool, err error) {
	env, err = DecodeEnvelope(raw)
	if err != nil {
		return Envelope{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.seenEvents[env.EventID]; exists {
		return env, true, nil
	}
	c.seenEvents[env.EventID] = struct{}{}
	return env, false, nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/orsa-go/orsa/pkg/logger"
	"github.com/orsa-go/orsa/pkg/saga"
)

// Transport publishes bytes to a subject.
type Transport interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Close() error
}

// Telemetry records publish behavior and transport health.
type Telemetry interface {
	RecordEventPublish(eventType, status string)
	RecordEventRetry()
	SetEventBusDegraded(active bool)
}

type nopTelemetry struct{}

func (nopTelemetry) RecordEventPublish(string, string) {}
func (nopTelemetry) RecordEventRetry()                 {}
func (nopTelemetry) SetEventBusDegraded(bool)          {}

// RetryConfig controls retry/backoff behavior for publish attempts.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

func (c RetryConfig) validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("events: max retries cannot be negative")
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("events: invalid retry config")
	}
	return nil
}

func (c RetryConfig) backoff() retry.Backoff {
	b := retry.NewExponential(c.InitialBackoff)
	b = retry.WithCappedDuration(c.MaxBackoff, b)
	return retry.WithMaxRetries(uint64(c.MaxRetries), b)
}

// PublisherOption configures a Publisher.
type PublisherOption func(p *Publisher)

// WithSubjectPrefix sets the subject prefix.
func WithSubjectPrefix(prefix string) PublisherOption {
	return func(p *Publisher) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithRetry sets the publish retry policy.
func WithRetry(cfg RetryConfig) PublisherOption {
	return func(p *Publisher) { p.retry = cfg }
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(t Telemetry) PublisherOption {
	return func(p *Publisher) {
		if t != nil {
			p.telemetry = t
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.log = l
		}
	}
}

// WithResults includes the committed results in every envelope.
func WithResults() PublisherOption {
	return func(p *Publisher) { p.includeResults = true }
}

// Publisher turns saga manager callbacks into lifecycle events.
type Publisher struct {
	transport      Transport
	prefix         string
	retry          RetryConfig
	telemetry      Telemetry
	log            logger.Logger
	includeResults bool

	mu        sync.Mutex
	sequences map[string]int64
	degraded  bool
}

// NewPublisher creates a lifecycle publisher.
func NewPublisher(transport Transport, opts ...PublisherOption) (*Publisher, error) {
	if transport == nil {
		return nil, fmt.Errorf("events: transport cannot be nil")
	}
	p := &Publisher{
		transport: transport,
		prefix:    DefaultSubjectPrefix,
		retry:     DefaultRetryConfig(),
		telemetry: nopTelemetry{},
		log:       logger.Global(),
		sequences: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.retry.validate(); err != nil {
		return nil, err
	}
	p.log = p.log.With("component", "saga-events")
	return p, nil
}

// Prefix returns the subject prefix.
func (p *Publisher) Prefix() string { return p.prefix }

// Attach registers the publisher as the manager's store, complete and abort hooks.
// Use the Hook methods directly to combine it with persistence.
func (p *Publisher) Attach(m *saga.Manager) {
	m.OnSagaStore(p.CommittedHook)
	m.OnSagaComplete(p.CompletedHook)
	m.OnSagaAbort(p.AbortedHook)
}

// CommittedHook is a saga.StoreFunc publishing a committed event.
func (p *Publisher) CommittedHook(ctx context.Context, _ *saga.Manager, e *saga.Engine) error {
	_, err := p.PublishEngine(ctx, EventCommitted, e, nil)
	return err
}

// CompletedHook is a saga.CompleteFunc publishing a completed event.
func (p *Publisher) CompletedHook(ctx context.Context, _ *saga.Manager, e *saga.Engine) error {
	_, err := p.PublishEngine(ctx, EventCompleted, e, nil)
	return err
}

// AbortedHook is a saga.AbortFunc publishing an aborted event.
func (p *Publisher) AbortedHook(ctx context.Context, _ *saga.Manager, e *saga.Engine, cause error) error {
	_, err := p.PublishEngine(ctx, EventAborted, e, cause)
	return err
}

// PublishEngine publishes eventType for e.
func (p *Publisher) PublishEngine(ctx context.Context, eventType string, e *saga.Engine, cause error) (Envelope, error) {
	input := BuildEnvelopeInput{
		EventType: eventType,
		Saga:      e.Name(),
		UID:       e.UID(),
		Err:       cause,
	}
	switch eventType {
	case EventCommitted:
		input.Step = e.LastCommitted()
	case EventAborted:
		if f := e.Failure(); f != nil {
			input.Step = f.Step
		}
	}
	if p.includeResults {
		input.Results = e.Results()
	}
	return p.Publish(ctx, input)
}

// Publish builds and publishes an envelope, retrying transport failures. The
// sequence of input is assigned per saga uid.
func (p *Publisher) Publish(ctx context.Context, input BuildEnvelopeInput) (Envelope, error) {
	if err := ctx.Err(); err != nil {
		return Envelope{}, err
	}
	input.Sequence = p.nextSequence(input.UID)

	env, err := BuildEnvelope(input)
	if err != nil {
		return Envelope{}, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	subject := Subject(p.prefix, env.Saga, env.EventType)

	attempt := 0
	err = retry.Do(ctx, p.retry.backoff(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			p.telemetry.RecordEventRetry()
		}
		if err := p.transport.Publish(ctx, subject, body); err != nil {
			p.onPublishOutage(err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		p.telemetry.RecordEventPublish(env.EventType, "failed")
		p.log.WarnContext(ctx, "event publish failed",
			"subject", subject,
			logger.UIDKey, env.UID,
			"attempts", attempt,
			"error", err,
		)
		return Envelope{}, fmt.Errorf("events: publish failed: %w", err)
	}

	p.onPublishRecovered()
	p.telemetry.RecordEventPublish(env.EventType, "success")
	p.log.DebugContext(ctx, "event published", "subject", subject, logger.UIDKey, env.UID, "sequence", env.Sequence)
	if env.EventType != EventCommitted {
		p.forget(env.UID)
	}
	return env, nil
}

// Degraded reports whether the last publish attempt failed.
func (p *Publisher) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

// Close closes the transport.
func (p *Publisher) Close() error {
	return p.transport.Close()
}

func (p *Publisher) nextSequence(uid string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequences[uid]++
	return p.sequences[uid]
}

func (p *Publisher) forget(uid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sequences, uid)
}

func (p *Publisher) onPublishOutage(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.degraded {
		return
	}
	p.degraded = true
	p.telemetry.SetEventBusDegraded(true)
	p.log.Warn("event transport degraded", "error", err)
}

func (p *Publisher) onPublishRecovered() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.degraded {
		return
	}
	p.degraded = false
	p.telemetry.SetEventBusDegraded(false)
	p.log.Info("event transport recovered")
}

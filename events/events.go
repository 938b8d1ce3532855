// Package events publishes domain events for successful post and user
// mutations so other services can react without polling the gateway.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/natsclient"
)

// Event types
const (
	PostCreated = "post.created"
	PostUpdated = "post.updated"
	PostDeleted = "post.deleted"
	PostLiked   = "post.liked"
	PostUnliked = "post.unliked"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"
)

// Stream defaults
const (
	DefaultStream        = "POSTGRAPH_EVENTS"
	DefaultSubjectPrefix = "postgraph.events"
)

// Event is one domain event
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	ActorID    string            `json:"actor_id,omitempty"`
	SubjectID  string            `json:"subject_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]any    `json:"data,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// New creates an event with a fresh id and timestamp
func New(eventType, actorID, subjectID string, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ActorID:    actorID,
		SubjectID:  subjectID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder counts publish outcomes
type Recorder interface {
	RecordEventPublished(eventType string, ok bool)
}

// Config configures the JetStream publisher
type Config struct {
	// Stream name (default: POSTGRAPH_EVENTS)
	Stream string `json:"stream" yaml:"stream"`

	// SubjectPrefix; events go to <prefix>.<type> (default: postgraph.events)
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`

	// MaxAgeStr bounds event retention (default: "168h")
	MaxAgeStr string `json:"max_age" yaml:"max_age"`

	// Workers publishing in the background (default: 2)
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`

	// QueueSize bounds pending events; overflow is dropped (default: 256)
	QueueSize int `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
}

// Validate fills defaults
func (c *Config) Validate() error {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.MaxAgeStr == "" {
		c.MaxAgeStr = "168h"
	}
	if d, err := time.ParseDuration(c.MaxAgeStr); err != nil || d <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid max_age: %s", c.MaxAgeStr))
	}
	if c.Workers == 0 {
		c.Workers = 2
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	if c.Workers < 0 || c.QueueSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"workers and queue_size must be positive")
	}
	return nil
}

func (c *Config) maxAge() time.Duration {
	d, _ := time.ParseDuration(c.MaxAgeStr)
	return d
}

// StreamPublisher is the subset of natsclient.Client the publisher needs
type StreamPublisher interface {
	EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

var _ StreamPublisher = (*natsclient.Client)(nil)

// JetStreamPublisher publishes JSON events into a JetStream stream
type JetStreamPublisher struct {
	client   StreamPublisher
	prefix   string
	recorder Recorder
	logger   *slog.Logger
}

// NewJetStreamPublisher ensures the stream exists and returns a publisher.
// cfg must be validated; recorder may be nil.
func NewJetStreamPublisher(
	ctx context.Context, client StreamPublisher, cfg Config, recorder Recorder, logger *slog.Logger,
) (*JetStreamPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   cfg.maxAge(),
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "JetStreamPublisher", "New", "ensure events stream")
	}

	return &JetStreamPublisher{
		client:   client,
		prefix:   cfg.SubjectPrefix,
		recorder: recorder,
		logger:   logger.With("component", "events"),
	}, nil
}

// Subject returns the subject an event type is published on
func (p *JetStreamPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish implements Publisher
func (p *JetStreamPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		p.record(event.Type, false)
		return errors.WrapInvalid(err, "JetStreamPublisher", "Publish", "encode event")
	}

	if err := p.client.PublishToStream(ctx, p.Subject(event.Type), data); err != nil {
		p.record(event.Type, false)
		return err
	}

	p.record(event.Type, true)
	p.logger.Debug("Published event", "type", event.Type, "id", event.ID, "subject_id", event.SubjectID)
	return nil
}

func (p *JetStreamPublisher) record(eventType string, ok bool) {
	if p.recorder != nil {
		p.recorder.RecordEventPublished(eventType, ok)
	}
}

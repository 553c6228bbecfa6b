package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the authentication flows.
const (
	TypeSignin = "user.signin"
	TypeSignup = "user.signup"
)

// DefaultChannel is the broker channel auth events are published to.
const DefaultChannel = "auth.events"

// Event is an authentication activity record published to the broker.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

// Backend defines the broker-agnostic publish operations.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Publisher serializes auth events and hands them to a backend.
type Publisher struct {
	backend Backend
	channel string
}

// NewPublisher constructs a Publisher for the provided backend.
func NewPublisher(backend Backend) *Publisher {
	return &Publisher{backend: backend, channel: DefaultChannel}
}

// Publish sends one event. The event ID is assigned here.
func (p *Publisher) Publish(ctx context.Context, eventType, username string) error {
	event := Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Username: username,
		At:       time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.backend.Publish(ctx, p.channel, data, map[string]string{"type": eventType})
	return err
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	return p.backend.Close()
}

// NoopBackend drops every event. Used when no broker is configured.
type NoopBackend struct{}

func (NoopBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return "", nil
}

func (NoopBackend) Close() error { return nil }

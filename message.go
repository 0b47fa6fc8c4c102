package tq

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattbonnell/tq/internal"
)

// Route selects the relation an operation targets.
type Route string

const (
	RouteQueue      Route = "queue"
	RouteDeadletter Route = "deadletter"
)

// table panics on an unknown route: passing one is a programming error.
func (r Route) table() string {
	switch r {
	case RouteQueue:
		return internal.QueueTable
	case RouteDeadletter:
		return internal.DeadletterTable
	default:
		panic(fmt.Sprintf("route '%s' not supported", string(r)))
	}
}

// Message is the unit moved between producers, the store and consumers.
// The queue never interprets Task or Payload.
type Message struct {
	ID      uuid.UUID
	Task    string
	Payload json.RawMessage
	Retries int
	// ETA is the earliest time Get may return the message. Nil means now.
	ETA *time.Time
}

type MessageOption func(*Message)

func WithRetries(n int) MessageOption {
	return func(m *Message) {
		m.Retries = n
	}
}

func WithETA(t time.Time) MessageOption {
	return func(m *Message) {
		eta := t
		m.ETA = &eta
	}
}

// WithDelay sets the ETA to d from the current wall clock.
func WithDelay(d time.Duration) MessageOption {
	return WithETA(time.Now().Add(d))
}

// NewMessage serializes payload as JSON and builds a message around it.
func NewMessage(id uuid.UUID, task string, payload any, opts ...MessageOption) (Message, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("error encoding payload: %w", err)
	}
	m := Message{ID: id, Task: task, Payload: p}
	for _, opt := range opts {
		opt(&m)
	}
	return m, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("error decoding payload of message %s: %w", m.ID, err)
	}
	return nil
}

func (m Message) toRow(enqueued time.Time) internal.Row {
	r := internal.Row{
		ID:       m.ID.String(),
		Task:     m.Task,
		Enqueued: enqueued.UnixMilli(),
		Blob:     string(m.Payload),
		Retries:  m.Retries,
	}
	if len(m.Payload) == 0 {
		r.Blob = "null"
	}
	if m.ETA != nil {
		r.ETA = sql.NullInt64{Int64: m.ETA.UnixMilli(), Valid: true}
	}
	return r
}

func fromRow(r internal.Row) (Message, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Message{}, fmt.Errorf("error parsing message id '%s': %w", r.ID, err)
	}
	m := Message{
		ID:      id,
		Task:    r.Task,
		Payload: json.RawMessage(r.Blob),
		Retries: r.Retries,
	}
	if r.ETA.Valid {
		eta := time.UnixMilli(r.ETA.Int64).UTC()
		m.ETA = &eta
	}
	return m, nil
}

// Package events publishes punch.recorded events after a punch is stored.
// Publishing is fire-and-forget: failures are logged and never reach the kiosk.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"punchclock/internal/platform/kafka"
	"punchclock/internal/punch/models"
	id "punchclock/pkg/domain"
)

const TypePunchRecorded = "punch.recorded"

// PunchRecorded is the event payload.
type PunchRecorded struct {
	EventType      string                `json:"event_type"`
	PunchID        id.PunchID            `json:"punch_id"`
	EmployeeID     id.EmployeeID         `json:"employee_id"`
	EmployeeName   string                `json:"employee_name"`
	Date           string                `json:"date"`
	PunchType      models.Type           `json:"punch_type"`
	At             time.Time             `json:"time"`
	Classification models.Classification `json:"classification,omitempty"`
	DeltaMinutes   *int                  `json:"delta_minutes,omitempty"`
	Source         models.Source         `json:"source"`
	Device         string                `json:"device,omitempty"`
	RequestID      string                `json:"request_id,omitempty"`
}

// NewPunchRecorded builds the event for a stored punch.
func NewPunchRecorded(p models.Punch, employeeName, requestID string) PunchRecorded {
	ev := PunchRecorded{
		EventType:    TypePunchRecorded,
		PunchID:      p.ID,
		EmployeeID:   p.EmployeeID,
		EmployeeName: employeeName,
		Date:         p.Date.Format(time.DateOnly),
		PunchType:    p.Type,
		At:           p.At,
		Source:       p.Source,
		Device:       p.Device,
		RequestID:    requestID,
	}
	if p.Validation.Checked {
		delta := p.Validation.DeltaMinutes
		ev.Classification = p.Validation.Classification
		ev.DeltaMinutes = &delta
	}
	return ev
}

// Producer is the subset of the kafka producer used here.
type Producer interface {
	Produce(ctx context.Context, msg kafka.Message, done kafka.DeliveryFunc)
}

// KafkaPublisher keys events by employee so one employee's punches stay ordered within a partition.
type KafkaPublisher struct {
	producer Producer
	logger   *slog.Logger
	onResult func(err error)
}

type Option func(*KafkaPublisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

// WithDeliveryHook is called once per event with the broker's verdict.
func WithDeliveryHook(fn func(err error)) Option {
	return func(p *KafkaPublisher) {
		p.onResult = fn
	}
}

func NewKafkaPublisher(producer Producer, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{producer: producer, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev PunchRecorded) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode punch event", "punch_id", ev.PunchID, "error", err)
		return
	}
	p.producer.Produce(ctx, kafka.Message{Key: []byte(ev.EmployeeID.String()), Value: value}, func(_ kafka.Message, err error) {
		if p.onResult != nil {
			p.onResult(err)
		}
	})
}

// NopPublisher drops events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, PunchRecorded) {}

package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manacity/address-service/internal/domain"
	pkgkafka "github.com/manacity/address-service/pkg/kafka"
)

// Kafka topic constants for address domain events.
const (
	TopicAddressCreated        = "manacity.address.created"
	TopicAddressUpdated        = "manacity.address.updated"
	TopicAddressDefaultChanged = "manacity.address.default_changed"
)

// Aggregate type constant.
const AggregateTypeAddress = "address"

// Source identifier for events originating from the address service.
const SourceAddressService = "address-service"

// Publisher is the subset of pkg/kafka.Producer the event producer needs.
// Satisfied by *pkgkafka.Producer in production and a fake in tests.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// AddressData is the payload for address.created and address.updated events.
type AddressData struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Label     string `json:"label"`
	City      string `json:"city"`
	State     string `json:"state"`
	Pincode   string `json:"pincode"`
	IsDefault bool   `json:"is_default"`
}

// DefaultChangedData is the payload for an address.default_changed event.
type DefaultChangedData struct {
	UserID    string `json:"user_id"`
	AddressID string `json:"address_id"`
}

// Producer publishes address domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the address service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishAddressCreated publishes an address.created event.
func (p *Producer) PublishAddressCreated(ctx context.Context, a *domain.Address) error {
	event, err := pkgkafka.NewEvent(TopicAddressCreated, a.ID, AggregateTypeAddress, SourceAddressService, addressData(a))
	if err != nil {
		return fmt.Errorf("create address.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAddressCreated, event); err != nil {
		return fmt.Errorf("publish address.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published address.created event",
		slog.String("address_id", a.ID),
		slog.String("user_id", a.UserID),
	)

	return nil
}

// PublishAddressUpdated publishes an address.updated event.
func (p *Producer) PublishAddressUpdated(ctx context.Context, a *domain.Address) error {
	event, err := pkgkafka.NewEvent(TopicAddressUpdated, a.ID, AggregateTypeAddress, SourceAddressService, addressData(a))
	if err != nil {
		return fmt.Errorf("create address.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAddressUpdated, event); err != nil {
		return fmt.Errorf("publish address.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published address.updated event",
		slog.String("address_id", a.ID),
		slog.String("user_id", a.UserID),
	)

	return nil
}

// PublishDefaultChanged publishes an address.default_changed event.
func (p *Producer) PublishDefaultChanged(ctx context.Context, userID, addressID string) error {
	data := DefaultChangedData{
		UserID:    userID,
		AddressID: addressID,
	}

	event, err := pkgkafka.NewEvent(TopicAddressDefaultChanged, addressID, AggregateTypeAddress, SourceAddressService, data)
	if err != nil {
		return fmt.Errorf("create address.default_changed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAddressDefaultChanged, event); err != nil {
		return fmt.Errorf("publish address.default_changed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published address.default_changed event",
		slog.String("address_id", addressID),
		slog.String("user_id", userID),
	)

	return nil
}

func addressData(a *domain.Address) AddressData {
	return AddressData{
		ID:        a.ID,
		UserID:    a.UserID,
		Label:     a.Label,
		City:      a.City,
		State:     a.State,
		Pincode:   a.Pincode,
		IsDefault: a.IsDefault,
	}
}

package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glamly/auth-service/internal/domain"
	pkgkafka "github.com/glamly/auth-service/pkg/kafka"
)

// Kafka topic constants for auth domain events.
const (
	TopicUserRegistered = "glamly.user.registered"
	TopicUserLoggedIn   = "glamly.user.logged_in"
	TopicUserLoggedOut  = "glamly.user.logged_out"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from the auth service.
const SourceAuthService = "auth-service"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Provider  string `json:"provider,omitempty"`
}

// UserLoggedInData is the payload for a user.logged_in event.
type UserLoggedInData struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Provider string `json:"provider,omitempty"`
}

// UserLoggedOutData is the payload for a user.logged_out event.
type UserLoggedOutData struct {
	ID string `json:"id"`
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event. provider is
// empty for password registrations.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User, providerName string) error {
	data := UserRegisteredData{
		ID:        user.ID.String(),
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role.String(),
		Provider:  providerName,
	}

	event, err := pkgkafka.NewEvent(TopicUserRegistered, user.ID.String(), AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create user.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserRegistered, event); err != nil {
		return fmt.Errorf("publish user.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.registered event",
		slog.String("user_id", user.ID.String()),
		slog.String("provider", providerName),
	)

	return nil
}

// PublishUserLoggedIn publishes a user.logged_in event.
func (p *Producer) PublishUserLoggedIn(ctx context.Context, user *domain.User, providerName string) error {
	data := UserLoggedInData{
		ID:       user.ID.String(),
		Email:    user.Email,
		Provider: providerName,
	}

	event, err := pkgkafka.NewEvent(TopicUserLoggedIn, user.ID.String(), AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create user.logged_in event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserLoggedIn, event); err != nil {
		return fmt.Errorf("publish user.logged_in event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.logged_in event",
		slog.String("user_id", user.ID.String()),
		slog.String("provider", providerName),
	)

	return nil
}

// PublishUserLoggedOut publishes a user.logged_out event.
func (p *Producer) PublishUserLoggedOut(ctx context.Context, userID string) error {
	data := UserLoggedOutData{ID: userID}

	event, err := pkgkafka.NewEvent(TopicUserLoggedOut, userID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create user.logged_out event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserLoggedOut, event); err != nil {
		return fmt.Errorf("publish user.logged_out event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.logged_out event",
		slog.String("user_id", userID),
	)

	return nil
}

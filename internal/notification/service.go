package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/orderflow/orderflow-go/internal/events"
	kafkax "github.com/orderflow/orderflow-go/internal/kafka"
	"github.com/orderflow/orderflow-go/internal/redisx"
)

// Mailer is the delivery channel; the default implementation only logs.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type LogMailer struct {
	Log zerolog.Logger
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.Log.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email sent")
	return nil
}

// Deduper guards against redelivery; the bus is at-least-once.
type Deduper interface {
	SeenAndMark(ctx context.Context, eventID string) (bool, error)
}

type RedisDeduper struct {
	Redis   *redis.Client
	Service string
}

func (d *RedisDeduper) SeenAndMark(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf(redisx.KeyDedup, d.Service, eventID)
	ok, err := d.Redis.SetNX(ctx, key, "1", redisx.TTLDedup).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type Service struct {
	Dedup  Deduper
	Mailer Mailer
	Log    zerolog.Logger
}

// HandleOrderEvent is installed as the consumer handler for both order
// topics.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, commit and move on
		s.Log.Error().Err(err).Str("topic", m.Topic).Msg("undecodable event")
		return nil
	}

	switch env.EventType {
	case events.EventOrderCreated, events.EventOrderCancelled:
	default:
		return nil
	}

	seen, err := s.Dedup.SeenAndMark(ctx, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		s.Log.Debug().Str("event_id", env.EventID).Msg("duplicate event skipped")
		return nil
	}

	switch env.EventType {
	case events.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Mailer.Send(ctx, p.UserID,
			fmt.Sprintf("Order %s confirmed", p.OrderID),
			orderBody("Thanks for your order! It contains:", p.Items))
	case events.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[events.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Mailer.Send(ctx, p.UserID,
			fmt.Sprintf("Order %s cancelled", p.OrderID),
			orderBody("Your order was cancelled. It contained:", p.Items))
	}
	return nil
}

func orderBody(lead string, items []events.OrderItemEvent) string {
	var b strings.Builder
	b.WriteString(lead)
	for _, it := range items {
		fmt.Fprintf(&b, "\n- %dx %s", it.Quantity, it.ProductName)
	}
	return b.String()
}

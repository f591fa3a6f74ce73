package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher is what the relay needs from the kafka producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafkago.Header) error
}

// Relay drains pending outbox rows into Kafka. A row is only marked sent
// after the broker acks, so a crash in between replays it; consumers dedup
// by event_id.
type Relay struct {
	Pool      *pgxpool.Pool
	Publisher Publisher
	Interval  time.Duration
	BatchSize int
	Log       zerolog.Logger
}

func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.drain(ctx, batch); err != nil {
				r.Log.Error().Err(err).Msg("outbox drain failed")
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context, batch int) error {
	recs, err := FetchPending(ctx, r.Pool, batch)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		err := r.Publisher.Publish(ctx, rec.Topic, []byte(rec.Key), rec.Payload,
			kafkago.Header{Key: "x-event-id", Value: []byte(rec.EventID)},
		)
		if err != nil {
			// leave the row pending, retry next tick
			r.Log.Warn().Err(err).Str("event_id", rec.EventID).Str("topic", rec.Topic).Msg("outbox publish failed")
			continue
		}
		if err := MarkSent(ctx, r.Pool, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

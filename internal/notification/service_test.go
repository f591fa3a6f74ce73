package notification

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/orderflow/orderflow-go/internal/events"
)

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDeduper) SeenAndMark(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[eventID] {
		return true, nil
	}
	d.seen[eventID] = true
	return false, nil
}

type sentMail struct {
	to, subject, body string
}

type memMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *memMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func newTestService() (*Service, *memMailer) {
	mailer := &memMailer{}
	svc := &Service{
		Dedup:  &memDeduper{seen: map[string]bool{}},
		Mailer: mailer,
		Log:    zerolog.Nop(),
	}
	return svc, mailer
}

func createdMessage(t *testing.T) kafkago.Message {
	t.Helper()
	env, err := events.NewEnvelope(events.EventOrderCreated, "orders-test", "ord-1", events.OrderCreatedPayload{
		OrderID: "ord-1",
		UserID:  "user-1",
		Items: []events.OrderItemEvent{
			{ProductID: "P1", ProductName: "Keyboard", Quantity: 2},
			{ProductID: "P2", ProductName: "Mouse", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return kafkago.Message{Topic: events.TopicOrderCreated, Key: []byte("ord-1"), Value: b}
}

func TestHandleOrderCreated(t *testing.T) {
	svc, mailer := newTestService()

	if err := svc.HandleOrderEvent(context.Background(), createdMessage(t)); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mailer.sent))
	}
	m := mailer.sent[0]
	if m.to != "user-1" {
		t.Errorf("to = %q", m.to)
	}
	if !strings.Contains(m.subject, "ord-1") || !strings.Contains(m.subject, "confirmed") {
		t.Errorf("subject = %q", m.subject)
	}
	if !strings.Contains(m.body, "2x Keyboard") || !strings.Contains(m.body, "1x Mouse") {
		t.Errorf("body = %q", m.body)
	}
}

func TestHandleOrderCancelled(t *testing.T) {
	svc, mailer := newTestService()

	env, err := events.NewEnvelope(events.EventOrderCancelled, "orders-test", "ord-2", events.OrderCancelledPayload{
		OrderID: "ord-2",
		UserID:  "user-9",
		Items:   []events.OrderItemEvent{{ProductID: "P1", ProductName: "Keyboard", Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(env)

	if err := svc.HandleOrderEvent(context.Background(), kafkago.Message{Topic: events.TopicOrderCancelled, Value: b}); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mailer.sent))
	}
	if !strings.Contains(mailer.sent[0].subject, "cancelled") {
		t.Errorf("subject = %q", mailer.sent[0].subject)
	}
}

func TestRedeliveredEventSendsOneMail(t *testing.T) {
	svc, mailer := newTestService()
	msg := createdMessage(t)

	for i := 0; i < 3; i++ {
		if err := svc.HandleOrderEvent(context.Background(), msg); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(mailer.sent) != 1 {
		t.Errorf("sent %d mails for one event, want 1", len(mailer.sent))
	}
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	svc, mailer := newTestService()

	env, err := events.NewEnvelope("OrderShipped", "orders-test", "ord-3", map[string]string{"order_id": "ord-3"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(env)
	if err := svc.HandleOrderEvent(context.Background(), kafkago.Message{Value: b}); err != nil {
		t.Fatalf("unknown type must be skipped, got %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("sent %d mails, want 0", len(mailer.sent))
	}
}

func TestPoisonMessageCommitted(t *testing.T) {
	svc, mailer := newTestService()

	if err := svc.HandleOrderEvent(context.Background(), kafkago.Message{Value: []byte("not json")}); err != nil {
		t.Fatalf("poison message must not error, got %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("sent %d mails, want 0", len(mailer.sent))
	}
}

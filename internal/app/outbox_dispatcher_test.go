package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/metrics"
	"github.com/nicolas-202/Proyecto-desarrollo-2/pkg/rabbitmq"
)

type publishedMessage struct {
	exchange   string
	routingKey string
	body       json.RawMessage
}

type publisherStub struct {
	published []publishedMessage
	err       error
	closed    int
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.err != nil {
		return p.err
	}
	raw, ok := body.(json.RawMessage)
	if !ok {
		return errors.New("expected raw json body")
	}
	p.published = append(p.published, publishedMessage{exchange: exchange, routingKey: routingKey, body: raw})
	return nil
}

func (p *publisherStub) Close() { p.closed++ }

func TestOutboxDispatcher_PublishesCommittedEvents(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("0")
	buyer := h.account("20")
	raffle := h.raffle(organizer, raffleParams{price: "10", prize: "10", minimum: 1})
	ticket := h.buy(buyer, raffle, 2)
	if _, err := h.svc.RefundTicket(h.ctx, buyer.UserID, ticket.ID); err != nil {
		t.Fatalf("expected refund to succeed, got %v", err)
	}

	publisher := &publisherStub{}
	factoryCalls := 0
	dispatcher := NewOutboxDispatcherWithFactory(h.repo, func() (rabbitmq.Publisher, error) {
		factoryCalls++
		return publisher, nil
	}, metrics.New(metrics.NewRegistry()))

	if err := dispatcher.FlushOnce(h.ctx); err != nil {
		t.Fatalf("expected flush to succeed, got %v", err)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("expected 2 events, got %d", len(publisher.published))
	}
	if publisher.published[0].routingKey != domain.EventTicketPurchased || publisher.published[1].routingKey != domain.EventTicketRefunded {
		t.Fatalf("expected purchase then refund events, got %+v", publisher.published)
	}
	if publisher.published[0].exchange != "raffle.events" {
		t.Fatalf("expected raffle.events exchange, got %q", publisher.published[0].exchange)
	}

	var event domain.TicketEvent
	if err := json.Unmarshal(publisher.published[0].body, &event); err != nil {
		t.Fatalf("expected a ticket event payload, got %v", err)
	}
	if event.TicketID != ticket.ID || event.Number != 2 {
		t.Fatalf("expected event for ticket %s number 2, got %+v", ticket.ID, event)
	}

	if err := dispatcher.FlushOnce(h.ctx); err != nil {
		t.Fatalf("expected second flush to succeed, got %v", err)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("expected published events not to be sent again, got %d", len(publisher.published))
	}
	if factoryCalls != 1 {
		t.Fatalf("expected the publisher to be reused, got %d connections", factoryCalls)
	}
}

func TestOutboxDispatcher_RetriesFailedPublish(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("0")
	buyer := h.account("20")
	raffle := h.raffle(organizer, raffleParams{price: "10", prize: "10", minimum: 1})
	h.buy(buyer, raffle, 1)

	publisher := &publisherStub{err: errors.New("channel closed")}
	dispatcher := NewOutboxDispatcherWithFactory(h.repo, func() (rabbitmq.Publisher, error) {
		return publisher, nil
	}, nil)

	if err := dispatcher.FlushOnce(h.ctx); err != nil {
		t.Fatalf("expected flush to record the failure, got %v", err)
	}
	if publisher.closed != 1 {
		t.Fatalf("expected the failed publisher to be closed, got %d", publisher.closed)
	}

	// The message is parked until its backoff elapses.
	messages, err := h.repo.ClaimOutboxMessages(h.ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("expected claim to succeed, got %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected failed message to wait for its retry, got %d", len(messages))
	}
}

func TestOutboxDispatcher_FactoryError(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("0")
	buyer := h.account("20")
	raffle := h.raffle(organizer, raffleParams{price: "10", prize: "10", minimum: 1})
	h.buy(buyer, raffle, 1)

	dispatcher := NewOutboxDispatcherWithFactory(h.repo, func() (rabbitmq.Publisher, error) {
		return nil, errors.New("dial tcp: connection refused")
	}, nil)
	if err := dispatcher.FlushOnce(h.ctx); err != nil {
		t.Fatalf("expected flush to swallow publish errors, got %v", err)
	}
	if dispatcher.publisher != nil {
		t.Fatalf("expected no publisher to be cached after a failed dial")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 3, want: 8 * time.Second},
		{attempt: 8, want: 256 * time.Second},
		{attempt: 20, want: 256 * time.Second},
	}

	for _, tt := range tests {
		if got := retryDelay(tt.attempt); got != tt.want {
			t.Fatalf("expected delay %s for attempt %d, got %s", tt.want, tt.attempt, got)
		}
	}
}

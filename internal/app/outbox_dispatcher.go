package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/metrics"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/store"
	"github.com/nicolas-202/Proyecto-desarrollo-2/pkg/rabbitmq"
)

const (
	defaultOutboxBatchSize    = 50
	defaultOutboxPollInterval = 2 * time.Second
	defaultStaleProcessing    = 2 * time.Minute
	maxRetryDelay             = 300 * time.Second
)

// OutboxStore is the outbox slice of the repository.
type OutboxStore interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfter time.Duration) ([]store.OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfter time.Duration, reason string) error
}

// PublisherFactory opens a new broker connection.
type PublisherFactory func() (rabbitmq.Publisher, error)

// OutboxDispatcher drains settlement events committed to the outbox and
// publishes them to RabbitMQ. Failed messages are retried with exponential
// backoff.
type OutboxDispatcher struct {
	repo                OutboxStore
	newPublisher        PublisherFactory
	metrics             *metrics.Metrics
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	publisher           rabbitmq.Publisher
}

func NewOutboxDispatcher(repo OutboxStore, rabbitURL string, m *metrics.Metrics) *OutboxDispatcher {
	return NewOutboxDispatcherWithFactory(repo, func() (rabbitmq.Publisher, error) {
		return rabbitmq.NewEventProducer(rabbitURL)
	}, m)
}

func NewOutboxDispatcherWithFactory(repo OutboxStore, factory PublisherFactory, m *metrics.Metrics) *OutboxDispatcher {
	return &OutboxDispatcher{
		repo:                repo,
		newPublisher:        factory,
		metrics:             m,
		batchSize:           defaultOutboxBatchSize,
		pollInterval:        defaultOutboxPollInterval,
		staleProcessingTime: defaultStaleProcessing,
	}
}

// Configure overrides the batch size and poll interval; zero values keep the defaults.
func (d *OutboxDispatcher) Configure(batchSize int, pollInterval time.Duration) {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	if pollInterval > 0 {
		d.pollInterval = pollInterval
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.closePublisher()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.FlushOnce(ctx); err != nil {
				log.Printf("level=warn component=outbox msg=\"flush failed\" err=%v", err)
			}
		}
	}
}

// FlushOnce claims one batch and tries to publish every message in it.
func (d *OutboxDispatcher) FlushOnce(ctx context.Context) error {
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, d.staleProcessingTime)
	if err != nil {
		return err
	}

	for _, message := range messages {
		err := d.publishMessage(ctx, message)
		d.metrics.ObserveOutboxPublish(err)
		if err != nil {
			retryAfter := retryDelay(message.Attempts)
			if markErr := d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				log.Printf("level=error component=outbox msg=\"failed to record publish failure\" id=%d err=%v", message.ID, markErr)
			}
			continue
		}
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			log.Printf("level=error component=outbox msg=\"failed to mark message published\" id=%d err=%v", message.ID, err)
		}
	}
	return nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	if d.publisher == nil {
		publisher, err := d.newPublisher()
		if err != nil {
			return err
		}
		d.publisher = publisher
	}

	if err := d.publisher.Publish(ctx, message.Exchange, message.RoutingKey, json.RawMessage(message.Payload)); err != nil {
		d.closePublisher()
		return err
	}
	return nil
}

func (d *OutboxDispatcher) closePublisher() {
	if d.publisher != nil {
		d.publisher.Close()
		d.publisher = nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		return time.Second
	}
	delay := time.Duration(1<<min(attempt, 8)) * time.Second
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

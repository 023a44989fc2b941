package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
	"golang.org/x/sync/errgroup"
)

const defaultExchange = "photovault.jobs"

// QueueName is the durable queue bound to one job name.
func QueueName(exchange string, name domain.JobName) string {
	return exchange + "." + string(name)
}

// RabbitMQQueue publishes jobs to a topic exchange with the job name as
// routing key. Every job name has its own durable queue.
type RabbitMQQueue struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	prefetch int

	// amqp channels must not be used for publishing from several goroutines at once.
	publishMu sync.Mutex
}

func NewRabbitMQQueue(url, exchange string, prefetch int) (*RabbitMQQueue, error) {
	if exchange == "" {
		exchange = defaultExchange
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	q := &RabbitMQQueue{conn: conn, channel: channel, exchange: exchange, prefetch: prefetch}
	if err := q.declare(); err != nil {
		_ = q.Close()
		return nil, err
	}
	return q, nil
}

func (q *RabbitMQQueue) declare() error {
	err := q.channel.ExchangeDeclare(
		q.exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", q.exchange, err)
	}

	for _, name := range domain.AllJobNames {
		queueName := QueueName(q.exchange, name)
		_, err := q.channel.QueueDeclare(
			queueName,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
		}
		if err := q.channel.QueueBind(queueName, string(name), q.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
		}
	}
	return nil
}

func (q *RabbitMQQueue) Queue(ctx context.Context, job domain.Job) error {
	if !isKnown(job.Name) {
		return fmt.Errorf("unknown job %q", job.Name)
	}
	q.publishMu.Lock()
	defer q.publishMu.Unlock()
	return q.channel.PublishWithContext(
		ctx,
		q.exchange,
		string(job.Name),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         string(job.Name),
			Body:         job.Data,
		},
	)
}

func (q *RabbitMQQueue) QueueAll(ctx context.Context, jobs []domain.Job) error {
	for _, job := range jobs {
		if err := q.Queue(ctx, job); err != nil {
			return fmt.Errorf("failed to publish %s: %w", job.Name, err)
		}
	}
	return nil
}

// Consume dispatches deliveries to registry handlers until ctx is cancelled.
// Success and skipped jobs are acked, failed jobs are dropped and errors are requeued.
func (q *RabbitMQQueue) Consume(ctx context.Context, registry *Registry, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range registry.Names() {
		ch, err := q.conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open consumer channel for %s: %w", name, err)
		}
		if err := ch.Qos(q.prefetch*concurrency, 0, false); err != nil {
			_ = ch.Close()
			return fmt.Errorf("failed to set qos for %s: %w", name, err)
		}
		msgs, err := ch.Consume(
			QueueName(q.exchange, name),
			"",
			false, // manual ack
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			_ = ch.Close()
			return fmt.Errorf("failed to register consumer for %s: %w", name, err)
		}
		logger.CtxInfo(ctx, "[Queue] Listening for %s jobs on %s", name, QueueName(q.exchange, name))

		for i := 0; i < concurrency; i++ {
			g.Go(func() error {
				q.consumeLoop(gctx, registry, name, msgs)
				return nil
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			return ch.Close()
		})
	}
	return g.Wait()
}

func (q *RabbitMQQueue) consumeLoop(ctx context.Context, registry *Registry, name domain.JobName, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.CtxWarn(ctx, "[Queue] Delivery channel for %s closed", name)
				return
			}
			q.handleDelivery(ctx, registry, msg)
		}
	}
}

func (q *RabbitMQQueue) handleDelivery(ctx context.Context, registry *Registry, msg amqp.Delivery) {
	job := domain.Job{Name: domain.JobName(msg.RoutingKey), Data: msg.Body}
	status, err := Dispatch(ctx, registry, job)
	if err := settle(msg, status, err); err != nil {
		logger.FromContext(ctx).WithError(err).
			WithField(logger.FieldJobName, job.Name).
			Error("Failed to settle delivery")
	}
}

// settle acks finished jobs. Errored jobs go back to the queue once; failed
// ones are dropped.
func settle(msg amqp.Delivery, status domain.JobStatus, jobErr error) error {
	switch {
	case jobErr != nil:
		if err := msg.Nack(false, !msg.Redelivered); err != nil {
			return fmt.Errorf("nack delivery %d: %w", msg.DeliveryTag, err)
		}
	case status == domain.JobStatusFailed:
		if err := msg.Nack(false, false); err != nil {
			return fmt.Errorf("nack delivery %d: %w", msg.DeliveryTag, err)
		}
	default:
		if err := msg.Ack(false); err != nil {
			return fmt.Errorf("ack delivery %d: %w", msg.DeliveryTag, err)
		}
	}
	return nil
}

func (q *RabbitMQQueue) Close() error {
	var firstErr error
	if q.channel != nil {
		if err := q.channel.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if q.conn != nil && !q.conn.IsClosed() {
		if err := q.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

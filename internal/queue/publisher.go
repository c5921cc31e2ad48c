package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	RoutingKeyAnalysis = "video.analysis"
	RoutingKeyStatus   = "video.status"
)

// Publisher owns one channel for outbound messages.
type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

// NewPublisher opens a channel on an existing connection.
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

// PublishAnalysisRequest enqueues a pipeline invocation.
func (p *Publisher) PublishAnalysisRequest(ctx context.Context, msg []byte) error {
	return p.publish(ctx, p.exchange, RoutingKeyAnalysis, msg, nil)
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, msg []byte, headers amqp.Table) error {
	return p.channel.PublishWithContext(ctx,
		exchange,
		key,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
		},
	)
}

// StatusPublisher emits job status updates for downstream consumers.
type StatusPublisher struct {
	pub *Publisher
}

func NewStatusPublisher(pub *Publisher) *StatusPublisher {
	return &StatusPublisher{pub: pub}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.pub.publish(ctx, sp.pub.exchange, RoutingKeyStatus, msg, nil)
}

// DLQPublisher parks permanently failed messages, tagged with the
// failure reason.
type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.publish(ctx, "", dp.queue, msg, amqp.Table{
		"x-dlq-reason": reason,
	})
}

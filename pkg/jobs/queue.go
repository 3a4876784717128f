package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
)

// Message is the queued pointer to a job.
type Message struct {
	JobID   string `json:"jobId"`
	GroupID string `json:"groupId"`
	Attempt int    `json:"attempt"`
}

// Handler processes one message. A nil return acks it.
type Handler func(ctx context.Context, msg Message) error

// Queue carries job messages between the coordinator and workers.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	Receive(ctx context.Context, handle Handler) error
}

// Encode serializes msg for the wire.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a wire message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, pipeerrors.Malformed("decode job message: %v", err)
	}
	if msg.JobID == "" {
		return Message{}, pipeerrors.Malformed("job message has no jobId")
	}
	return msg, nil
}

// PubSubClient is the subset of gcp.Client used by PubSubQueue.
type PubSubClient interface {
	PublishMessage(ctx context.Context, topic string, data []byte, attributes map[string]string) error
	SubscribeToTopic(ctx context.Context, subscription string, maxOutstanding int, callback func(ctx context.Context, msg *pubsub.Message)) error
}

// PubSubQueue is a Queue over a Pub/Sub topic and subscription.
type PubSubQueue struct {
	client         PubSubClient
	topic          string
	subscription   string
	maxOutstanding int
	log            logger.Logger
}

// NewPubSubQueue creates a queue. maxOutstanding bounds in-flight messages
// per worker.
func NewPubSubQueue(client PubSubClient, topic, subscription string, maxOutstanding int, log logger.Logger) *PubSubQueue {
	if maxOutstanding < 1 {
		maxOutstanding = 1
	}
	return &PubSubQueue{client: client, topic: topic, subscription: subscription, maxOutstanding: maxOutstanding, log: log}
}

func (q *PubSubQueue) Enqueue(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("encode job message: %w", err)
	}
	attrs := map[string]string{
		"job_id":  msg.JobID,
		"attempt": strconv.Itoa(msg.Attempt),
	}
	if err := q.client.PublishMessage(ctx, q.topic, data, attrs); err != nil {
		return pipeerrors.FromGoogleAPI(err, "pubsub publish")
	}
	return nil
}

// Receive blocks until ctx is done. Messages that fail to decode are acked
// and dropped; handler errors nack for redelivery.
func (q *PubSubQueue) Receive(ctx context.Context, handle Handler) error {
	return q.client.SubscribeToTopic(ctx, q.subscription, q.maxOutstanding, func(ctx context.Context, m *pubsub.Message) {
		msg, err := Decode(m.Data)
		if err != nil {
			q.log.Error("Dropping undecodable job message", logger.String("message_id", m.ID), logger.Error(err))
			m.Ack()
			return
		}
		if err := handle(ctx, msg); err != nil {
			q.log.Warn("Job message handler failed", logger.String("job_id", msg.JobID), logger.Error(err))
			m.Nack()
			return
		}
		m.Ack()
	})
}

// MemoryQueue is an in-process Queue for local runs and tests.
type MemoryQueue struct {
	ch chan Message
}

// NewMemoryQueue creates a queue buffering up to size messages.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan Message, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive handles messages until ctx is done or the queue drains. A handler
// error is returned after the remaining messages are left in the queue.
func (q *MemoryQueue) Receive(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q.ch:
			if err := handle(ctx, msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// Len returns the number of buffered messages.
func (q *MemoryQueue) Len() int { return len(q.ch) }

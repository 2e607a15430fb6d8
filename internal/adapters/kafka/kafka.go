package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"chat-relay/internal/models"
	"chat-relay/pkg/logger"

	"github.com/IBM/sarama"
)

const EventMessageCreated = "message.created"

// ErrQueueFull is returned when the producer cannot take another record
// without blocking.
var ErrQueueFull = errors.New("kafka producer queue full")

// InitKafkaProducer builds an async producer. Network round trips are
// bounded by timeout.
func InitKafkaProducer(brokers []string, clientID string, timeout time.Duration) (sarama.AsyncProducer, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner // same room, same partition
	config.Producer.Timeout = timeout
	config.Net.DialTimeout = timeout
	config.Net.ReadTimeout = timeout
	config.Net.WriteTimeout = timeout
	config.Metadata.Timeout = timeout
	config.Version = sarama.V2_0_0_0
	config.ClientID = clientID
	config.Producer.MaxMessageBytes = 1000000

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return producer, nil
}

// MessageEvent is the payload of a message.created record.
type MessageEvent struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Room       string    `json:"room"`
	Text       string    `json:"text"`
	InsertedAt time.Time `json:"inserted_at"`
}

// MessagePublisher emits one record per stored message, keyed by room.
// Publishing only enqueues; delivery errors are logged from a background
// goroutine.
type MessagePublisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *logger.Logger
	failed   int64
	done     chan struct{}
}

func NewMessagePublisher(producer sarama.AsyncProducer, topic string, log *logger.Logger) *MessagePublisher {
	if log == nil {
		log = logger.NewNop()
	}
	p := &MessagePublisher{
		producer: producer,
		topic:    topic,
		logger:   log,
		done:     make(chan struct{}),
	}
	go p.drainErrors()
	return p
}

func (p *MessagePublisher) drainErrors() {
	defer close(p.done)
	for perr := range p.producer.Errors() {
		atomic.AddInt64(&p.failed, 1)
		p.logger.Warn("Failed to deliver Kafka record", "topic", p.topic, "error", perr.Err)
	}
}

// PublishMessageCreated never blocks: a full producer queue is reported as
// ErrQueueFull.
func (p *MessagePublisher) PublishMessageCreated(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(MessageEvent{
		Type:       EventMessageCreated,
		ID:         msg.ID,
		Sender:     msg.Sender,
		Room:       msg.Room,
		Text:       msg.Text,
		InsertedAt: msg.InsertedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	record := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.Room),
		Value: sarama.ByteEncoder(value),
	}
	select {
	case p.producer.Input() <- record:
		return nil
	default:
		return fmt.Errorf("failed to publish %s: %w", EventMessageCreated, ErrQueueFull)
	}
}

// Failed is the number of records the producer gave up on.
func (p *MessagePublisher) Failed() int64 {
	return atomic.LoadInt64(&p.failed)
}

// Close flushes buffered records and waits for the error drain to finish.
func (p *MessagePublisher) Close() error {
	p.producer.AsyncClose()
	<-p.done
	return nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"spacomments/internal/models"
)

const EventCommentCreated = "comment.created"

// CommentEvent is the JSON message published after a comment is stored.
type CommentEvent struct {
	Type      string    `json:"type"`
	CommentID uint      `json:"comment_id"`
	ParentID  *uint     `json:"parent_id,omitempty"`
	AuthorID  uint      `json:"author_id"`
	Username  string    `json:"username"`
	HasFile   bool      `json:"has_file"`
	CreatedAt time.Time `json:"created_at"`
}

func newCommentCreatedEvent(c *models.Comment) CommentEvent {
	return CommentEvent{
		Type:      EventCommentCreated,
		CommentID: c.ID,
		ParentID:  c.ParentID,
		AuthorID:  c.AuthorID,
		Username:  c.Author.Username,
		HasFile:   c.File != nil,
		CreatedAt: c.CreatedAt,
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, event CommentEvent) error
}

// NoopPublisher drops every event; used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, CommentEvent) error { return nil }

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish keys a reply by its parent id and a top-level comment by its own id,
// so answers share a partition with the comment they answer.
func (p *KafkaPublisher) Publish(ctx context.Context, event CommentEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := event.CommentID
	if event.ParentID != nil {
		key = *event.ParentID
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(key), 10)),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event to kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if c, ok := p.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/content-platform/rating-service/internal/domain"
	"github.com/content-platform/rating-service/internal/platform/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("rating-service/nats")

// Subjects for rating lifecycle events.
const (
	SubjectRatingCreated = "rating.created"
	SubjectRatingDeleted = "rating.deleted"
)

// RatingEvent is the wire payload published on rating creation and
// deletion. It carries the owning node ID so consumers can act even after
// the rating record itself is gone.
type RatingEvent struct {
	EventID    string    `json:"event_id"`
	RatingID   string    `json:"rating_id"`
	NodeID     string    `json:"node_id"`
	Score      int32     `json:"score,omitempty"`
	RaterID    string    `json:"rater_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewRatingEvent builds an event with a fresh event ID and timestamp.
func NewRatingEvent(ratingID, nodeID string, score int32, raterID string) RatingEvent {
	return RatingEvent{
		EventID:    uuid.NewString(),
		RatingID:   ratingID,
		NodeID:     nodeID,
		Score:      score,
		RaterID:    raterID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher publishes rating events to NATS.
type Publisher struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// NewPublisher connects to NATS and returns a Publisher.
func NewPublisher(url string, log *logger.Logger, appName string) (*Publisher, error) {
	log.Info("NATS Publisher: connecting...", zap.String("url", url))

	conn, err := Connect(url, log, fmt.Sprintf("%s NATS Publisher", appName))
	if err != nil {
		log.Error("NATS Publisher: failed to connect", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	log.Info("NATS Publisher: successfully connected", zap.String("url", conn.ConnectedUrl()))

	return &Publisher{
		conn:   conn,
		logger: log.Named("NATSPublisher"),
	}, nil
}

// Connect dials NATS with the shared connection options used by both the
// publisher and the subscriber.
func Connect(url string, log *logger.Logger, name string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(10 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				log.Error("NATS error", zap.String("subject", sub.Subject), zap.Error(err))
			} else {
				log.Error("NATS error", zap.Error(err))
			}
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}

// Publish marshals the event and publishes it on the given subject with
// the current trace context injected into the message headers.
func (p *Publisher) Publish(ctx context.Context, subject string, event RatingEvent) error {
	_, span := tracer.Start(ctx, fmt.Sprintf("NATS.Publish.%s", subject))
	defer span.End()

	p.logger.Debug("NATS Publisher: publishing message", zap.String("subject", subject), zap.String("event_id", event.EventID))

	jsonData, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("NATS Publisher: failed to marshal event", zap.String("subject", subject), zap.Error(err))
		span.RecordError(err)
		return fmt.Errorf("failed to marshal event for subject %s: %w", subject, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = jsonData
	msg.Header = make(nats.Header)

	propagator := otel.GetTextMapPropagator()
	propagator.Inject(ctx, NATSHeaderCarrier(msg.Header))

	if err := p.conn.PublishMsg(msg); err != nil {
		p.logger.Error("NATS Publisher: failed to publish message", zap.String("subject", subject), zap.Error(err))
		span.RecordError(err)
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}

	p.logger.Info("NATS Publisher: message published", zap.String("subject", subject), zap.String("event_id", event.EventID))
	return nil
}

// PublishRatingCreated publishes a rating.created event for a new rating.
func (p *Publisher) PublishRatingCreated(ctx context.Context, rating *domain.Rating) error {
	event := NewRatingEvent(rating.ID.Hex(), rating.NodeID.Hex(), rating.Score, rating.RaterID)
	return p.Publish(ctx, SubjectRatingCreated, event)
}

// PublishRatingDeleted publishes a rating.deleted event. The ref is
// captured before the record is removed from the store.
func (p *Publisher) PublishRatingDeleted(ctx context.Context, ref domain.RatingRef, raterID string) error {
	event := NewRatingEvent(ref.RatingID.Hex(), ref.NodeID.Hex(), 0, raterID)
	return p.Publish(ctx, SubjectRatingDeleted, event)
}

// NATSHeaderCarrier adapts nats.Header to the OpenTelemetry TextMapCarrier
// interface for trace-context propagation.
type NATSHeaderCarrier nats.Header

func (c NATSHeaderCarrier) Get(key string) string {
	return nats.Header(c).Get(key)
}

func (c NATSHeaderCarrier) Set(key string, value string) {
	nats.Header(c).Set(key, value)
}

func (c NATSHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	p.logger.Info("NATS Publisher: closing connection...")
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Drain(); err != nil {
			p.logger.Error("NATS Publisher: failed to drain connection", zap.Error(err))
		}
		p.conn.Close()
		p.logger.Info("NATS Publisher: connection closed.")
	}
}

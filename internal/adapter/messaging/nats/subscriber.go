package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/content-platform/rating-service/internal/domain"
	"github.com/content-platform/rating-service/internal/platform/logger"
	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const subscriberQueueGroup = "rating-aggregators"

// Subscriber is the asynchronous binding of the rating behavior: it
// consumes rating.created and rating.deleted events and invokes the bound
// behavior for each. Messages are queue-subscribed so only one instance of
// the service processes a given event.
//
// Handler errors are logged, not retried. The behavior recomputes the full
// aggregate from the store on every call, so the next event for the same
// node repairs anything a dropped notification left behind.
type Subscriber struct {
	conn     *nats.Conn
	behavior domain.RatingBehavior
	logger   *logger.Logger
	subs     []*nats.Subscription
}

// NewSubscriber connects to NATS and returns a Subscriber bound to the
// given behavior.
func NewSubscriber(url string, behavior domain.RatingBehavior, log *logger.Logger, appName string) (*Subscriber, error) {
	conn, err := Connect(url, log, fmt.Sprintf("%s NATS Subscriber", appName))
	if err != nil {
		log.Error("NATS Subscriber: failed to connect", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	log.Info("NATS Subscriber: successfully connected", zap.String("url", conn.ConnectedUrl()))

	return &Subscriber{
		conn:     conn,
		behavior: behavior,
		logger:   log.Named("NATSSubscriber"),
	}, nil
}

// Start subscribes to the rating event subjects. It returns once the
// subscriptions are registered; message handling runs on NATS goroutines.
func (s *Subscriber) Start() error {
	created, err := s.conn.QueueSubscribe(SubjectRatingCreated, subscriberQueueGroup, func(msg *nats.Msg) {
		s.handle(msg, s.behavior.OnRatingCreated)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectRatingCreated, err)
	}
	s.subs = append(s.subs, created)

	deleted, err := s.conn.QueueSubscribe(SubjectRatingDeleted, subscriberQueueGroup, func(msg *nats.Msg) {
		s.handle(msg, s.behavior.OnRatingDeleted)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectRatingDeleted, err)
	}
	s.subs = append(s.subs, deleted)

	s.logger.Info("NATS Subscriber: subscribed",
		zap.Strings("subjects", []string{SubjectRatingCreated, SubjectRatingDeleted}),
		zap.String("queue_group", subscriberQueueGroup))
	return nil
}

func (s *Subscriber) handle(msg *nats.Msg, trigger func(context.Context, domain.RatingRef) error) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(context.Background(), NATSHeaderCarrier(msg.Header))

	ctx, span := tracer.Start(ctx, fmt.Sprintf("NATS.Consume.%s", msg.Subject))
	defer span.End()

	var event RatingEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.Error("NATS Subscriber: failed to decode event", zap.String("subject", msg.Subject), zap.Error(err))
		span.RecordError(err)
		return
	}

	ref, err := event.Ref()
	if err != nil {
		s.logger.Error("NATS Subscriber: event carries invalid IDs",
			zap.String("subject", msg.Subject),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		span.RecordError(err)
		return
	}

	if err := trigger(ctx, ref); err != nil {
		s.logger.Error("NATS Subscriber: behavior invocation failed",
			zap.String("subject", msg.Subject),
			zap.String("event_id", event.EventID),
			zap.String("node_id", event.NodeID),
			zap.Error(err))
		span.RecordError(err)
		return
	}

	s.logger.Debug("NATS Subscriber: event handled",
		zap.String("subject", msg.Subject),
		zap.String("event_id", event.EventID))
}

// Ref resolves the event's rating and node IDs into a domain.RatingRef.
func (e RatingEvent) Ref() (domain.RatingRef, error) {
	nodeID, err := primitive.ObjectIDFromHex(e.NodeID)
	if err != nil {
		return domain.RatingRef{}, fmt.Errorf("invalid node_id %q: %w", e.NodeID, err)
	}
	ratingID, err := primitive.ObjectIDFromHex(e.RatingID)
	if err != nil {
		return domain.RatingRef{}, fmt.Errorf("invalid rating_id %q: %w", e.RatingID, err)
	}
	return domain.RatingRef{RatingID: ratingID, NodeID: nodeID}, nil
}

// Close unsubscribes and drains the NATS connection.
func (s *Subscriber) Close() {
	s.logger.Info("NATS Subscriber: closing connection...")
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Error("NATS Subscriber: failed to unsubscribe", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	if s.conn != nil && !s.conn.IsClosed() {
		if err := s.conn.Drain(); err != nil {
			s.logger.Error("NATS Subscriber: failed to drain connection", zap.Error(err))
		}
		s.conn.Close()
		s.logger.Info("NATS Subscriber: connection closed.")
	}
}

package notifier

import (
	"context"
	"time"

	"github.com/velomarket/listing-engine/internal/platform/logger"
	"github.com/velomarket/listing-engine/internal/platform/metrics"
)

type Kind string

const (
	KindExpiringSoon      Kind = "expiring_soon"
	KindArchived          Kind = "archived"
	KindUnusedViews       Kind = "unused_views"
	KindViewTargetReached Kind = "view_target_reached"
	KindPromoted          Kind = "promoted"
	KindPromotionEnded    Kind = "promotion_ended"
	KindGraceEnding       Kind = "grace_ending"
)

type Notification struct {
	OwnerID   string    `json:"owner_id"`
	ListingID string    `json:"listing_id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

// Sink delivers a single notification over one transport.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// Notifier is what the engine services depend on.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Dispatcher fans a notification out to all configured sinks. Delivery is
// fire-and-forget: a sink failure is logged and dropped, never retried and
// never surfaced to the operation that triggered the notification.
type Dispatcher struct {
	sinks   []Sink
	log     logger.Logger
	metrics *metrics.Manager
}

func NewDispatcher(log logger.Logger, m *metrics.Manager, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, log: log, metrics: m}
}

func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}

	for _, sink := range d.sinks {
		if err := sink.Send(ctx, n); err != nil {
			d.log.Errorf("Failed to deliver %s notification for listing %s to owner %s: %v",
				n.Kind, n.ListingID, n.OwnerID, err)
			continue
		}
	}

	if d.metrics != nil {
		d.metrics.NotificationsTotal.WithLabelValues(string(n.Kind)).Inc()
	}
}

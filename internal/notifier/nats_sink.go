package notifier

import (
	"context"

	natsadapter "github.com/velomarket/listing-engine/internal/adapter/nats"
)

const notificationSubject = "listing.notification"

// natsSink publishes notifications as JSON on the shared notification
// subject; the push-delivery service downstream owns the actual transport
// to the user's device.
type natsSink struct {
	publisher natsadapter.MessagePublisher
}

func NewNATSSink(publisher natsadapter.MessagePublisher) Sink {
	return &natsSink{publisher: publisher}
}

func (s *natsSink) Send(ctx context.Context, n Notification) error {
	return s.publisher.Publish(ctx, notificationSubject, n)
}

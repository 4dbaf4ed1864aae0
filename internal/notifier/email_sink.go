package notifier

import (
	"context"
	"fmt"

	"github.com/velomarket/listing-engine/internal/adapter/email"
)

// emailSink mails an ops copy of selected notification kinds to a fixed
// mailbox. With no kind filter configured it forwards everything.
type emailSink struct {
	sender    email.EmailSender
	recipient string
	kinds     map[Kind]struct{}
}

func NewEmailSink(sender email.EmailSender, recipient string, kinds ...Kind) Sink {
	s := &emailSink{sender: sender, recipient: recipient}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}
	return s
}

func (s *emailSink) Send(ctx context.Context, n Notification) error {
	if s.kinds != nil {
		if _, ok := s.kinds[n.Kind]; !ok {
			return nil
		}
	}

	subject := fmt.Sprintf("[listing-engine] %s: %s", n.Kind, n.Title)
	body := fmt.Sprintf("listing: %s\nowner: %s\n\n%s", n.ListingID, n.OwnerID, n.Body)
	return s.sender.Send(ctx, []string{s.recipient}, subject, body)
}

// Package notify forwards selected market events to operator chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every sender. Only event types in the allow list are
// forwarded; an empty list forwards everything.
type Notifier struct {
	senders []Sender
	allow   map[string]struct{}
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allow := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allow[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		allow:   allow,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends the message when event passes the allow list. A failing sender
// does not stop delivery to the rest.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allowed(event) {
		return nil
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

// Allowed reports whether event would be forwarded.
func (n *Notifier) Allowed(event string) bool {
	if len(n.allow) == 0 {
		return true
	}
	_, ok := n.allow[event]
	return ok
}

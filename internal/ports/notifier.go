package ports

import "context"

// Notification is a state change pushed to observers of a match.
type Notification struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	MatchID string      `json:"match_id"`
	// Recipients limits delivery to these player ids; empty means everyone watching.
	Recipients []string `json:"-"`
}

// Notifier delivers notifications. Implementations must not block the caller
// on slow observers; delivery failures are theirs to log.
type Notifier interface {
	Publish(ctx context.Context, n Notification)
}

// BatchNotifier is implemented by notifiers that deliver all notifications of
// one transition together.
type BatchNotifier interface {
	PublishBatch(ctx context.Context, matchID string, ns []Notification)
}

// PublishAll hands ns to n, in one batch when n supports it.
func PublishAll(ctx context.Context, n Notifier, matchID string, ns []Notification) {
	if n == nil || len(ns) == 0 {
		return
	}
	if b, ok := n.(BatchNotifier); ok {
		b.PublishBatch(ctx, matchID, ns)
		return
	}
	for _, x := range ns {
		n.Publish(ctx, x)
	}
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Publish(ctx context.Context, n Notification) { f(ctx, n) }

// Fanout publishes to several notifiers in order.
type Fanout []Notifier

func (f Fanout) Publish(ctx context.Context, n Notification) {
	for _, nt := range f {
		if nt != nil {
			nt.Publish(ctx, n)
		}
	}
}

package ui

import (
	"context"
	"time"
)

// Delivery is one reply handed to the console.
type Delivery struct {
	Recipient string
	Text      string
	At        time.Time
}

// ChannelNotifier implements assistant.Notifier by handing replies to the
// console over a channel.
type ChannelNotifier struct {
	ch chan Delivery
}

// NewChannelNotifier creates a notifier with room for buffer undelivered
// replies.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	return &ChannelNotifier{ch: make(chan Delivery, buffer)}
}

// Send blocks until the console takes the reply or ctx is done.
func (n *ChannelNotifier) Send(ctx context.Context, recipient, text string) error {
	select {
	case n.ch <- Delivery{Recipient: recipient, Text: text, At: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliveries is the receive side read by the console.
func (n *ChannelNotifier) Deliveries() <-chan Delivery {
	return n.ch
}

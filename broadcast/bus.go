package broadcast

import (
	"context"
	"errors"
)

// Kind is the signal type.
type Kind string

const (
	// Renewed asks receivers to re-check storage.
	Renewed Kind = "renewed"
	// Logout asks receivers to end their local session.
	Logout Kind = "logout"
)

// Valid reports whether k is a known signal.
func (k Kind) Valid() bool {
	return k == Renewed || k == Logout
}

// Message is one signal.
type Message struct {
	Kind   Kind   `json:"kind"`
	Origin string `json:"origin"`
}

// ErrClosed is returned by a closed bus.
var ErrClosed = errors.New("broadcast: bus closed")

// Bus delivers messages to every subscriber, including the sender's own subscriptions.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe returns a channel of messages that is closed once ctx is done.
	Subscribe(ctx context.Context) (<-chan Message, error)
}

const subscriberBuffer = 16

func offer(ch chan<- Message, msg Message) bool {
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

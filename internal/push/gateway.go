package push

import (
	"context"
	"errors"
)

// ErrUnavailable is returned while the gateway circuit is open.
var ErrUnavailable = errors.New("push: gateway unavailable")

// ErrInvalidToken is returned when the gateway rejects the device token as
// unregistered. Callers should forget the token.
var ErrInvalidToken = errors.New("push: device token is not registered")

// Message is one push delivery to one device.
type Message struct {
	Token    string
	Platform string
	Title    string
	Body     string
	Data     map[string]string
}

// Gateway submits messages to a push provider and returns the provider's message id.
type Gateway interface {
	Send(ctx context.Context, msg Message) (string, error)
}

package hub

import "errors"

// ErrDelivery is returned when a payload cannot be handed to a connection,
// either because it is no longer live or because its send failed.
var ErrDelivery = errors.New("delivery failed")

// Conn is one live client transport as seen by the hub.
// Implementations must be safe to Send to from multiple goroutines.
type Conn interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

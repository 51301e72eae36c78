package node

import (
	"errors"
	"fmt"
)

// ErrExchangeTimeout means a slave did not answer request_time within the exchange timeout.
var ErrExchangeTimeout = errors.New("exchange timed out")

// TransportError wraps a failure of the datagram transport.
type TransportError struct {
	Op      string // "send" or "receive"
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

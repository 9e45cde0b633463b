// Package device talks to a BBS-1 over a SysEx transport
package device

import (
	"context"
	"errors"
)

// Transport and session errors
var (
	ErrTimeout          = errors.New("timed out waiting for device")
	ErrDisconnected     = errors.New("device disconnected")
	ErrNotFound         = errors.New("device not found")
	ErrUnexpectedAnswer = errors.New("unexpected answer")
	ErrRejected         = errors.New("request rejected by device")
	ErrClosed           = errors.New("transport closed")
	ErrTooManyPages     = errors.New("too many tempo map pages")
)

// Transport sends and receives complete SysEx frames, F0 through F7.
// Receive blocks until a frame arrives or ctx is done, in which case it
// returns ctx.Err().
type Transport interface {
	Send(frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

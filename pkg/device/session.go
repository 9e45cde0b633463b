package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/james-see/bbs1ctl/pkg/sysex"
	"github.com/james-see/bbs1ctl/pkg/tempo"
	"go.uber.org/zap"
)

// Session defaults
const (
	DefaultTimeout  = 2 * time.Second
	DefaultMaxPages = 2048
)

// Info summarizes the device state
type Info struct {
	Connected bool   `json:"connected"`
	Mode      string `json:"mode"`
	Hardware  string `json:"hardware_version"`
	Firmware  string `json:"firmware_version"`
}

// Session runs request/response exchanges with one device. It owns its
// transport and is not safe for concurrent use: exactly one request is in
// flight at a time.
type Session struct {
	transport  Transport
	codec      *sysex.Codec
	logger     *zap.Logger
	timeout    time.Duration
	maxPages   int
	decodeOpts []tempo.DecodeOption

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithTimeout bounds the wait for each answer
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxPages bounds the number of pages read in one tempo map fetch
func WithMaxPages(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// WithPageOrderCheck makes fetches reject pages whose packet ids are out of
// order
func WithPageOrderCheck() Option {
	return func(s *Session) {
		s.decodeOpts = append(s.decodeOpts, tempo.WithPageOrderCheck())
	}
}

// NewSession creates a session owning transport
func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		logger:    zap.NewNop(),
		timeout:   DefaultTimeout,
		maxPages:  DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.codec = sysex.NewCodec(sysex.WithLogger(s.logger))
	s.decodeOpts = append(s.decodeOpts, tempo.WithLogger(s.logger))
	return s
}

// Close closes the transport. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.transport.Close()
		s.logger.Debug("session closed")
	})
	return s.closeErr
}

func (s *Session) send(frame []byte) error {
	s.logger.Debug("send", zap.Binary("frame", frame))
	if err := s.transport.Send(frame); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

// receive waits for the next frame that parses to a message. Frames with an
// unknown message type are dropped by the codec and do not end the wait.
func (s *Session) receive(ctx context.Context) (*sysex.Message, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for {
		raw, err := s.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
			}
			return nil, nil, err
		}
		s.logger.Debug("receive", zap.Binary("frame", raw))

		msg, err := s.codec.Parse(raw)
		if err != nil {
			return nil, nil, err
		}
		if msg != nil {
			return msg, raw, nil
		}
	}
}

func (s *Session) exchange(ctx context.Context, frame []byte) (*sysex.Message, error) {
	if err := s.send(frame); err != nil {
		return nil, err
	}
	msg, _, err := s.receive(ctx)
	return msg, err
}

// Present reports whether the device acknowledges a connection check
func (s *Session) Present(ctx context.Context) (bool, error) {
	msg, err := s.exchange(ctx, sysex.BuildRequestConnection())
	if err != nil {
		return false, err
	}
	if _, ok := msg.Payload.(sysex.Connected); ok {
		return true, nil
	}
	s.logger.Info("connection check not acknowledged", zap.Stringer("answer", msg))
	return false, nil
}

// Mode returns the device operating mode
func (s *Session) Mode(ctx context.Context) (sysex.Mode, error) {
	msg, err := s.exchange(ctx, sysex.BuildRequestMode())
	if err != nil {
		return sysex.ModeUnknown, err
	}
	answer, ok := msg.Payload.(sysex.ModeAnswer)
	if !ok {
		return sysex.ModeUnknown, fmt.Errorf("%w: %s to mode request", ErrUnexpectedAnswer, msg)
	}
	return answer.Mode, nil
}

// HardwareVersion returns the hardware version as x.xx.xx
func (s *Session) HardwareVersion(ctx context.Context) (string, error) {
	return s.version(ctx, sysex.BuildRequestHWVersion(), sysex.CmdHWVersion)
}

// FirmwareVersion returns the firmware version as x.xx.xx
func (s *Session) FirmwareVersion(ctx context.Context) (string, error) {
	return s.version(ctx, sysex.BuildRequestFWVersion(), sysex.CmdFWVersion)
}

func (s *Session) version(ctx context.Context, req []byte, want sysex.PayloadCommand) (string, error) {
	msg, err := s.exchange(ctx, req)
	if err != nil {
		return "", err
	}
	answer, ok := msg.Payload.(sysex.VersionAnswer)
	if !ok || answer.Cmd != want {
		return "", fmt.Errorf("%w: %s to %s request", ErrUnexpectedAnswer, msg, want)
	}
	return answer.Version, nil
}

// Info runs the connection check and, when connected, reads mode and
// versions
func (s *Session) Info(ctx context.Context) (*Info, error) {
	info := &Info{Mode: sysex.ModeUnknown.String()}

	present, err := s.Present(ctx)
	if err != nil {
		return nil, err
	}
	info.Connected = present
	if !present {
		return info, nil
	}

	mode, err := s.Mode(ctx)
	if err != nil {
		return nil, err
	}
	info.Mode = mode.String()

	if info.Hardware, err = s.HardwareVersion(ctx); err != nil {
		return nil, err
	}
	if info.Firmware, err = s.FirmwareVersion(ctx); err != nil {
		return nil, err
	}
	return info, nil
}

// FetchTempoMaps downloads and decodes every tempo map. It also returns the
// raw page frames in arrival order, suitable for WriteDump.
func (s *Session) FetchTempoMaps(ctx context.Context) (*tempo.File, [][]byte, error) {
	first, err := s.exchange(ctx, sysex.BuildRequestTempoMaps())
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug("tempo map transfer started", zap.Stringer("answer", first))

	var payloads []sysex.Payload
	var frames [][]byte
	for page := 0; ; page++ {
		if page >= s.maxPages {
			return nil, nil, fmt.Errorf("%w: no last page after %d", ErrTooManyPages, page)
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if err := s.send(sysex.BuildAckOK()); err != nil {
			return nil, nil, err
		}
		msg, raw, err := s.receive(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("page %d: %w", page, err)
		}

		if _, ok := msg.Payload.(sysex.PageData); !ok {
			s.logger.Warn("ignoring non-page answer", zap.Int("page", page), zap.Stringer("answer", msg))
			continue
		}
		payloads = append(payloads, msg.Payload)
		frames = append(frames, raw)

		if sysex.IsLastPage(msg) {
			break
		}
	}

	s.logger.Info("tempo maps received", zap.Int("pages", len(frames)))
	f, err := tempo.DecodePayloads(payloads, s.decodeOpts...)
	if err != nil {
		return nil, frames, err
	}
	return f, frames, nil
}

// DeleteTempoMaps erases every tempo map on the device
func (s *Session) DeleteTempoMaps(ctx context.Context) error {
	msg, err := s.exchange(ctx, sysex.BuildDeleteTempoMaps())
	if err != nil {
		return err
	}
	if msg.Type == sysex.TypeAckErr {
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	s.logger.Info("tempo maps deleted")
	return nil
}

package device

import (
	"context"
	"sync"

	"github.com/james-see/bbs1ctl/pkg/sysex"
	"github.com/james-see/bbs1ctl/pkg/tempo"
	"go.uber.org/zap"
)

// Simulator is an in-memory Transport that answers like a BBS-1 holding a
// tempo file
type Simulator struct {
	mu       sync.Mutex
	file     *tempo.File
	mode     sysex.Mode
	hardware [3]byte
	firmware [3]byte
	pageSize int
	noise    bool
	drop     int
	pending  [][]byte
	answers  chan []byte
	closed   bool
	logger   *zap.Logger
}

// SimOption configures a Simulator
type SimOption func(*Simulator)

// WithMode sets the reported operating mode
func WithMode(m sysex.Mode) SimOption {
	return func(s *Simulator) {
		s.mode = m
	}
}

// WithVersions sets the reported hardware and firmware versions
func WithVersions(hardware, firmware [3]byte) SimOption {
	return func(s *Simulator) {
		s.hardware = hardware
		s.firmware = firmware
	}
}

// WithPageSize sets the stream bytes per tempo map page
func WithPageSize(n int) SimOption {
	return func(s *Simulator) {
		s.pageSize = n
	}
}

// WithNoise makes the simulator emit a frame with an unknown message type
// ahead of every answer
func WithNoise() SimOption {
	return func(s *Simulator) {
		s.noise = true
	}
}

// WithSimLogger sets the simulator logger
func WithSimLogger(l *zap.Logger) SimOption {
	return func(s *Simulator) {
		s.logger = l
	}
}

// NewSimulator creates a simulator serving f. A nil f serves an empty file.
func NewSimulator(f *tempo.File, opts ...SimOption) *Simulator {
	if f == nil {
		f, _ = tempo.NewFile()
	}
	s := &Simulator{
		file:     f,
		mode:     sysex.ModeNormal,
		hardware: [3]byte{1, 0, 0},
		firmware: [3]byte{1, 2, 3},
		pageSize: tempo.DefaultPageSize,
		answers:  make(chan []byte, 256),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// File returns the tempo file currently held
func (s *Simulator) File() *tempo.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

// DropNext makes the simulator ignore the next n requests
func (s *Simulator) DropNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = n
}

// Send handles one request frame
func (s *Simulator) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.drop > 0 {
		s.drop--
		return nil
	}

	msg, err := sysex.Parse(frame)
	if err != nil || msg == nil {
		s.answer(sysex.BuildAnswer(sysex.TypeAckErr, 0, nil))
		return nil
	}

	if msg.Payload == nil {
		if msg.Type == sysex.TypeAckOK {
			s.nextPage()
		}
		return nil
	}

	switch p := msg.Payload.(type) {
	case sysex.Request:
		s.request(p.Cmd)
	case sysex.Delete:
		s.file, _ = tempo.NewFile()
		s.pending = nil
		s.answer(sysex.BuildAckOK())
	default:
		s.logger.Debug("simulator ignoring request", zap.Stringer("message", msg))
		s.answer(sysex.BuildAnswer(sysex.TypeAckErr, msg.Payload.Command(), nil))
	}
	return nil
}

func (s *Simulator) request(cmd sysex.PayloadCommand) {
	switch cmd {
	case sysex.CmdRequestConnection:
		s.answer(sysex.BuildConnectedAnswer())
	case sysex.CmdRequestMode:
		s.answer(sysex.BuildModeAnswer(s.mode))
	case sysex.CmdRequestHWVersion:
		s.answer(sysex.BuildVersionAnswer(sysex.CmdHWVersion, s.hardware[0], s.hardware[1], s.hardware[2]))
	case sysex.CmdRequestFWVersion:
		s.answer(sysex.BuildVersionAnswer(sysex.CmdFWVersion, s.firmware[0], s.firmware[1], s.firmware[2]))
	case sysex.CmdRequestTempoMaps:
		pages, err := s.file.Pages(s.pageSize)
		if err != nil {
			s.logger.Warn("simulator cannot encode tempo file", zap.Error(err))
			s.answer(sysex.BuildAnswer(sysex.TypeAckErr, cmd, nil))
			return
		}
		s.pending = pages
		s.answer(sysex.BuildAckOK())
	}
}

func (s *Simulator) nextPage() {
	if len(s.pending) == 0 {
		s.answer(sysex.BuildAnswer(sysex.TypeAckErr, 0, nil))
		return
	}
	page := s.pending[0]
	s.pending = s.pending[1:]
	s.answer(sysex.BuildAnswer(sysex.TypeData, sysex.CmdTempoMapPage, page))
}

func (s *Simulator) answer(frame []byte) {
	if s.noise {
		noise := sysex.BuildAckOK()
		noise[5] = 0x0F
		s.push(noise)
	}
	s.push(frame)
}

func (s *Simulator) push(frame []byte) {
	select {
	case s.answers <- frame:
	default:
		s.logger.Warn("simulator answer queue full")
	}
}

// Receive returns the next answer
func (s *Simulator) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.answers:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the simulator; later sends fail with ErrClosed
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// DemoFile returns a small tempo file for simulated sessions
func DemoFile() *tempo.File {
	mustBar := func(beats, value, repeats, bpm100 int) tempo.Bar {
		b, err := tempo.NewBar(beats, value, repeats, bpm100)
		if err != nil {
			panic(err)
		}
		return b
	}
	practice, _ := tempo.NewMap("Practice", true, 1, []tempo.Bar{
		mustBar(4, 4, 8, 8000),
		mustBar(4, 4, 8, 9000),
		mustBar(4, 4, 8, 10000),
	})
	song, _ := tempo.NewMap("Song", false, 2, []tempo.Bar{
		mustBar(4, 4, 16, 12400),
		mustBar(7, 8, 4, 12400),
		mustBar(4, 4, 0, 12400),
	})
	f, _ := tempo.NewFile(practice, song)
	return f
}

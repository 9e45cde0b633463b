package device

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/zap"
)

// DefaultPortPattern matches the BBS-1 USB MIDI port
const DefaultPortPattern = `BodyBeatSYNC MIDI 1`

const (
	sysExBufferSize = 4096
	frameQueueSize  = 64
)

// Port describes a MIDI port
type Port struct {
	Number    int    `json:"number"`
	Name      string `json:"name"`
	Direction string `json:"direction"`
}

// ListPorts lists the ports of the registered MIDI driver
func ListPorts() ([]Port, error) {
	ins, err := drivers.Ins()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI inputs: %w", err)
	}
	outs, err := drivers.Outs()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI outputs: %w", err)
	}

	ports := make([]Port, 0, len(ins)+len(outs))
	for _, in := range ins {
		ports = append(ports, Port{Number: in.Number(), Name: in.String(), Direction: "in"})
	}
	for _, out := range outs {
		ports = append(ports, Port{Number: out.Number(), Name: out.String(), Direction: "out"})
	}
	return ports, nil
}

// FindPorts returns the first input and output ports whose names match re
func FindPorts(re *regexp.Regexp) (drivers.In, drivers.Out, error) {
	ins, err := drivers.Ins()
	if err != nil {
		return nil, nil, fmt.Errorf("error listing MIDI inputs: %w", err)
	}
	var in drivers.In
	for _, p := range ins {
		if re.MatchString(p.String()) {
			in = p
			break
		}
	}
	if in == nil {
		return nil, nil, fmt.Errorf("%w: no input port matching %q", ErrNotFound, re)
	}

	outs, err := drivers.Outs()
	if err != nil {
		return nil, nil, fmt.Errorf("error listing MIDI outputs: %w", err)
	}
	var out drivers.Out
	for _, p := range outs {
		if re.MatchString(p.String()) {
			out = p
			break
		}
	}
	if out == nil {
		return nil, nil, fmt.Errorf("%w: no output port matching %q", ErrNotFound, re)
	}
	return in, out, nil
}

// MIDITransport carries frames over a pair of MIDI ports. The driver's
// listener goroutine queues complete SysEx frames; Receive takes them off
// the queue.
type MIDITransport struct {
	in     drivers.In
	out    drivers.Out
	stop   func()
	frames chan []byte
	errs   chan error
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// OpenMIDI finds the ports matching pattern, opens them and starts
// listening for SysEx
func OpenMIDI(pattern string, logger *zap.Logger) (*MIDITransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid port pattern: %w", err)
	}

	in, out, err := FindPorts(re)
	if err != nil {
		logger.Warn("BBS-1 ports not found", zap.String("pattern", pattern), zap.Error(err))
		return nil, err
	}
	return NewMIDITransport(in, out, logger)
}

// NewMIDITransport opens in and out and starts listening
func NewMIDITransport(in drivers.In, out drivers.Out, logger *zap.Logger) (*MIDITransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &MIDITransport{
		in:     in,
		out:    out,
		frames: make(chan []byte, frameQueueSize),
		errs:   make(chan error, 1),
		logger: logger,
	}

	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("error opening output %q: %w", out.String(), err)
	}
	if err := in.Open(); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("error opening input %q: %w", in.String(), err)
	}

	stop, err := midi.ListenTo(in, t.deliver,
		midi.UseSysEx(),
		midi.SysExBufferSize(sysExBufferSize),
		midi.HandleError(t.fail))
	if err != nil {
		_ = in.Close()
		_ = out.Close()
		return nil, fmt.Errorf("error listening on %q: %w", in.String(), err)
	}
	t.stop = stop

	logger.Info("MIDI ports opened",
		zap.String("in", in.String()),
		zap.String("out", out.String()))
	return t, nil
}

func (t *MIDITransport) deliver(msg midi.Message, _ int32) {
	if len(msg) == 0 || msg[0] != 0xF0 {
		return
	}
	frame := make([]byte, len(msg))
	copy(frame, msg)

	select {
	case t.frames <- frame:
	default:
		t.logger.Warn("frame queue full, dropping frame", zap.Int("len", len(frame)))
	}
}

func (t *MIDITransport) fail(err error) {
	t.logger.Warn("MIDI listener error, device likely disconnected", zap.Error(err))
	select {
	case t.errs <- err:
	default:
	}
}

// Send drops any frame left over from an earlier exchange, then transmits
// frame
func (t *MIDITransport) Send(frame []byte) error {
	for drained := false; !drained; {
		select {
		case stale := <-t.frames:
			t.logger.Debug("dropping stale frame", zap.Binary("frame", stale))
		default:
			drained = true
		}
	}

	if !t.out.IsOpen() {
		return ErrClosed
	}
	if err := t.out.Send(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

// Receive returns the next queued frame
func (t *MIDITransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-t.frames:
		return frame, nil
	case err := <-t.errs:
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops listening and closes both ports
func (t *MIDITransport) Close() error {
	t.closeOnce.Do(func() {
		if t.stop != nil {
			t.stop()
		}
		inErr := t.in.Close()
		outErr := t.out.Close()
		if inErr != nil {
			t.closeErr = inErr
		} else {
			t.closeErr = outErr
		}
		t.logger.Info("MIDI ports closed")
	})
	return t.closeErr
}

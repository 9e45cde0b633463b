package sysex

import "fmt"

// Payload is the decoded content of a frame, keyed by its payload command.
// The concrete type is one of Request, Delete, PageData, VersionAnswer,
// ModeAnswer, Connected or Unknown.
type Payload interface {
	Command() PayloadCommand
	isPayload()
}

// Request is a host request carrying no data
type Request struct {
	Cmd PayloadCommand
}

// Delete asks the device to erase every tempo map
type Delete struct{}

// PageData is one page of a multi-page transfer. Data holds everything after
// the payload command, packet header included.
type PageData struct {
	Cmd  PayloadCommand
	Data []byte
}

// VersionAnswer is a hardware or firmware version reply
type VersionAnswer struct {
	Cmd     PayloadCommand
	Major   byte
	Minor   byte
	Patch   byte
	Version string
}

// ModeAnswer is the reply to a mode request
type ModeAnswer struct {
	Mode Mode
	Raw  byte
}

// Connected acknowledges a connection check
type Connected struct{}

// Unknown carries the undecoded bytes of an unrecognized payload command
type Unknown struct {
	Cmd PayloadCommand
	Raw []byte
}

func (p Request) Command() PayloadCommand       { return p.Cmd }
func (Delete) Command() PayloadCommand          { return CmdDeleteTempoMaps }
func (p PageData) Command() PayloadCommand      { return p.Cmd }
func (p VersionAnswer) Command() PayloadCommand { return p.Cmd }
func (ModeAnswer) Command() PayloadCommand      { return CmdMode }
func (Connected) Command() PayloadCommand       { return CmdConnected }
func (p Unknown) Command() PayloadCommand       { return p.Cmd }

func (Request) isPayload()       {}
func (Delete) isPayload()        {}
func (PageData) isPayload()      {}
func (VersionAnswer) isPayload() {}
func (ModeAnswer) isPayload()    {}
func (Connected) isPayload()     {}
func (Unknown) isPayload()       {}

// PacketID returns the 14-bit packet id from the page header
func (p PageData) PacketID() (uint16, bool) {
	if len(p.Data) < 2 {
		return 0, false
	}
	return uint16(p.Data[0]&0x7F)<<7 | uint16(p.Data[1]&0x7F), true
}

// IsLast reports whether the page carries the last-packet sentinel
func (p PageData) IsLast() bool {
	return len(p.Data) >= 2 && p.Data[0] == LastPacketByte && p.Data[1] == LastPacketByte
}

// Body returns the page data without its packet header
func (p PageData) Body() []byte {
	if len(p.Data) <= PacketHeaderLen {
		return nil
	}
	return p.Data[PacketHeaderLen:]
}

// Message is a parsed frame. Payload is nil for frames that end right after
// the reserved byte, such as a bare acknowledgement.
type Message struct {
	Type    MessageType
	Payload Payload
}

// String summarizes the message for logs
func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	if m.Payload == nil {
		return m.Type.String()
	}
	return fmt.Sprintf("%s/%s", m.Type, m.Payload.Command())
}

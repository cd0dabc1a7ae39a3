// Package sink defines where a capture session's messages go and the JSON
// shape of those messages.
package sink

import (
	"context"
	"strings"

	"firestige.xyz/pktstream/internal/core"
)

// Sink receives the messages of exactly one capture session. Send is only
// ever called from the session's delivery goroutine.
type Sink interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Message is either a PacketMessage or an ErrorMessage.
type Message interface {
	isMessage()
}

// PacketMessage reports one classified frame together with the counts after it.
type PacketMessage struct {
	ProtocolCounts core.Counters `json:"protocol_counts"`
	Log            string        `json:"log"`

	Protocol core.Protocol `json:"-"`
}

// ErrorMessage is the last message of a failed session.
type ErrorMessage struct {
	Error string `json:"error"`
}

func (PacketMessage) isMessage() {}
func (ErrorMessage) isMessage()  {}

const (
	startupErrorText = "Failed to start packet sniffer. Please ensure libpcap is installed and run the application with capture privileges. Details: "
	captureErrorText = "Packet capture failed. Details: "
)

func NewPacketMessage(ev core.CaptureEvent) PacketMessage {
	return PacketMessage{
		ProtocolCounts: ev.Counts,
		Log:            ev.Summary,
		Protocol:       ev.Protocol,
	}
}

// NewErrorMessage renders a session failure for the consumer. The underlying
// cause is always the suffix of the text.
func NewErrorMessage(serr *core.SessionError) ErrorMessage {
	if serr == nil {
		return ErrorMessage{Error: captureErrorText + "unknown error"}
	}
	detail := "unknown error"
	if serr.Err != nil {
		detail = cause(serr.Err)
	}
	if serr.Startup() {
		return ErrorMessage{Error: startupErrorText + detail}
	}
	return ErrorMessage{Error: captureErrorText + detail}
}

// cause drops the ErrCaptureStart prefix so consumers see the device error.
func cause(err error) string {
	return strings.TrimPrefix(err.Error(), core.ErrCaptureStart.Error()+": ")
}

package core

import "time"

// CaptureEvent is what the capture side hands to the delivery side for one frame.
type CaptureEvent struct {
	Counts    Counters
	Protocol  Protocol
	Summary   string
	Timestamp time.Time
}

// Interface describes a capture device.
type Interface struct {
	Name        string
	Description string
	Addresses   []string
}

// SessionError is the terminal failure of a capture session.
type SessionError struct {
	Op  string // "start" or "capture"
	Err error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return e.Op + ": unknown error"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Startup reports whether the session never got to capture a frame.
func (e *SessionError) Startup() bool {
	return e.Op == OpStart
}

const (
	OpStart   = "start"
	OpCapture = "capture"
)

// Package core defines sentinel errors.
package core

import "errors"

var (
	// Capture errors
	ErrCaptureStart  = errors.New("pktstream: capture could not start")
	ErrNoInterfaces  = errors.New("pktstream: no capture interfaces available")
	ErrUnknownSource = errors.New("pktstream: unknown capture source")

	// Delivery errors
	ErrSinkClosed = errors.New("pktstream: sink closed")

	// Session errors
	ErrSessionClosed = errors.New("pktstream: session already used")

	// Configuration errors
	ErrConfigInvalid = errors.New("pktstream: invalid configuration")
)

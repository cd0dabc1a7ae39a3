package session

import (
	"context"

	"github.com/looplab/fsm"

	"firestige.xyz/pktstream/internal/log"
)

// Session states
const (
	StateIdle        = "idle"
	StateActive      = "active"
	StateTerminating = "terminating"
	StateClosed      = "closed"
)

// Session events
const (
	eventConnect   = "connect"
	eventTerminate = "terminate"
	eventClose     = "close"
)

var sessionEvents = fsm.Events{
	{Name: eventConnect, Src: []string{StateIdle}, Dst: StateActive},
	{Name: eventTerminate, Src: []string{StateActive}, Dst: StateTerminating},
	{Name: eventClose, Src: []string{StateTerminating}, Dst: StateClosed},
}

func newFSM(id uint64) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		sessionEvents,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.GetLogger().
					WithField("session", id).
					WithField("from", e.Src).
					WithField("to", e.Dst).
					Debug("session state changed")
			},
		},
	)
}

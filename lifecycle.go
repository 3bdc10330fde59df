package hsm

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Phases of a machine's transition gate.
const (
	PhaseStopped  = "stopped"
	PhaseIdle     = "idle"
	PhaseExiting  = "exiting"
	PhaseEntering = "entering"
	PhaseFaulted  = "faulted"
)

const (
	eventStart     = "start"
	eventBegin     = "begin"
	eventEnter     = "enter"
	eventRestart   = "restart"
	eventSettle    = "settle"
	eventFault     = "fault"
	eventRecover   = "recover"
	eventTerminate = "terminate"
)

// InFlight reports whether phase keeps new transition requests out.
func InFlight(phase string) bool {
	switch phase {
	case PhaseExiting, PhaseEntering, PhaseFaulted:
		return true
	}
	return false
}

func newLifecycle(logger *zap.Logger, changed func(phase string)) *fsm.FSM {
	return fsm.NewFSM(
		PhaseStopped,
		fsm.Events{
			{Name: eventStart, Src: []string{PhaseStopped}, Dst: PhaseIdle},
			{Name: eventBegin, Src: []string{PhaseIdle}, Dst: PhaseExiting},
			{Name: eventEnter, Src: []string{PhaseExiting}, Dst: PhaseEntering},
			// a pending request takes over straight from the entering phase
			{Name: eventRestart, Src: []string{PhaseEntering}, Dst: PhaseExiting},
			{Name: eventSettle, Src: []string{PhaseExiting, PhaseEntering}, Dst: PhaseIdle},
			{Name: eventFault, Src: []string{PhaseExiting, PhaseEntering}, Dst: PhaseFaulted},
			{Name: eventRecover, Src: []string{PhaseFaulted}, Dst: PhaseIdle},
			{Name: eventTerminate, Src: []string{PhaseIdle}, Dst: PhaseStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("phase", zap.String("event", e.Event), zap.String("from", e.Src), zap.String("to", e.Dst))
				changed(e.Dst)
			},
		},
	)
}

package monitor

import "fmt"

// Phase names the scheduler's state-machine states.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseChecking  Phase = "checking"
	PhaseExecuting Phase = "executing"
	PhaseStopped   Phase = "stopped"
)

// phaseTransitions is the whole legal transition table. Stop is reachable
// from every live phase: stopping mid-execution halts the timer while the
// in-flight execution runs to completion.
var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseRunning},
	PhaseRunning:   {PhaseChecking, PhaseStopped},
	PhaseChecking:  {PhaseRunning, PhaseExecuting, PhaseStopped},
	PhaseExecuting: {PhaseRunning, PhaseStopped},
	PhaseStopped:   {PhaseRunning},
}

func (p Phase) canEnter(next Phase) bool {
	for _, allowed := range phaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// transition moves the monitor to next, panicking on an illegal move. The
// table above is exhaustive, so hitting this panic is a programming error,
// never a runtime condition.
func (m *Monitor) transition(next Phase) {
	if !m.phase.canEnter(next) {
		panic(fmt.Sprintf("monitor: illegal phase transition %s -> %s", m.phase, next))
	}
	m.phase = next
}

package pipeline

import "go.uber.org/zap"

// State is where the orchestrator currently is in its cycle.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateNormalizing State = "normalizing"
	StateScoring     State = "scoring"
	StateGenerating  State = "generating"
	StateDispatching State = "dispatching"
	StateSleeping    State = "sleeping"
)

var allStates = []string{
	string(StateIdle),
	string(StateFetching),
	string(StateNormalizing),
	string(StateScoring),
	string(StateGenerating),
	string(StateDispatching),
	string(StateSleeping),
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.metrics.SetState(string(s), allStates)
	o.logger.Debug("state", zap.String("state", string(s)))
}

// State is safe to call from other goroutines, e.g. the status server.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

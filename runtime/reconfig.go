package runtime

// ReconfigurationMessage is a tagged control-plane event routed through
// the scheduler's task queue to a specific target — a *Pipeline, a
// *SinkHandle, or a *QEP (spec §3 "Reconfiguration Message": "{queryId,
// type ∈ {SoftEoS, HardEoS, FailEoS, …}, target}").
type ReconfigurationMessage struct {
	QueryID QueryID
	Type    ReconfigType
	Target  any
}

// Dispatch runs the target-specific postReconfigurationCallback for
// msg. Called by the scheduler once it dequeues a reconfiguration
// task. The scheduler does not serialize Dispatch calls per target:
// Pipeline and SinkHandle serialize their own callbacks with a mutex,
// while QEP's callback takes no lock and works on atomic fields.
func (msg ReconfigurationMessage) Dispatch() {
	switch target := msg.Target.(type) {
	case *Pipeline:
		target.postReconfigurationCallback(msg)
	case *SinkHandle:
		target.postReconfigurationCallback(msg)
	case *QEP:
		target.postReconfigurationCallback(msg)
	}
}

package engine

// Attribution is the policy for resolving the acting party recorded on
// events and records when a request names none. Precedence: the request's
// actor, then the creator already on the record, then Fallback. The policy
// is a value so tests can enumerate the precedence cases directly.
type Attribution struct {
	// Fallback is recorded when neither source names an actor.
	Fallback string
}

// DefaultAttribution is applied by engines unless overridden.
var DefaultAttribution = Attribution{Fallback: "unknown"}

// Resolve returns the first non-empty of requestActor, recordedCreator and
// the fallback.
func (a Attribution) Resolve(requestActor, recordedCreator string) string {
	switch {
	case requestActor != "":
		return requestActor
	case recordedCreator != "":
		return recordedCreator
	default:
		return a.Fallback
	}
}

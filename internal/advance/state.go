package advance

import "time"

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusDisbursed, StatusRejected},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// apply moves r to the target status and returns the audit record. r is
// left untouched when the edge is not allowed.
func apply(r *Request, to Status, actor Actor, reason Reason, note string, at time.Time) (Transition, error) {
	if !CanTransition(r.Status, to) {
		return Transition{}, &TransitionError{ID: r.ID, From: r.Status, To: to}
	}
	t := Transition{From: r.Status, To: to, Actor: actor, Reason: reason, Note: note, At: at}
	r.Status = to
	r.UpdatedAt = at
	if to == StatusRejected {
		r.RejectReason = reason
		r.RejectNote = note
	}
	r.History = append(r.History, t)
	return t, nil
}

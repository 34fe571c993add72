package adjudication

import (
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
)

// transitions lists the allowed next states per job status. Completed,
// Cancelled and Disputed are terminal for the lifecycle; a disputed job only
// moves on through its ruling.
var transitions = map[model.JobStatus][]model.JobStatus{
	model.JobOpen:       {model.JobInProgress, model.JobCancelled},
	model.JobInProgress: {model.JobCompleted, model.JobDisputed, model.JobCancelled},
}

// Transition validates a lifecycle move.
func Transition(from, to model.JobStatus) error {
	const op = "adjudication.transition"
	if from == to {
		return errkind.Newf(op, errkind.ErrDuplicateSource, "job already %s", to)
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return errkind.Newf(op, errkind.ErrValidation, "cannot move job from %s to %s", from, to)
}

// Terminal reports whether no further lifecycle moves are possible.
func Terminal(s model.JobStatus) bool {
	return len(transitions[s]) == 0
}

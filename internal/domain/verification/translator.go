// Package verification converts completed skill verifications into reputation deltas.
package verification

import (
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
)

// Default verification deltas and peer threshold.
const (
	DefaultTestDelta        = 50
	DefaultPeerDelta        = 30
	DefaultProjectDelta     = 70
	DefaultMinPeerApprovals = 3
)

// Option applies a configuration option to the Translator.
type Option func(*Translator)

// WithDeltas overrides the per-type approval deltas. Negative values are ignored.
func WithDeltas(test, peer, project int64) Option {
	return func(t *Translator) {
		if test >= 0 {
			t.deltas[model.VerificationTest] = test
		}
		if peer >= 0 {
			t.deltas[model.VerificationPeer] = peer
		}
		if project >= 0 {
			t.deltas[model.VerificationProject] = project
		}
	}
}

// WithMinPeerApprovals sets the number of peer approvals a Peer verification needs.
func WithMinPeerApprovals(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.minPeerApprovals = n
		}
	}
}

// Translator is stateless after construction. It only sees the final outcome;
// the peer threshold is checked by the peer sub-flow before Translate is called.
type Translator struct {
	deltas           map[model.VerificationType]int64
	minPeerApprovals int
}

// NewTranslator creates a Translator with the default deltas.
func NewTranslator(opts ...Option) *Translator {
	t := &Translator{
		deltas: map[model.VerificationType]int64{
			model.VerificationTest:    DefaultTestDelta,
			model.VerificationPeer:    DefaultPeerDelta,
			model.VerificationProject: DefaultProjectDelta,
		},
		minPeerApprovals: DefaultMinPeerApprovals,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate maps a verification type and outcome to a delta. Rejections yield 0.
func (t *Translator) Translate(vt model.VerificationType, outcome model.Outcome) (int64, error) {
	const op = "verification.translate"
	if !vt.Valid() {
		return 0, errkind.Newf(op, errkind.ErrValidation, "unknown verification type %q", vt)
	}
	switch outcome {
	case model.OutcomeRejected:
		return 0, nil
	case model.OutcomeApproved:
		return t.deltas[vt], nil
	default:
		return 0, errkind.Newf(op, errkind.ErrValidation, "unknown outcome %q", outcome)
	}
}

// TranslateEvidence translates using the evidence's discriminant, after
// validating the payload.
func (t *Translator) TranslateEvidence(ev Evidence, outcome model.Outcome) (int64, error) {
	const op = "verification.translate_evidence"
	if ev == nil {
		return 0, errkind.New(op, errkind.ErrValidation, "missing evidence")
	}
	if err := ev.validate(); err != nil {
		return 0, errkind.Wrap(op, errkind.ErrValidation, err)
	}
	switch e := ev.(type) {
	case TestEvidence, ProjectEvidence:
		return t.Translate(e.Type(), outcome)
	case PeerEvidence:
		if outcome == model.OutcomeApproved && !t.PeerApproved(e.Approvals) {
			return 0, errkind.Newf(op, errkind.ErrValidation,
				"peer verification needs %d approvals, got %d", t.minPeerApprovals, e.Approvals)
		}
		return t.Translate(e.Type(), outcome)
	default:
		return 0, errkind.Newf(op, errkind.ErrValidation, "unsupported evidence %T", ev)
	}
}

// PeerApproved reports whether approvals meet the peer threshold.
func (t *Translator) PeerApproved(approvals int) bool {
	return approvals >= t.minPeerApprovals
}

// MinPeerApprovals returns the configured threshold.
func (t *Translator) MinPeerApprovals() int { return t.minPeerApprovals }

package verification

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/credence/internal/domain/model"
)

// Evidence is the verification payload. The set of implementations is closed;
// the discriminant is Type().
type Evidence interface {
	Type() model.VerificationType
	validate() error
}

// TestEvidence is a result from an external skill test platform.
type TestEvidence struct {
	Platform         string `json:"platform"`
	TestID           string `json:"test_id"`
	Score            int    `json:"score"`
	MaxScore         int    `json:"max_score"`
	CertificateURL   string `json:"certificate_url,omitempty"`
	VerificationHash string `json:"verification_hash,omitempty"`
}

// Type implements Evidence.
func (TestEvidence) Type() model.VerificationType { return model.VerificationTest }

func (e TestEvidence) validate() error {
	switch {
	case strings.TrimSpace(e.Platform) == "":
		return errors.New("missing platform")
	case strings.TrimSpace(e.TestID) == "":
		return errors.New("missing test_id")
	case e.MaxScore <= 0:
		return errors.New("max_score must be positive")
	case e.Score < 0 || e.Score > e.MaxScore:
		return fmt.Errorf("score %d outside [0, %d]", e.Score, e.MaxScore)
	}
	return nil
}

// Percentage returns the test score as a percentage of the maximum.
func (e TestEvidence) Percentage() float64 {
	if e.MaxScore <= 0 {
		return 0
	}
	return float64(e.Score) * 100 / float64(e.MaxScore)
}

// PeerEvidence summarizes a peer panel.
type PeerEvidence struct {
	RequestID    string   `json:"request_id,omitempty"`
	Approvals    int      `json:"approvals"`
	Rejections   int      `json:"rejections"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}

// Type implements Evidence.
func (PeerEvidence) Type() model.VerificationType { return model.VerificationPeer }

func (e PeerEvidence) validate() error {
	if e.Approvals < 0 || e.Rejections < 0 {
		return errors.New("peer counts must not be negative")
	}
	return nil
}

// ProjectEvidence is a reviewed project submission.
type ProjectEvidence struct {
	Title         string   `json:"title"`
	ProjectType   string   `json:"project_type,omitempty"`
	RepositoryURL string   `json:"repository_url,omitempty"`
	LiveURL       string   `json:"live_url,omitempty"`
	ReviewerID    string   `json:"reviewer_id"`
	FileRefs      []string `json:"file_refs,omitempty"`
}

// Type implements Evidence.
func (ProjectEvidence) Type() model.VerificationType { return model.VerificationProject }

func (e ProjectEvidence) validate() error {
	switch {
	case strings.TrimSpace(e.Title) == "":
		return errors.New("missing title")
	case strings.TrimSpace(e.ReviewerID) == "":
		return errors.New("missing reviewer_id")
	case e.RepositoryURL == "" && e.LiveURL == "" && len(e.FileRefs) == 0:
		return errors.New("project needs a repository_url, live_url or file_refs")
	}
	return nil
}

// Validate checks the payload of an Evidence value.
func Validate(ev Evidence) error {
	if ev == nil {
		return errors.New("missing evidence")
	}
	return ev.validate()
}

type envelope struct {
	Type model.VerificationType `json:"type"`
	Data json.RawMessage        `json:"data"`
}

// Encode serializes evidence with its discriminant.
func Encode(ev Evidence) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("encode evidence: nil")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	return json.Marshal(envelope{Type: ev.Type(), Data: data})
}

// Decode parses an envelope produced by Encode.
func Decode(raw []byte) (Evidence, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	return DecodeTyped(env.Type, env.Data)
}

// DecodeTyped parses a bare payload of the given type.
func DecodeTyped(vt model.VerificationType, data []byte) (Evidence, error) {
	if len(data) == 0 {
		return nil, errors.New("decode evidence: empty payload")
	}
	switch vt {
	case model.VerificationTest:
		var e TestEvidence
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode test evidence: %w", err)
		}
		return e, nil
	case model.VerificationPeer:
		var e PeerEvidence
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode peer evidence: %w", err)
		}
		return e, nil
	case model.VerificationProject:
		var e ProjectEvidence
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode project evidence: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("decode evidence: unknown type %q", vt)
	}
}

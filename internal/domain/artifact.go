package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BirthData is the normalized input for chart calculation.
type BirthData struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD
	BirthTime string `json:"birth_time"` // HH:MM, 24h
	Timezone  string `json:"timezone"`   // IANA name
	Gender    string `json:"gender,omitempty"`
}

// Validate checks structural validity of birth data.
func (b BirthData) Validate() error {
	const op = "birthdata.validate"
	if _, err := time.Parse("2006-01-02", b.BirthDate); err != nil {
		return Invalid(op, "birth_date must be YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", b.BirthTime); err != nil {
		return Invalid(op, "birth_time must be HH:MM")
	}
	if b.Timezone == "" {
		return Invalid(op, "timezone is required")
	}
	return nil
}

// canonical returns a stable string form for fingerprinting. Name is
// deliberately excluded: two requests with the same birth moment are the
// same computation regardless of display name.
func (b BirthData) canonical() string {
	return fmt.Sprintf("%s|%s|%s|%s", b.BirthDate, b.BirthTime, b.Timezone, strings.ToLower(b.Gender))
}

// Interpretation is AI-generated text attached to an artifact, with real
// provenance. Cached reuse copies provenance from the entry that produced
// the text rather than substituting a placeholder label.
type Interpretation struct {
	Sections     map[string]string `json:"sections"`
	Provider     string            `json:"provider"`
	Model        string            `json:"model"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// HasSection reports whether the interpretation contains the given section.
func (i *Interpretation) HasSection(key string) bool {
	if i == nil {
		return false
	}
	_, ok := i.Sections[key]
	return ok
}

// Artifact is a generated reading or comparison. Created exactly once per
// accepted request; immutable afterwards except for attaching deferred AI
// output and, for comparisons, periodic recalculation.
type Artifact struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Type           ActionType
	Fingerprint    string
	ChargeMode     ChargeMode
	CreditsCharged int
	Subject        BirthData
	Partner        *BirthData // comparisons only
	TargetPeriod   string     // annual readings / comparisons
	ChartData      json.RawMessage
	Interpretation *Interpretation

	// LastCalculatedPeriod marks the period the comparison chart was last
	// recomputed for; the background recalculator advances it.
	LastCalculatedPeriod string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsComparison reports whether the artifact is a compatibility comparison.
func (a *Artifact) IsComparison() bool {
	return a.Type == ActionComparison
}

// HasInterpretation reports whether AI output has been attached.
// Chart-only artifacts (AI failed or deferred) return false.
func (a *Artifact) HasInterpretation() bool {
	return a.Interpretation != nil && len(a.Interpretation.Sections) > 0
}

// Fingerprint computes the deterministic request fingerprint used for
// cache-reuse detection: a hash of the semantically relevant inputs only.
func Fingerprint(action ActionType, subject BirthData, partner *BirthData, targetPeriod string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", action, subject.canonical())
	if partner != nil {
		fmt.Fprintf(h, "%s\n", partner.canonical())
	}
	fmt.Fprintf(h, "%s", targetPeriod)
	return hex.EncodeToString(h.Sum(nil))
}

package kyc

import (
	"github.com/taxfiler/kyc-ocr-service/internal/models"
)

const (
	DefaultNameWeight      = 0.5
	DefaultIDWeight        = 0.5
	DefaultVerifyThreshold = 0.8

	// DefaultCrossDocumentThreshold is the name agreement two verified
	// documents need for the case-level verdict.
	DefaultCrossDocumentThreshold = 0.85
)

// Scorer combines name similarity and ID presence into a trust score.
// Changing the weights or the threshold changes which documents are
// accepted, so they only come from configuration.
type Scorer struct {
	NameWeight      float64
	IDWeight        float64
	VerifyThreshold float64
}

// Match is the outcome of comparing one document against a client profile
type Match struct {
	NameScore    float64
	NameCompared bool // false when either name was empty
	IDPresent    bool
	Total        float64
}

// DefaultScorer uses a 50/50 weighting and a 0.8 threshold
func DefaultScorer() Scorer {
	return Scorer{
		NameWeight:      DefaultNameWeight,
		IDWeight:        DefaultIDWeight,
		VerifyThreshold: DefaultVerifyThreshold,
	}
}

// NewScorer builds a scorer from configuration, keeping defaults for unset values
func NewScorer(cfg models.VerificationConfig) Scorer {
	s := DefaultScorer()
	if cfg.NameWeight > 0 || cfg.IDWeight > 0 {
		s.NameWeight = cfg.NameWeight
		s.IDWeight = cfg.IDWeight
	}
	if cfg.VerifyThreshold > 0 {
		s.VerifyThreshold = cfg.VerifyThreshold
	}
	return s
}

// Score compares the extracted name with the registered client name.
// A missing name on either side scores 0 for the name part; it is not an error.
func (s Scorer) Score(extractedName, clientName string, idPresent bool) Match {
	m := Match{IDPresent: idPresent}

	a := Normalize(extractedName)
	b := Normalize(clientName)
	if a != "" && b != "" {
		m.NameCompared = true
		m.NameScore = Similarity(a, b)
	}

	m.Total = s.Combine(m.NameScore, idPresent)
	return m
}

// Combine weights a name score and ID presence into the total score
func (s Scorer) Combine(nameScore float64, idPresent bool) float64 {
	idScore := 0.0
	if idPresent {
		idScore = 1.0
	}
	return s.NameWeight*nameScore + s.IDWeight*idScore
}

// Classify maps a total score to verified (strictly above threshold) or flagged
func (s Scorer) Classify(total float64) models.VerificationStatus {
	if total > s.VerifyThreshold {
		return models.StatusVerified
	}
	return models.StatusFlagged
}

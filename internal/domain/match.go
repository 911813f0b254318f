package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Confidence is the strength of a cheque match. Values are totally ordered:
// ConfidenceNone < ConfidenceLow < ConfidenceMedium < ConfidenceHigh.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

var confidenceNames = [...]string{"NONE", "LOW", "MEDIUM", "HIGH"}

func (c Confidence) String() string {
	if c < ConfidenceNone || c > ConfidenceHigh {
		return fmt.Sprintf("Confidence(%d)", int(c))
	}
	return confidenceNames[c]
}

// Clears reports whether a match of this confidence clears its obligation
// when committed.
func (c Confidence) Clears() bool {
	return c >= ConfidenceMedium
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(b []byte) error {
	s := strings.ToUpper(strings.TrimSpace(string(b)))
	for i, name := range confidenceNames {
		if name == s {
			*c = Confidence(i)
			return nil
		}
	}
	return &FieldError{Field: "confidence", Reason: fmt.Sprintf("unknown value %q", s)}
}

// MatchResult describes how a cheque candidate relates to the scheduled
// obligations. Ambiguity is reported here, never as an error.
type MatchResult struct {
	ObligationID string          `json:"obligation_id,omitempty"`
	ChequeNumber string          `json:"cheque_number"`
	Confidence   Confidence      `json:"confidence"`
	Scheduled    decimal.Decimal `json:"scheduled_amount"`
	Delta        decimal.Decimal `json:"delta"`
	Reason       string          `json:"reason"`
	Warning      string          `json:"warning,omitempty"`
	Candidates   int             `json:"candidates"`
}

package domain

// Severity of a validation issue. Ordered: SeverityWarning < SeverityError.
type Severity int

const (
	SeverityWarning Severity = iota + 1
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	}
	return "UNKNOWN"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "WARNING":
		*s = SeverityWarning
	case "ERROR":
		*s = SeverityError
	default:
		return &FieldError{Field: "severity", Reason: "unknown value " + string(b)}
	}
	return nil
}

// CheckKind names the family of check that produced an issue.
type CheckKind string

const (
	CheckNumbering CheckKind = "NUMBERING"
	CheckDate      CheckKind = "DATE"
)

// ValidationIssue is one finding of the series validator.
type ValidationIssue struct {
	Severity     Severity  `json:"severity"`
	Check        CheckKind `json:"check"`
	ObligationID string    `json:"obligation_id"`
	ChequeNumber string    `json:"cheque_number,omitempty"`
	Message      string    `json:"message"`
}

// ValidationResult is the outcome of validating an obligation series.
type ValidationResult struct {
	IsValid            bool              `json:"is_valid"`
	Issues             []ValidationIssue `json:"issues"`
	HasNumberingIssues bool              `json:"has_numbering_issues"`
	HasDateIssues      bool              `json:"has_date_issues"`
}

// Errors returns only the ERROR severity issues.
func (r ValidationResult) Errors() []ValidationIssue {
	var out []ValidationIssue
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			out = append(out, is)
		}
	}
	return out
}

package ldk

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Severity of a FieldIssue.
type Severity string

// Severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Mode selects how validators react to issues.
type Mode string

const (
	// ModeStrict returns a ValidationError for the first issue found.
	ModeStrict Mode = "strict"
	// ModeReport collects every issue and never fails.
	ModeReport Mode = "report"
	// ModeSample is ModeReport restricted to a reproducible random subset
	// of records.
	ModeSample Mode = "sample"
)

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStrict, ModeReport, ModeSample:
		return m, nil
	case "":
		return ModeReport, nil
	default:
		return "", errors.Errorf("unknown validation mode '%s'", s)
	}
}

// FieldIssue is one problem found in a record or document. Path is the dotted
// property path, e.g. "hasPersonName.FirstName".
type FieldIssue struct {
	Path     string   `json:"path"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Expected string   `json:"expected,omitempty"`
	Actual   string   `json:"actual,omitempty"`
}

func (f FieldIssue) String() string {
	s := string(f.Severity) + ": " + f.Path + ": " + f.Message
	if f.Expected != "" || f.Actual != "" {
		s += " (expected " + f.Expected + ", got " + f.Actual + ")"
	}
	return s
}

// ValidationResult accumulates issues per record identifier. The error and
// warning counts are only ever changed by Add.
type ValidationResult struct {
	Records int

	issues   map[string][]FieldIssue
	order    []string
	errors   int
	warnings int
}

// NewValidationResult returns an empty result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{issues: make(map[string][]FieldIssue)}
}

// Add records issue against the record identified by recordID.
func (v *ValidationResult) Add(recordID string, issue FieldIssue) {
	if v.issues == nil {
		v.issues = make(map[string][]FieldIssue)
	}
	if _, ok := v.issues[recordID]; !ok {
		v.order = append(v.order, recordID)
	}
	v.issues[recordID] = append(v.issues[recordID], issue)
	switch issue.Severity {
	case SeverityError:
		v.errors++
	default:
		v.warnings++
	}
}

// Merge adds every issue and the record count of o to v.
func (v *ValidationResult) Merge(o *ValidationResult) {
	if o == nil {
		return
	}
	v.Records += o.Records
	for _, id := range o.order {
		for _, issue := range o.issues[id] {
			v.Add(id, issue)
		}
	}
}

// Conforms is true when no error-severity issue has been added.
func (v *ValidationResult) Conforms() bool { return v.errors == 0 }

// ErrorCount returns the number of error-severity issues.
func (v *ValidationResult) ErrorCount() int { return v.errors }

// WarningCount returns the number of warning-severity issues.
func (v *ValidationResult) WarningCount() int { return v.warnings }

// RecordIDs returns the identifiers which have issues, in the order they were
// first seen.
func (v *ValidationResult) RecordIDs() []string {
	ret := make([]string, len(v.order))
	copy(ret, v.order)
	return ret
}

// Issues returns a copy of the issues recorded for recordID.
func (v *ValidationResult) Issues(recordID string) []FieldIssue {
	issues := v.issues[recordID]
	ret := make([]FieldIssue, len(issues))
	copy(ret, issues)
	return ret
}

// All returns every issue in insertion order.
func (v *ValidationResult) All() []FieldIssue {
	ret := make([]FieldIssue, 0, v.errors+v.warnings)
	for _, id := range v.order {
		ret = append(ret, v.issues[id]...)
	}
	return ret
}

type recordIssues struct {
	Record string       `json:"record"`
	Issues []FieldIssue `json:"issues"`
}

// MarshalJSON writes the result as a summary plus the issues per record.
func (v *ValidationResult) MarshalJSON() ([]byte, error) {
	recs := make([]recordIssues, 0, len(v.order))
	for _, id := range v.order {
		recs = append(recs, recordIssues{Record: id, Issues: v.issues[id]})
	}
	return json.Marshal(struct {
		Conforms bool           `json:"conforms"`
		Records  int            `json:"records"`
		Errors   int            `json:"errors"`
		Warnings int            `json:"warnings"`
		Issues   []recordIssues `json:"issues"`
	}{
		Conforms: v.Conforms(),
		Records:  v.Records,
		Errors:   v.errors,
		Warnings: v.warnings,
		Issues:   recs,
	})
}

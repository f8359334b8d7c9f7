package core

import "sort"

// Verdict names the Guard Agent stage that decided a ValidationResult.
type Verdict string

const (
	// VerdictPass means all three screens passed.
	VerdictPass Verdict = "pass"
	// VerdictUnsafe means the safety screen failed.
	VerdictUnsafe Verdict = "unsafe"
	// VerdictInappropriate means the content is not suitable for the caller's role.
	VerdictInappropriate Verdict = "inappropriate"
	// VerdictInaccurate means the accuracy screen reported issues.
	VerdictInaccurate Verdict = "inaccurate"
)

// ValidationResult is produced once per Guard Agent pass.
type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	Confidence       float64  `json:"confidence"`
	Issues           []string `json:"issues,omitempty"`
	CorrectedContent string   `json:"corrected_content,omitempty"`
	Verdict          Verdict  `json:"verdict"`
	Uncertain        bool     `json:"uncertain,omitempty"`
}

// IssueSet returns issues sorted and de-duplicated.
func IssueSet(issues ...string) []string {
	if len(issues) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(issues))
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		if is == "" {
			continue
		}
		if _, ok := seen[is]; ok {
			continue
		}
		seen[is] = struct{}{}
		out = append(out, is)
	}
	sort.Strings(out)
	return out
}

// HasIssue reports whether issue is present.
func (v ValidationResult) HasIssue(issue string) bool {
	for _, is := range v.Issues {
		if is == issue {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (v ValidationResult) Clone() ValidationResult {
	v.Issues = append([]string(nil), v.Issues...)
	return v
}

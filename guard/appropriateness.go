package guard

import (
	"regexp"

	"github.com/hupe1980/medguard/core"
)

// Appropriateness reasons.
const (
	ReasonFacultyOnly        = "faculty-only material"
	ReasonPatientIdentifiers = "patient-identifiable information"
)

var facultyOnlyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\banswer keys?\b`),
	regexp.MustCompile(`(?i)\bgrading (?:rubric|scheme|criteria)\b`),
	regexp.MustCompile(`(?i)\bmarking (?:rubric|scheme)\b`),
	regexp.MustCompile(`(?i)\bexam (?:solutions?|answers)\b`),
	regexp.MustCompile(`(?i)\bsolutions? (?:to|for) the (?:final |midterm )?exam\b`),
}

var identifierPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:mrn|medical record number)\s*[:#]?\s*\d{5,}\b`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`(?i)\bpatient name\s*:\s*[A-Z][a-z]+ [A-Z][a-z]+`),
}

// RoleScreen rejects faculty-only assessment material for students and
// patient identifiers for everyone.
type RoleScreen struct{}

// NewRoleScreen returns the default appropriateness screen.
func NewRoleScreen() *RoleScreen { return &RoleScreen{} }

// Screen implements AppropriatenessScreen.
func (RoleScreen) Screen(content string, _ []core.Turn, role core.Role) AppropriatenessResult {
	var reasons []string
	if role != core.RoleFaculty && matchAny(facultyOnlyPatterns, content) {
		reasons = append(reasons, ReasonFacultyOnly)
	}
	if matchAny(identifierPatterns, content) {
		reasons = append(reasons, ReasonPatientIdentifiers)
	}
	return AppropriatenessResult{Appropriate: len(reasons) == 0, Reasons: reasons}
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

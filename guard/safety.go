package guard

import (
	"regexp"
)

// LexiconSafety flags instructions that facilitate harm. Clinical discussion
// of a topic (risk assessment, overdose management) does not match; the
// patterns target how-to phrasing aimed at the reader.
type LexiconSafety struct {
	categories map[string][]*regexp.Regexp
}

var defaultHarmLexicon = map[string][]string{
	CategorySelfHarm: {
		`\bhow (?:to|can i|do i) (?:kill|hurt|harm|cut) (?:myself|yourself)\b`,
		`\b(?:best|easiest|painless|quickest) (?:way|ways|method|methods) to (?:die|commit suicide|end (?:my|your) life)\b`,
		`\bhow (?:to|can i|do i) (?:commit suicide|end (?:my|your) life)\b`,
		`\bhow many (?:pills|tablets) (?:to|would) (?:kill|overdose)\b`,
	},
	CategorySubstanceMisuse: {
		`\bhow (?:to|can i|do i) get high (?:on|from|with)\b`,
		`\b(?:snort|inject|smoke) (?:crushed )?(?:oxycodone|fentanyl|adderall|ritalin|benzos?|xanax)\b`,
		`\bget (?:more|extra) (?:opioids|oxycodone|benzos|xanax) without a prescription\b`,
		`\b(?:extract|cook|synthesi[sz]e) (?:codeine|dxm|meth(?:amphetamine)?)\b`,
	},
	CategoryDangerousSelfTreatment: {
		`\bstop taking (?:your|my) (?:insulin|anticoagulants?|blood thinners?|antiretrovirals?|chemotherapy)\b`,
		`\btreat (?:your|my) (?:cancer|sepsis|appendicitis|pneumonia) (?:at home|yourself) instead of\b`,
		`\b(?:drink|ingest|swallow) (?:bleach|turpentine|hydrogen peroxide|mms|chlorine dioxide)\b`,
		`\b(?:perform|do) (?:surgery|an? (?:abortion|amputation)) on (?:yourself|myself)\b`,
	},
}

// NewLexiconSafety compiles the built-in lexicon.
func NewLexiconSafety() *LexiconSafety {
	return NewLexiconSafetyFrom(defaultHarmLexicon)
}

// NewLexiconSafetyFrom compiles a custom lexicon of category to case
// insensitive patterns. It panics on an invalid pattern.
func NewLexiconSafetyFrom(lexicon map[string][]string) *LexiconSafety {
	s := &LexiconSafety{categories: make(map[string][]*regexp.Regexp, len(lexicon))}
	for category, patterns := range lexicon {
		for _, p := range patterns {
			s.categories[category] = append(s.categories[category], regexp.MustCompile(`(?i)`+p))
		}
	}
	return s
}

// Screen implements SafetyScreen. Reasons are the matched categories.
func (s *LexiconSafety) Screen(text string) SafetyResult {
	var reasons []string
	for category, patterns := range s.categories {
		for _, re := range patterns {
			if re.MatchString(text) {
				reasons = append(reasons, category)
				break
			}
		}
	}
	if len(reasons) == 0 {
		return SafetyResult{Safe: true}
	}
	return SafetyResult{Safe: false, Reasons: reasons}
}

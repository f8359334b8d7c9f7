package guard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/medguard/core"
)

// Deductions applied by ReferenceAccuracy.
const (
	misconceptionPenalty = 0.3
	absoluteClaimPenalty = 0.15
	doseRangePenalty     = 0.35
)

type misconception struct {
	re    *regexp.Regexp
	issue string
}

var misconceptions = []misconception{
	{regexp.MustCompile(`(?i)\bantibiotics? (?:cure|treat|kill|work (?:for|against))s? (?:the )?(?:common )?(?:colds?|flu|influenza|viral infections?|viruses)\b`),
		"misconception: antibiotics are not effective against viral infections"},
	{regexp.MustCompile(`(?i)\bvaccines? (?:cause|causes|lead to) autism\b`),
		"misconception: vaccines do not cause autism"},
	{regexp.MustCompile(`(?i)\binsulin (?:cures|will cure|can cure) (?:type [12] )?diabetes\b`),
		"misconception: insulin manages but does not cure diabetes"},
	{regexp.MustCompile(`(?i)\b(?:only|just) use 10 ?% of (?:our|your|the) brains?\b`),
		"misconception: the whole brain is active"},
	{regexp.MustCompile(`(?i)\bcracking (?:your )?knuckles causes arthritis\b`),
		"misconception: knuckle cracking is not linked to arthritis"},
	{regexp.MustCompile(`(?i)\bfeed a cold,? starve a fever\b`),
		"misconception: fever increases rather than reduces nutritional needs"},
}

var absoluteClaims = regexp.MustCompile(`(?i)\b(?:always cures?|guaranteed to (?:cure|work)|100 ?% (?:effective|safe|cure)|never (?:has|have|causes?) (?:any )?side effects|has no side effects|completely risk[- ]free|cures? (?:all|every) (?:cancers?|diseases?))\b`)

// maxSingleDoseMg holds adult maximum single oral doses in milligrams.
var maxSingleDoseMg = map[string]float64{
	"paracetamol":   1000,
	"acetaminophen": 1000,
	"ibuprofen":     800,
	"aspirin":       1000,
	"naproxen":      500,
	"diazepam":      10,
	"morphine":      30,
}

var (
	drugNames    = `paracetamol|acetaminophen|ibuprofen|aspirin|naproxen|diazepam|morphine`
	doseFirst    = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(mg|g|mcg|µg)\s+(?:of\s+)?(` + drugNames + `)\b`)
	drugFirst    = regexp.MustCompile(`(?i)\b(` + drugNames + `)\s+(\d+(?:\.\d+)?)\s*(mg|g|mcg|µg)\b`)
	unitToMgMult = map[string]float64{"mg": 1, "g": 1000, "mcg": 0.001, "µg": 0.001}
)

// ReferenceAccuracy scores content against a small reference table. It
// starts at 1.0 and deducts for known misconceptions, absolute efficacy
// claims and doses outside the reference range. Empty content scores 0.
type ReferenceAccuracy struct{}

// NewReferenceAccuracy returns the default accuracy screen.
func NewReferenceAccuracy() *ReferenceAccuracy { return &ReferenceAccuracy{} }

// Score implements AccuracyScreen.
func (ReferenceAccuracy) Score(content string, _ []core.Turn) AccuracyResult {
	if strings.TrimSpace(content) == "" {
		return AccuracyResult{Confidence: 0, Issues: []string{"empty content"}}
	}

	conf := 1.0
	var issues []string

	for _, m := range misconceptions {
		if m.re.MatchString(content) {
			conf -= misconceptionPenalty
			issues = append(issues, m.issue)
		}
	}

	for _, claim := range absoluteClaims.FindAllString(content, -1) {
		conf -= absoluteClaimPenalty
		issues = append(issues, fmt.Sprintf("absolute claim: %q", strings.ToLower(claim)))
	}

	for _, d := range doseStatements(content) {
		limit := maxSingleDoseMg[d.drug]
		if d.mg > limit {
			conf -= doseRangePenalty
			issues = append(issues, fmt.Sprintf("dose out of reference range: %s mg %s (max %s mg)",
				formatMg(d.mg), d.drug, formatMg(limit)))
		}
	}

	return AccuracyResult{Confidence: clamp(conf), Issues: issues}
}

type dose struct {
	drug string
	mg   float64
}

func doseStatements(content string) []dose {
	var out []dose
	for _, m := range doseFirst.FindAllStringSubmatch(content, -1) {
		if d, ok := toDose(m[3], m[1], m[2]); ok {
			out = append(out, d)
		}
	}
	for _, m := range drugFirst.FindAllStringSubmatch(content, -1) {
		if d, ok := toDose(m[1], m[2], m[3]); ok {
			out = append(out, d)
		}
	}
	return out
}

func toDose(drug, amount, unit string) (dose, bool) {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return dose{}, false
	}
	mult, ok := unitToMgMult[strings.ToLower(unit)]
	if !ok {
		return dose{}, false
	}
	return dose{drug: strings.ToLower(drug), mg: v * mult}, true
}

func formatMg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

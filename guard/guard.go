// Package guard implements the Guard Agent: three ordered, short-circuiting
// screens (safety, appropriateness, accuracy) that turn generated content
// into a core.ValidationResult. The agent is a pure function of its inputs;
// it performs no retries and keeps no state between calls.
package guard

import (
	"github.com/hupe1980/medguard/core"
)

// Harm categories reported by safety screens.
const (
	CategorySelfHarm               = "self-harm"
	CategorySubstanceMisuse        = "substance-misuse"
	CategoryDangerousSelfTreatment = "dangerous-self-treatment"
)

// IssueLowConfidence is reported when an accuracy screen scores below the
// approval threshold without naming a concrete issue.
const IssueLowConfidence = "low accuracy confidence"

// SafetyResult is the outcome of a safety screen.
type SafetyResult struct {
	Safe    bool
	Reasons []string
}

// SafetyScreen classifies text against the harm categories.
type SafetyScreen interface {
	Screen(text string) SafetyResult
}

// AppropriatenessResult is the outcome of an appropriateness screen.
type AppropriatenessResult struct {
	Appropriate bool
	Reasons     []string
}

// AppropriatenessScreen checks content suitability for a caller role.
type AppropriatenessScreen interface {
	Screen(content string, turns []core.Turn, role core.Role) AppropriatenessResult
}

// AccuracyResult is the outcome of an accuracy screen.
type AccuracyResult struct {
	Confidence float64
	Issues     []string
}

// AccuracyScreen scores medical-factual confidence in [0,1].
type AccuracyScreen interface {
	Score(content string, turns []core.Turn) AccuracyResult
}

// Options configures an Agent.
type Options struct {
	Safety          SafetyScreen
	Appropriateness AppropriatenessScreen
	Accuracy        AccuracyScreen

	// ApprovalThreshold separates approved content from content that needs
	// correction.
	ApprovalThreshold float64

	// UncertaintyThreshold marks approved content scoring below it as
	// uncertain. It must not be lower than ApprovalThreshold.
	UncertaintyThreshold float64
}

// Agent runs the screens in order.
type Agent struct {
	opts Options
}

// New builds an Agent with the default lexicon screens.
func New(optFns ...func(o *Options)) *Agent {
	opts := Options{
		Safety:               NewLexiconSafety(),
		Appropriateness:      NewRoleScreen(),
		Accuracy:             NewReferenceAccuracy(),
		ApprovalThreshold:    0.7,
		UncertaintyThreshold: 0.85,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.UncertaintyThreshold < opts.ApprovalThreshold {
		opts.UncertaintyThreshold = opts.ApprovalThreshold
	}
	return &Agent{opts: opts}
}

// Options returns the effective options.
func (a *Agent) Options() Options { return a.opts }

// ScreenPrompt runs only the safety screen over a caller's prompt.
func (a *Agent) ScreenPrompt(prompt string) core.ValidationResult {
	if res := a.opts.Safety.Screen(prompt); !res.Safe {
		return unsafe(res.Reasons)
	}
	return core.ValidationResult{IsValid: true, Confidence: 1, Verdict: core.VerdictPass}
}

// Validate runs safety, appropriateness and accuracy in order, stopping at
// the first failing screen.
func (a *Agent) Validate(content string, turns []core.Turn, role core.Role) core.ValidationResult {
	if res := a.opts.Safety.Screen(content); !res.Safe {
		return unsafe(res.Reasons)
	}

	if res := a.opts.Appropriateness.Screen(content, turns, role); !res.Appropriate {
		return core.ValidationResult{
			IsValid: false,
			Issues:  core.IssueSet(res.Reasons...),
			Verdict: core.VerdictInappropriate,
		}
	}

	acc := a.opts.Accuracy.Score(content, turns)
	conf := clamp(acc.Confidence)

	// Any concrete issue sends the content to correction, whatever its score.
	if conf < a.opts.ApprovalThreshold || len(acc.Issues) > 0 {
		issues := core.IssueSet(acc.Issues...)
		if len(issues) == 0 {
			issues = []string{IssueLowConfidence}
		}
		return core.ValidationResult{
			IsValid:    false,
			Confidence: conf,
			Issues:     issues,
			Verdict:    core.VerdictInaccurate,
		}
	}

	return core.ValidationResult{
		IsValid:    true,
		Confidence: conf,
		Verdict:    core.VerdictPass,
		Uncertain:  conf < a.opts.UncertaintyThreshold,
	}
}

func unsafe(reasons []string) core.ValidationResult {
	return core.ValidationResult{
		IsValid: false,
		Issues:  core.IssueSet(reasons...),
		Verdict: core.VerdictUnsafe,
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

package guard

import (
	"testing"

	"github.com/hupe1980/medguard/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedAccuracy struct{ res AccuracyResult }

func (f fixedAccuracy) Score(string, []core.Turn) AccuracyResult { return f.res }

type countingSafety struct{ calls int }

func (c *countingSafety) Screen(string) SafetyResult {
	c.calls++
	return SafetyResult{Safe: true}
}

func TestValidate_Pass(t *testing.T) {
	a := New()
	v := a.Validate("Paracetamol 500 mg can relieve mild pain. Follow the label.", nil, core.RoleStudent)
	assert.True(t, v.IsValid)
	assert.Equal(t, core.VerdictPass, v.Verdict)
	assert.Equal(t, 1.0, v.Confidence)
	assert.False(t, v.Uncertain)
	assert.Empty(t, v.Issues)
}

func TestValidate_SelfHarmIsUnsafe(t *testing.T) {
	a := New()
	v := a.Validate("Here is how to kill yourself quickly.", nil, core.RoleFaculty)
	assert.False(t, v.IsValid)
	assert.Equal(t, core.VerdictUnsafe, v.Verdict)
	assert.True(t, v.HasIssue(CategorySelfHarm))
}

func TestValidate_ClinicalDiscussionIsSafe(t *testing.T) {
	a := New()
	v := a.Validate("Suicide risk assessment should ask directly about intent and plan.", nil, core.RoleStudent)
	assert.NotEqual(t, core.VerdictUnsafe, v.Verdict)
}

func TestValidate_SafetyShortCircuits(t *testing.T) {
	a := New(func(o *Options) {
		o.Accuracy = fixedAccuracy{AccuracyResult{Confidence: 0.1}}
	})
	v := a.Validate("Drink bleach to stop the infection.", nil, core.RoleStudent)
	assert.Equal(t, core.VerdictUnsafe, v.Verdict)
	assert.Equal(t, []string{CategoryDangerousSelfTreatment}, v.Issues)
}

func TestValidate_MultipleCategories(t *testing.T) {
	v := New().Validate("Snort oxycodone, then stop taking your insulin.", nil, core.RoleStudent)
	assert.Equal(t, []string{CategoryDangerousSelfTreatment, CategorySubstanceMisuse}, v.Issues)
}

func TestValidate_AnswerKeyDeniedToStudents(t *testing.T) {
	a := New()
	content := "Answer key: 1-B, 2-D, 3-A."

	v := a.Validate(content, nil, core.RoleStudent)
	assert.False(t, v.IsValid)
	assert.Equal(t, core.VerdictInappropriate, v.Verdict)
	assert.True(t, v.HasIssue(ReasonFacultyOnly))

	v = a.Validate(content, nil, core.RoleFaculty)
	assert.True(t, v.IsValid)
}

func TestValidate_PatientIdentifiersDeniedToEveryone(t *testing.T) {
	v := New().Validate("Case study. MRN: 8812345. Presented with chest pain.", nil, core.RoleFaculty)
	assert.Equal(t, core.VerdictInappropriate, v.Verdict)
	assert.True(t, v.HasIssue(ReasonPatientIdentifiers))
}

func TestValidate_InaccurateBelowThreshold(t *testing.T) {
	a := New(func(o *Options) {
		o.Accuracy = fixedAccuracy{AccuracyResult{Confidence: 0.55, Issues: []string{"b", "a", "a"}}}
	})
	v := a.Validate("text", nil, core.RoleStudent)
	assert.False(t, v.IsValid)
	assert.Equal(t, core.VerdictInaccurate, v.Verdict)
	assert.Equal(t, 0.55, v.Confidence)
	assert.Equal(t, []string{"a", "b"}, v.Issues)
}

func TestValidate_LowConfidenceWithoutIssues(t *testing.T) {
	a := New(func(o *Options) { o.Accuracy = fixedAccuracy{AccuracyResult{Confidence: 0.4}} })
	v := a.Validate("text", nil, core.RoleStudent)
	assert.Equal(t, []string{IssueLowConfidence}, v.Issues)
}

func TestValidate_UncertainBand(t *testing.T) {
	a := New(func(o *Options) { o.Accuracy = fixedAccuracy{AccuracyResult{Confidence: 0.75}} })
	v := a.Validate("text", nil, core.RoleStudent)
	assert.True(t, v.IsValid)
	assert.True(t, v.Uncertain)
	assert.Empty(t, v.Issues)

	a = New(func(o *Options) { o.Accuracy = fixedAccuracy{AccuracyResult{Confidence: 0.85}} })
	v = a.Validate("text", nil, core.RoleStudent)
	assert.True(t, v.IsValid)
	assert.False(t, v.Uncertain)
}

func TestValidate_IssuesAboveThresholdNeedCorrection(t *testing.T) {
	a := New(func(o *Options) {
		o.Accuracy = fixedAccuracy{AccuracyResult{Confidence: 0.75, Issues: []string{"minor"}}}
	})
	v := a.Validate("text", nil, core.RoleStudent)
	assert.False(t, v.IsValid)
	assert.Equal(t, core.VerdictInaccurate, v.Verdict)
	assert.Equal(t, 0.75, v.Confidence)
	assert.Equal(t, []string{"minor"}, v.Issues)

	v = New().Validate("Paracetamol is guaranteed to cure headaches.", nil, core.RoleStudent)
	assert.False(t, v.IsValid)
	assert.Equal(t, core.VerdictInaccurate, v.Verdict)
	assert.InDelta(t, 0.85, v.Confidence, 1e-9)
	require.Len(t, v.Issues, 1)
	assert.Contains(t, v.Issues[0], "absolute claim")
}

func TestValidate_ConfidenceClamped(t *testing.T) {
	a := New(func(o *Options) { o.Accuracy = fixedAccuracy{AccuracyResult{Confidence: 3}} })
	assert.Equal(t, 1.0, a.Validate("x", nil, core.RoleStudent).Confidence)

	a = New(func(o *Options) { o.Accuracy = fixedAccuracy{AccuracyResult{Confidence: -1}} })
	assert.Equal(t, 0.0, a.Validate("x", nil, core.RoleStudent).Confidence)
}

func TestValidate_IsPure(t *testing.T) {
	a := New()
	content := "Antibiotics cure the common cold and are 100% effective."
	first := a.Validate(content, nil, core.RoleStudent)
	second := a.Validate(content, nil, core.RoleStudent)
	assert.Equal(t, first, second)
}

func TestNew_UncertaintyNeverBelowApproval(t *testing.T) {
	a := New(func(o *Options) {
		o.ApprovalThreshold = 0.8
		o.UncertaintyThreshold = 0.5
	})
	assert.Equal(t, 0.8, a.Options().UncertaintyThreshold)
}

func TestScreenPrompt(t *testing.T) {
	a := New()
	v := a.ScreenPrompt("What is the easiest way to end my life?")
	assert.Equal(t, core.VerdictUnsafe, v.Verdict)
	assert.True(t, v.HasIssue(CategorySelfHarm))

	safety := &countingSafety{}
	a = New(func(o *Options) { o.Safety = safety })
	require.True(t, a.ScreenPrompt("Explain the Krebs cycle").IsValid)
	assert.Equal(t, 1, safety.calls)
}

func TestReferenceAccuracy(t *testing.T) {
	s := NewReferenceAccuracy()

	res := s.Score("   ", nil)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, []string{"empty content"}, res.Issues)

	res = s.Score("Ibuprofen reduces inflammation.", nil)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Empty(t, res.Issues)

	res = s.Score("Antibiotics cure the common cold.", nil)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "antibiotics")

	res = s.Score("This remedy always cures headaches and has no side effects.", nil)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
	assert.Len(t, res.Issues, 2)

	res = s.Score("Take 2 g of paracetamol at once.", nil)
	assert.InDelta(t, 0.65, res.Confidence, 1e-9)
	assert.Equal(t, []string{"dose out of reference range: 2000 mg paracetamol (max 1000 mg)"}, res.Issues)

	res = s.Score("Ibuprofen 400 mg every 6 hours.", nil)
	assert.Equal(t, 1.0, res.Confidence)

	res = s.Score("Vaccines cause autism, antibiotics cure the flu, and aspirin 5000 mg is guaranteed to work.", nil)
	assert.Equal(t, 0.0, res.Confidence)
}

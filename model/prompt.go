package model

import (
	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/internal/util"
)

const baseInstructions = `You are a medical education assistant writing for a {{ .role }} audience.
Be factually careful, cite dosage ranges only when they are standard, and never
present a treatment as guaranteed. {{ .task }}`

const correctionTemplate = `Your previous answer was rejected by a medical accuracy review.
Issues found: {{ join "; " .issues }}.

Rewrite the answer so that every issue is fixed. Keep the same format and scope.

Previous answer:
{{ .previous }}

Original request:
{{ .prompt }}`

func taskFor(kind core.Kind) string {
	switch kind {
	case core.KindChat:
		return "Answer the question conversationally in a few short paragraphs."
	case core.KindQuiz:
		return "Write a multiple-choice quiz. Number each question and give four options labelled A-D."
	case core.KindMindMap:
		return "Produce an indented outline with one central topic and at most three levels of branches."
	case core.KindInfographic:
		return "Produce short headline and caption pairs suitable for an infographic, one pair per line."
	case core.KindSlide:
		return "Produce slide deck copy: a title line per slide followed by at most five bullet points."
	case core.KindDocQA:
		return "Answer strictly from the supplied document excerpts. Say so when the excerpts do not contain the answer."
	default:
		return ""
	}
}

// Instructions renders the system instructions for kind and role.
func Instructions(kind core.Kind, role core.Role) string {
	return util.MustRender(baseInstructions, map[string]any{
		"role": role.String(),
		"task": taskFor(kind),
	})
}

// BuildPrompt converts a request into provider input.
func BuildPrompt(req core.Request) Prompt {
	return Prompt{
		Instructions: Instructions(req.Kind, req.Role),
		Context:      req.Context(),
		Text:         req.Prompt,
	}
}

// CorrectionPrompt asks the model to regenerate previous with the reported
// accuracy issues fixed.
func CorrectionPrompt(req core.Request, previous string, issues []string) Prompt {
	p := BuildPrompt(req)
	p.Text = util.MustRender(correctionTemplate, map[string]any{
		"issues":   issues,
		"previous": previous,
		"prompt":   req.Prompt,
	})
	return p
}

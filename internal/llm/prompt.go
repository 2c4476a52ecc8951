package llm

import (
	"fmt"
	"strings"

	"github.com/finbrief/finbrief/constants"
)

var sectionLabels = map[constants.SummarySection]string{
	constants.SectionBusiness:    "Business description (Item 1)",
	constants.SectionRiskFactors: "Risk factors (Item 1A)",
	constants.SectionMDA:         "Management's discussion and analysis (Item 7)",
}

// BuildSystemPrompt composes the system message for one summary request.
func BuildSystemPrompt(req SummaryRequest) string {
	parts := []string{
		"You are a financial analyst summarizing SEC filings for retail investors. Return ONLY JSON that matches the provided JSON Schema.",
		"Write in plain language. Do not give investment advice.",
		"The 'headline' is one factual sentence. The 'body' is 2-4 short paragraphs. 'key_points' are 3-7 specific, concrete bullets.",
	}
	switch req.Kind {
	case constants.SummaryKindDocument:
		label := sectionLabels[req.Section]
		if label == "" {
			label = string(req.Section)
		}
		parts = append(parts,
			fmt.Sprintf("You are summarizing the %s section of a %s filed by %s.", label, req.Form, req.CompanyName),
			"Cover only what the section states; do not speculate beyond it.")
	case constants.SummaryKindAggregate:
		parts = append(parts,
			fmt.Sprintf("You are combining section summaries from %s's fiscal year %d filings into one annual overview.", req.CompanyName, req.FiscalYear),
			"Reconcile the inputs; call out tensions between stated risks and management's discussion.")
	case constants.SummaryKindFrontpage:
		parts = append(parts,
			fmt.Sprintf("You are writing the top-level company overview for %s from its annual summaries.", req.CompanyName),
			"Emphasize multi-year trends over single-year detail.")
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt renders the source material for one summary request.
func BuildUserPrompt(req SummaryRequest) string {
	var b strings.Builder
	switch req.Kind {
	case constants.SummaryKindDocument:
		fmt.Fprintf(&b, "Company: %s (%s)\nForm: %s\nSection: %s\n\n", req.CompanyName, req.Ticker, req.Form, req.Section)
		b.WriteString("Section text:\n")
		b.WriteString(req.SourceText)
	default:
		fmt.Fprintf(&b, "Company: %s (%s)\n\n", req.CompanyName, req.Ticker)
		for _, src := range req.Sources {
			fmt.Fprintf(&b, "--- %s ---\n%s\n\n", src.Label, src.Text)
		}
	}
	return b.String()
}

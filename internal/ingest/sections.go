package ingest

import (
	"html"
	"regexp"
	"strings"

	"github.com/finbrief/finbrief/constants"
)

// maxSectionLen bounds stored section text; EDGAR primary documents run to
// megabytes and the LLM context does not.
const maxSectionLen = 60000

var (
	tagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe = regexp.MustCompile(`[ \t\r\f]+`)
	blankRe = regexp.MustCompile(`\n{3,}`)
	itemRe  = regexp.MustCompile(`(?i)\bITEM\s+(\d+[A-Z]?)\b`)
)

// sectionBounds maps a qualifying section to its opening item marker and the
// markers that end it, in 10-K/10-Q item order.
var sectionBounds = map[constants.SummarySection]struct {
	start string
	stops []string
}{
	constants.SectionBusiness:    {start: "1", stops: []string{"1A", "1B", "2"}},
	constants.SectionRiskFactors: {start: "1A", stops: []string{"1B", "2", "3"}},
	constants.SectionMDA:         {start: "7", stops: []string{"7A", "8"}},
}

// StripHTML flattens a filing document to plain text.
func StripHTML(doc string) string {
	text := tagRe.ReplaceAllString(doc, " ")
	text = html.UnescapeString(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ExtractSections pulls the qualifying item sections out of a flattened
// filing. Item markers also appear in the table of contents, so for each
// marker the last occurrence wins. A section that cannot be located is
// simply absent from the result.
func ExtractSections(text string) map[constants.SummarySection]string {
	positions := map[string]int{}
	for _, m := range itemRe.FindAllStringSubmatchIndex(text, -1) {
		item := strings.ToUpper(text[m[2]:m[3]])
		positions[item] = m[0]
	}

	out := make(map[constants.SummarySection]string)
	for section, bounds := range sectionBounds {
		start, ok := positions[bounds.start]
		if !ok {
			continue
		}
		end := len(text)
		for _, stop := range bounds.stops {
			if p, ok := positions[stop]; ok && p > start && p < end {
				end = p
			}
		}
		body := strings.TrimSpace(text[start:end])
		if len(body) < 200 {
			// Marker hit without real content, likely a stray cross-reference.
			continue
		}
		if len(body) > maxSectionLen {
			body = body[:maxSectionLen]
		}
		out[section] = body
	}
	return out
}

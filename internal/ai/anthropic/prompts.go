package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/astraea-labs/astraea/internal/domain"
)

// buildInterpretationPrompt creates the prompt for interpreting a
// calculated chart into named report sections.
func buildInterpretationPrompt(action domain.ActionType, chartData json.RawMessage) string {
	var task string
	switch action {
	case domain.ActionComparison:
		task = `You are interpreting a compatibility comparison between two people.
Write a balanced reading of their dynamic: strengths, friction points, and
practical advice. Ground every statement in the chart data provided; do not
invent placements.`
	case domain.ActionAnnualReading:
		task = `You are interpreting a personal chart for a specific target period.
Focus on themes, opportunities, and cautions for that period. Ground every
statement in the chart data provided; do not invent placements.`
	default:
		task = `You are interpreting a personal lifetime chart.
Write a grounded, specific reading of the person's core patterns. Ground
every statement in the chart data provided; do not invent placements.`
	}

	return fmt.Sprintf(`%s

**Chart data:**
%s

**Response format:**
Return a JSON object with exactly this structure and nothing else:

{
  "sections": {
    "overview": "...",
    "career": "...",
    "wealth": "...",
    "relationships": "...",
    "health": "...",
    "timing": "..."
  }
}

Each section should be 2-4 paragraphs of plain prose. Write in second
person. Do not include markdown headings inside section values.`, task, chartData)
}

package agent

import (
	"fmt"
	"strings"

	"retail-analytics-copilot/pkg/sqltool"
)

// maxRenderedRows bounds how much of a result set is pasted into the
// synthesis prompt. Aggregate queries rarely return more than a handful of
// rows; anything larger is truncated with a marker rather than blowing up
// the prompt.
const maxRenderedRows = 20

// renderResult flattens a query result into a pipe-separated text table for
// the synthesis prompt. Empty results render as an explicit marker so the
// model does not hallucinate rows.
func renderResult(r *sqltool.QueryResult) string {
	if r == nil || len(r.Columns) == 0 {
		return ""
	}
	cols := r.Columns
	rows := r.Rows

	var b strings.Builder
	b.WriteString(strings.Join(cols, " | "))
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString("(no rows)\n")
		return b.String()
	}

	limit := len(rows)
	if limit > maxRenderedRows {
		limit = maxRenderedRows
	}
	for _, row := range rows[:limit] {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = fmt.Sprintf("%v", row[col])
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if len(rows) > limit {
		fmt.Fprintf(&b, "... (%d more rows)\n", len(rows)-limit)
	}
	return b.String()
}

// clipSentences truncates text to at most n sentences, counting on the
// usual terminators. Text with no terminators counts as one sentence.
func clipSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" || n <= 0 {
		return ""
	}
	count := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count == n {
				return strings.TrimSpace(text[:i+1])
			}
		}
	}
	return text
}

// templatedExplanation builds a minimal provenance sentence when the model
// gave none, keeping the explanation field populated in degraded paths.
func templatedExplanation(s *State) string {
	var parts []string
	switch s.Route {
	case RouteRAG:
		parts = append(parts, "Answered from the policy and marketing documents")
	case RouteSQL:
		parts = append(parts, "Answered by querying the sales database")
	default:
		parts = append(parts, "Answered by combining document context with a database query")
	}
	if s.Route != RouteRAG {
		if s.SQLError != nil {
			parts = append(parts, fmt.Sprintf("the SQL step failed after %d repair attempts", s.RepairCount))
		} else if s.RepairCount > 0 {
			parts = append(parts, fmt.Sprintf("the query succeeded after %d repair attempts", s.RepairCount))
		}
	}
	return strings.Join(parts, "; ") + "."
}

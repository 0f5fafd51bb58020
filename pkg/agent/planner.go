package agent

import (
	"regexp"
	"strings"

	"retail-analytics-copilot/pkg/store"
)

// CostOfGoodsFactor is the fixed approximation used for margin arithmetic
// when the dataset carries no real cost column: CostOfGoods = 0.7 × UnitPrice.
const CostOfGoodsFactor = "0.7"

// dateRange matches "YYYY-MM-DD to YYYY-MM-DD" style spans, tolerating a few
// separator spellings found in the marketing calendar.
var dateRange = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s*(?:to|through|until|[-–—])\s*(\d{4}-\d{2}-\d{2})`)

// Northwind-style product categories. Matched case-insensitively against the
// question text.
var knownCategories = []string{
	"Beverages", "Condiments", "Confections", "Dairy Products",
	"Grains/Cereals", "Meat/Poultry", "Produce", "Seafood",
}

// kpiNames maps question keywords onto the KPI labels used in the
// definitions document. Ordered so longer keywords win and extraction stays
// deterministic.
var kpiNames = []struct {
	keyword string
	label   string
}{
	{"average order value", "Average Order Value"},
	{"aov", "Average Order Value"},
	{"gross margin", "Gross Margin"},
	{"repeat purchase", "Repeat Purchase Rate"},
	{"margin", "Gross Margin"},
}

// PlanConstraints scans retrieved chunks for structured patterns and derives
// the constraint mapping used to bias SQL generation. It is pure and
// side-effect-free; finding nothing is not an error — an empty map means
// unconstrained generation.
//
// Extracted constraints:
//   - date_start / date_end: a campaign date range, preferring the range
//     whose surrounding text shares words with the question
//   - kpi_formula: the formula line for a KPI the question names
//   - category: a known product category the question names
//   - cost_of_goods: fixed factor, present only when margin arithmetic is
//     requested
func PlanConstraints(question string, chunks []store.Chunk) map[string]string {
	constraints := make(map[string]string)

	if start, end, ok := findDateRange(question, chunks); ok {
		constraints["date_start"] = start
		constraints["date_end"] = end
	}

	if formula, ok := findKPIFormula(question, chunks); ok {
		constraints["kpi_formula"] = formula
	}

	lowerQ := strings.ToLower(question)
	for _, cat := range knownCategories {
		if strings.Contains(lowerQ, strings.ToLower(cat)) {
			constraints["category"] = cat
			break
		}
	}

	if strings.Contains(lowerQ, "margin") || strings.Contains(lowerQ, "profit") {
		constraints["cost_of_goods"] = CostOfGoodsFactor + " * UnitPrice"
	}

	return constraints
}

// findDateRange picks the date span most relevant to the question. Each
// range is scored by how many question words appear on its line; the first
// best-scoring range wins so extraction stays deterministic.
func findDateRange(question string, chunks []store.Chunk) (string, string, bool) {
	questionWords := significantWords(question)

	bestStart, bestEnd := "", ""
	bestScore := -1
	for _, chunk := range chunks {
		for _, line := range strings.Split(chunk.Text, "\n") {
			m := dateRange.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			score := 0
			lowerLine := strings.ToLower(line)
			for word := range questionWords {
				if strings.Contains(lowerLine, word) {
					score++
				}
			}
			if score > bestScore {
				bestScore = score
				bestStart, bestEnd = m[1], m[2]
			}
		}
	}

	return bestStart, bestEnd, bestScore >= 0
}

// findKPIFormula returns the definition line for a KPI named in the
// question, searching chunk lines that contain "=".
func findKPIFormula(question string, chunks []store.Chunk) (string, bool) {
	lowerQ := strings.ToLower(question)

	// Documents may spell the KPI either way ("AOV" or "Average Order
	// Value"), so both the keyword and the canonical label are acceptable
	// matches on a definition line.
	var label string
	for _, kpi := range kpiNames {
		if strings.Contains(lowerQ, kpi.keyword) {
			label = kpi.label
			break
		}
	}
	if label == "" {
		return "", false
	}
	wanted := []string{strings.ToLower(label)}
	for _, kpi := range kpiNames {
		if kpi.label == label {
			wanted = append(wanted, kpi.keyword)
		}
	}

	for _, chunk := range chunks {
		for _, line := range strings.Split(chunk.Text, "\n") {
			if !strings.Contains(line, "=") {
				continue
			}
			lowerLine := strings.ToLower(line)
			for _, term := range wanted {
				if strings.Contains(lowerLine, term) {
					return strings.TrimSpace(line), true
				}
			}
		}
	}
	return "", false
}

// significantWords lowercases and keeps words of 4+ runes, enough to match a
// campaign name without tripping over stopwords.
func significantWords(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!\"'()")
		if len(w) >= 4 {
			words[w] = struct{}{}
		}
	}
	return words
}

package agent

import (
	"strings"
)

// Quantitative vocabulary signalling that a question needs the dataset.
var sqlVocabulary = []string{
	"how many", "how much", "count", "total", "sum", "average", "avg",
	"revenue", "top ", "top-", "highest", "lowest", "most ", "least ",
	"number of", "aov", "margin", "orders", "quantity", "units sold",
	"sales", "price", "per customer", "per product", "per category",
}

// Marketing/calendar/policy vocabulary signalling that document context is
// needed alongside (or instead of) SQL.
var docVocabulary = []string{
	"campaign", "period", "during", "calendar", "promotion", "policy",
	"return", "window", "warranty", "according to", "document", "docs",
	"kpi", "formula", "definition", "defined",
}

// FallbackRoute deterministically classifies a question from its vocabulary.
// It engages when LLM classification fails or returns an unlisted label, and
// guarantees the route is never left unset: quantitative vocabulary means
// sql, quantitative plus marketing/calendar vocabulary means hybrid,
// anything else means rag.
func FallbackRoute(question string) Route {
	lower := strings.ToLower(question)

	quantitative := containsAny(lower, sqlVocabulary)
	contextual := containsAny(lower, docVocabulary)

	switch {
	case quantitative && contextual:
		return RouteHybrid
	case quantitative:
		return RouteSQL
	default:
		return RouteRAG
	}
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

// ParseRoute normalizes a raw classification label. ok is false for anything
// outside the route set.
func ParseRoute(raw string) (Route, bool) {
	switch Route(strings.ToLower(strings.TrimSpace(raw))) {
	case RouteRAG:
		return RouteRAG, true
	case RouteSQL:
		return RouteSQL, true
	case RouteHybrid:
		return RouteHybrid, true
	default:
		return "", false
	}
}

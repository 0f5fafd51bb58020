package agent

import (
	"regexp"
	"strings"

	"retail-analytics-copilot/pkg/store"
)

// tableRef matches table names after FROM/JOIN, including quoted names like
// "Order Details". Subqueries are skipped because "(" cannot start a match.
var tableRef = regexp.MustCompile(`(?i)\b(?:from|join)\s+("[^"]+"|[A-Za-z_][A-Za-z0-9_]*)`)

// BuildCitations assembles the citation set for one request: every table
// referenced by the executed SQL (first-reference order), then every chunk
// consulted by the route actually taken (retrieval order). Deduplication is
// case-insensitive with the first-seen spelling kept. Never nil.
func BuildCitations(sqlText string, chunks []store.Chunk) []string {
	citations := []string{}
	seen := make(map[string]struct{})

	for _, table := range TablesInSQL(sqlText) {
		key := strings.ToLower(table)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, table)
	}

	for _, chunk := range chunks {
		key := strings.ToLower(chunk.ID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, chunk.ID)
	}

	return citations
}

// TablesInSQL extracts table names from a SQL statement in first-reference
// order, deduplicated case-insensitively.
func TablesInSQL(sqlText string) []string {
	if sqlText == "" {
		return nil
	}

	var tables []string
	seen := make(map[string]struct{})
	for _, m := range tableRef.FindAllStringSubmatch(sqlText, -1) {
		name := strings.Trim(m[1], `"`)
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}

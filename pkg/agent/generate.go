package agent

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"retail-analytics-copilot/pkg/llm"
	"retail-analytics-copilot/pkg/store"
)

// GenerationFailure is the typed failure returned when the text-completion
// service produced nothing parseable. Callers treat it like an execution
// error for routing purposes; it never propagates as a panic.
type GenerationFailure struct {
	Op     string // "classify", "generate_sql", "synthesize"
	Reason string
}

func (f *GenerationFailure) Error() string {
	return fmt.Sprintf("generation failure in %s: %s", f.Op, f.Reason)
}

// Generator is the seam the orchestrator drives. GenerationAdapter is the
// production implementation; tests substitute stubs.
type Generator interface {
	Classify(ctx context.Context, question string) (Route, error)
	GenerateSQL(ctx context.Context, req SQLRequest) (string, error)
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// SQLRequest carries everything SQL generation may condition on, including
// the prior failed attempts during repair.
type SQLRequest struct {
	Question    string
	Schema      string
	Constraints map[string]string
	PriorErrors []RepairNote
}

// SynthesisRequest carries the evidence available for answer synthesis.
type SynthesisRequest struct {
	Question   string
	FormatHint FormatHint
	SQLResult  string // rendered result table, empty if none
	Chunks     []store.Chunk
}

// SynthesisResult is the parsed synthesis output before coercion.
type SynthesisResult struct {
	Answer      string
	Explanation string
}

// GenerationAdapter wraps the opaque text-completion service behind typed
// request/response contracts. Every call parses the response defensively:
// a labeled-field parse first, a pattern-extraction fallback second, and a
// *GenerationFailure if both fail.
type GenerationAdapter struct {
	provider llm.LLMProvider
	logger   *log.Logger
}

var _ Generator = &GenerationAdapter{}

func NewGenerationAdapter(provider llm.LLMProvider, logger *log.Logger) *GenerationAdapter {
	return &GenerationAdapter{
		provider: provider,
		logger:   logger,
	}
}

// --- Classify ---

func (a *GenerationAdapter) Classify(ctx context.Context, question string) (Route, error) {
	prompt := buildClassifyPrompt(question)

	response, err := a.provider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		a.logger.Printf("[ADAPTER] Classification call failed: %v", err)
		return "", &GenerationFailure{Op: "classify", Reason: err.Error()}
	}

	if route, ok := ParseRoute(labeledField(response, "route")); ok {
		return route, nil
	}
	// Fallback: the label may appear bare anywhere in the response.
	for _, candidate := range []Route{RouteHybrid, RouteSQL, RouteRAG} {
		if strings.Contains(strings.ToLower(response), string(candidate)) {
			return candidate, nil
		}
	}

	return "", &GenerationFailure{Op: "classify", Reason: "no route label in response"}
}

func buildClassifyPrompt(question string) string {
	var b strings.Builder

	b.WriteString("<system>\n")
	b.WriteString("You classify retail-analytics questions. You do NOT answer them.\n")
	b.WriteString("</system>\n\n")

	b.WriteString("<routes>\n")
	b.WriteString("rag: answerable from policy/marketing/KPI documents alone\n")
	b.WriteString("sql: answerable from the sales database alone\n")
	b.WriteString("hybrid: needs document context (dates, formulas) AND the database\n")
	b.WriteString("</routes>\n\n")

	b.WriteString("<question>\n")
	b.WriteString(question)
	b.WriteString("\n</question>\n\n")

	b.WriteString("Respond with exactly one line:\n")
	b.WriteString("route: rag|sql|hybrid\n")

	return b.String()
}

// --- GenerateSQL ---

// sqlStatement extracts the first SELECT/WITH statement from free text.
var sqlStatement = regexp.MustCompile(`(?is)\b(?:select|with)\b.*?(?:;|\z)`)

func (a *GenerationAdapter) GenerateSQL(ctx context.Context, req SQLRequest) (string, error) {
	prompt := buildSQLPrompt(req)

	response, err := a.provider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		a.logger.Printf("[ADAPTER] SQL generation call failed: %v", err)
		return "", &GenerationFailure{Op: "generate_sql", Reason: err.Error()}
	}

	response = stripCodeFences(response)

	if sql := strings.TrimSpace(labeledBlock(response, "sql")); sql != "" {
		return sql, nil
	}
	if sql := strings.TrimSpace(sqlStatement.FindString(response)); sql != "" {
		return sql, nil
	}

	return "", &GenerationFailure{Op: "generate_sql", Reason: "no SQL statement in response"}
}

func buildSQLPrompt(req SQLRequest) string {
	var b strings.Builder

	b.WriteString("<system>\n")
	b.WriteString("You translate retail-analytics questions into a single SQLite SELECT query.\n")
	b.WriteString("Reference ONLY tables and columns from the schema below.\n")
	b.WriteString("Never write INSERT, UPDATE, DELETE, DROP, ALTER or ATTACH.\n")
	b.WriteString("</system>\n\n")

	b.WriteString("<schema>\n")
	b.WriteString(req.Schema)
	b.WriteString("</schema>\n\n")

	if len(req.Constraints) > 0 {
		b.WriteString("<constraints>\n")
		for _, key := range sortedKeys(req.Constraints) {
			b.WriteString(fmt.Sprintf("%s: %s\n", key, req.Constraints[key]))
		}
		b.WriteString("Apply date constraints as WHERE date BETWEEN date_start AND date_end.\n")
		b.WriteString("</constraints>\n\n")
	}

	if len(req.PriorErrors) > 0 {
		b.WriteString("<previous_attempts>\n")
		for i, note := range req.PriorErrors {
			b.WriteString(fmt.Sprintf("Attempt %d failed.\nSQL: %s\nError: %s\n\n", i+1, note.SQL, note.Message))
		}
		b.WriteString("Fix the error. Do not repeat the same mistake.\n")
		b.WriteString("</previous_attempts>\n\n")
	}

	b.WriteString("<question>\n")
	b.WriteString(req.Question)
	b.WriteString("\n</question>\n\n")

	b.WriteString("Respond with exactly:\n")
	b.WriteString("sql: <the query>\n")

	return b.String()
}

// --- Synthesize ---

func (a *GenerationAdapter) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	prompt := buildSynthesisPrompt(req)

	response, err := a.provider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		a.logger.Printf("[ADAPTER] Synthesis call failed: %v", err)
		return nil, &GenerationFailure{Op: "synthesize", Reason: err.Error()}
	}

	answer := strings.TrimSpace(labeledBlock(response, "answer"))
	explanation := strings.TrimSpace(labeledField(response, "explanation"))

	if answer == "" {
		// Fallback: treat the whole response as the raw answer.
		answer = strings.TrimSpace(stripCodeFences(response))
	}
	if answer == "" {
		return nil, &GenerationFailure{Op: "synthesize", Reason: "empty synthesis response"}
	}

	return &SynthesisResult{Answer: answer, Explanation: explanation}, nil
}

func buildSynthesisPrompt(req SynthesisRequest) string {
	var b strings.Builder

	b.WriteString("<system>\n")
	b.WriteString("You produce the final answer to a retail-analytics question from the evidence below.\n")
	b.WriteString("Use ONLY the provided evidence. Do not invent numbers.\n")
	b.WriteString("</system>\n\n")

	if len(req.Chunks) > 0 {
		b.WriteString("<documents>\n")
		for _, chunk := range req.Chunks {
			b.WriteString(fmt.Sprintf("--- %s (score %.2f) ---\n%s\n", chunk.ID, chunk.Score, chunk.Text))
		}
		b.WriteString("</documents>\n\n")
	}

	if req.SQLResult != "" {
		b.WriteString("<sql_result>\n")
		b.WriteString(req.SQLResult)
		b.WriteString("\n</sql_result>\n\n")
	}

	b.WriteString("<question>\n")
	b.WriteString(req.Question)
	b.WriteString("\n</question>\n\n")

	b.WriteString("<output_format>\n")
	b.WriteString(fmt.Sprintf("The answer must match the expected type %q.\n", req.FormatHint))
	b.WriteString("Respond with exactly two lines:\n")
	b.WriteString("answer: <value matching the expected type>\n")
	b.WriteString("explanation: <at most two sentences>\n")
	b.WriteString("</output_format>\n")

	return b.String()
}

// --- parsing helpers ---

// labeledField returns the single-line value following "label:".
func labeledField(response, label string) string {
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, label+":") {
			return strings.TrimSpace(trimmed[len(label)+1:])
		}
	}
	return ""
}

// labeledBlock returns everything after "label:" up to the next known label
// line, so multi-line values (SQL, bracketed lists) survive.
func labeledBlock(response, label string) string {
	lines := strings.Split(response, "\n")
	start := -1
	var first string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), label+":") {
			first = strings.TrimSpace(trimmed[len(label)+1:])
			start = i
			break
		}
	}
	if start == -1 {
		return ""
	}

	parts := []string{first}
	for _, line := range lines[start+1:] {
		if isLabelLine(line) {
			break
		}
		parts = append(parts, line)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

var knownLabels = []string{"route", "sql", "answer", "explanation", "confidence", "citations", "reasoning"}

func isLabelLine(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, label := range knownLabels {
		if strings.HasPrefix(lower, label+":") {
			return true
		}
	}
	return false
}

// stripCodeFences removes markdown ``` fence lines the model may wrap
// output in.
func stripCodeFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

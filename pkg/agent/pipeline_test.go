package agent

import (
	"context"
	"io"
	"log"
	"math"
	"reflect"
	"strings"
	"testing"

	"retail-analytics-copilot/pkg/sqltool"
	"retail-analytics-copilot/pkg/store"
)

// --- stub seams ---

type stubRetriever struct {
	chunks []store.Chunk
}

func (r *stubRetriever) Search(query string, topK int) []store.Chunk {
	return r.chunks
}

// stubDataset returns scripted outcomes per Execute call, so repair paths
// can be exercised deterministically.
type stubDataset struct {
	outcomes []datasetOutcome
	queries  []string
}

type datasetOutcome struct {
	result *sqltool.QueryResult
	err    error
}

func (d *stubDataset) Execute(ctx context.Context, query string) (*sqltool.QueryResult, error) {
	d.queries = append(d.queries, query)
	if len(d.outcomes) == 0 {
		return &sqltool.QueryResult{}, nil
	}
	out := d.outcomes[0]
	if len(d.outcomes) > 1 {
		d.outcomes = d.outcomes[1:]
	}
	return out.result, out.err
}

func (d *stubDataset) Schema(ctx context.Context) (string, error) {
	return "Table: orders\n  - OrderID (INTEGER)\n", nil
}

// stubGenerator answers with fixed route/SQL/synthesis and counts calls.
type stubGenerator struct {
	route        Route
	routeErr     error
	sqls         []string
	sqlCalls     int
	synthesis    *SynthesisResult
	synthesisErr error
}

func (g *stubGenerator) Classify(ctx context.Context, question string) (Route, error) {
	return g.route, g.routeErr
}

func (g *stubGenerator) GenerateSQL(ctx context.Context, req SQLRequest) (string, error) {
	i := g.sqlCalls
	g.sqlCalls++
	if i >= len(g.sqls) {
		i = len(g.sqls) - 1
	}
	return g.sqls[i], nil
}

func (g *stubGenerator) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if g.synthesisErr != nil {
		return nil, g.synthesisErr
	}
	return g.synthesis, nil
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func testAgent(r Retriever, d DatasetTool, g Generator) *Agent {
	return New(r, d, g, 3, log.New(io.Discard, "", 0))
}

// --- scenarios ---

func TestRunRAGOnly(t *testing.T) {
	chunks := []store.Chunk{
		{ID: "product_policy::chunk1", Text: "Unopened Beverages may be returned within 14 days.", Score: 0.8},
	}
	dataset := &stubDataset{}
	gen := &stubGenerator{
		route:     RouteRAG,
		synthesis: &SynthesisResult{Answer: "14 days", Explanation: "Stated in the return policy."},
	}

	s := testAgent(&stubRetriever{chunks: chunks}, dataset, gen).
		Run(context.Background(), "q1", "What is the return window for unopened Beverages?", FormatInt)

	if s.Route != RouteRAG {
		t.Fatalf("Route = %s, want rag", s.Route)
	}
	if s.SQLCandidate != "" {
		t.Errorf("SQLCandidate = %q, want empty on rag route", s.SQLCandidate)
	}
	if len(dataset.queries) != 0 {
		t.Errorf("dataset executed %d queries on rag route, want 0", len(dataset.queries))
	}
	if s.FinalAnswer != 14 {
		t.Errorf("FinalAnswer = %v (%T), want 14", s.FinalAnswer, s.FinalAnswer)
	}
	want := []string{"product_policy::chunk1"}
	if !reflect.DeepEqual(s.Citations, want) {
		t.Errorf("Citations = %v, want %v", s.Citations, want)
	}
	// 0.5 base + 0.2 retrieval, no SQL bonus on the rag route.
	if !approx(s.Confidence, 0.7) {
		t.Errorf("Confidence = %v, want 0.7", s.Confidence)
	}
}

func TestRunSQLDirect(t *testing.T) {
	dataset := &stubDataset{outcomes: []datasetOutcome{
		{result: &sqltool.QueryResult{
			Columns: []string{"n"},
			Rows:    []map[string]any{{"n": int64(16282)}},
		}},
	}}
	gen := &stubGenerator{
		route:     RouteSQL,
		sqls:      []string{"SELECT COUNT(*) AS n FROM Orders"},
		synthesis: &SynthesisResult{Answer: "16282 orders", Explanation: "Counted rows in Orders."},
	}

	s := testAgent(&stubRetriever{}, dataset, gen).
		Run(context.Background(), "q2", "How many orders were placed?", FormatInt)

	if s.Route != RouteSQL {
		t.Fatalf("Route = %s, want sql", s.Route)
	}
	if len(s.RetrievedChunks) != 0 {
		t.Errorf("retrieval ran on sql route")
	}
	if s.FinalAnswer != 16282 {
		t.Errorf("FinalAnswer = %v, want 16282", s.FinalAnswer)
	}
	if s.RepairCount != 0 {
		t.Errorf("RepairCount = %d, want 0", s.RepairCount)
	}
	want := []string{"Orders"}
	if !reflect.DeepEqual(s.Citations, want) {
		t.Errorf("Citations = %v, want %v", s.Citations, want)
	}
	// 0.5 base + 0.2 sql ok + 0.1 rows.
	if !approx(s.Confidence, 0.8) {
		t.Errorf("Confidence = %v, want 0.8", s.Confidence)
	}
}

func TestRunRepairOnceThenSucceed(t *testing.T) {
	dataset := &stubDataset{outcomes: []datasetOutcome{
		{err: &sqltool.QueryError{Kind: sqltool.ErrMissingTable, Message: "no such table: order"}},
		{result: &sqltool.QueryResult{
			Columns: []string{"n"},
			Rows:    []map[string]any{{"n": int64(42)}},
		}},
	}}
	gen := &stubGenerator{
		route:     RouteHybrid,
		sqls:      []string{"SELECT COUNT(*) FROM order", "SELECT COUNT(*) FROM Orders"},
		synthesis: &SynthesisResult{Answer: "42", Explanation: "Counted orders in the campaign window."},
	}
	chunks := []store.Chunk{{ID: "marketing_calendar::chunk1", Text: "1997-04-01 to 1997-05-15", Score: 0.6}}

	s := testAgent(&stubRetriever{chunks: chunks}, dataset, gen).
		Run(context.Background(), "q3", "Orders during the campaign?", FormatInt)

	if s.RepairCount != 1 {
		t.Fatalf("RepairCount = %d, want 1", s.RepairCount)
	}
	if len(s.RepairLog) != 1 || s.RepairLog[0].Message != "no such table: order" {
		t.Fatalf("RepairLog = %+v", s.RepairLog)
	}
	if s.SQLError != nil {
		t.Errorf("SQLError = %v, want nil after successful retry", s.SQLError)
	}
	if s.FinalAnswer != 42 {
		t.Errorf("FinalAnswer = %v, want 42", s.FinalAnswer)
	}
	if gen.sqlCalls != 2 {
		t.Errorf("generation attempts = %d, want 2", gen.sqlCalls)
	}
	want := []string{"Orders", "marketing_calendar::chunk1"}
	if !reflect.DeepEqual(s.Citations, want) {
		t.Errorf("Citations = %v, want %v", s.Citations, want)
	}
	// 0.5 base + 0.2 retrieval (score 0.6) + sql ok + rows - one repair.
	if !approx(s.Confidence, 0.85) {
		t.Errorf("Confidence = %v, want 0.85", s.Confidence)
	}
}

func TestRunRepairExhausted(t *testing.T) {
	failure := &sqltool.QueryError{Kind: sqltool.ErrMissingColumn, Message: "no such column: Revenue"}
	dataset := &stubDataset{outcomes: []datasetOutcome{{err: failure}}}
	gen := &stubGenerator{
		route:     RouteSQL,
		sqls:      []string{"SELECT Revenue FROM Orders"},
		synthesis: &SynthesisResult{Answer: "unknown"},
	}

	s := testAgent(&stubRetriever{}, dataset, gen).
		Run(context.Background(), "q4", "Total revenue?", FormatFloat)

	if s.RepairCount != MaxRepairs {
		t.Fatalf("RepairCount = %d, want %d", s.RepairCount, MaxRepairs)
	}
	// MaxRepairs+1 total generation attempts.
	if gen.sqlCalls != MaxRepairs+1 {
		t.Errorf("generation attempts = %d, want %d", gen.sqlCalls, MaxRepairs+1)
	}
	if s.SQLError == nil || s.SQLError.Kind != sqltool.ErrMissingColumn {
		t.Errorf("SQLError = %v, want surviving missing_column", s.SQLError)
	}
	if _, isFloat := s.FinalAnswer.(float64); !isFloat {
		t.Errorf("FinalAnswer = %T, want float64", s.FinalAnswer)
	}
	// 0.5 base - 2 repairs - failed coercion would be lower; "unknown"
	// coerces to 0.0 with ok=false: 0.5 - 0.3 - 0.1 = 0.1.
	if !approx(s.Confidence, 0.1) {
		t.Errorf("Confidence = %v, want 0.1", s.Confidence)
	}
}

func TestRunRouterFallback(t *testing.T) {
	gen := &stubGenerator{
		routeErr:  &GenerationFailure{Op: "classify", Reason: "model offline"},
		synthesis: &SynthesisResult{Answer: "30 days"},
	}

	s := testAgent(&stubRetriever{}, &stubDataset{}, gen).
		Run(context.Background(), "q5", "What is the return policy window?", FormatString)

	if !s.RouterFellBack {
		t.Error("RouterFellBack = false, want true")
	}
	if s.Route != RouteRAG {
		t.Errorf("Route = %s, want rag from fallback", s.Route)
	}
}

func TestRunEmptyCorpus(t *testing.T) {
	gen := &stubGenerator{
		route:     RouteRAG,
		synthesis: &SynthesisResult{Answer: "I could not find that in the documents."},
	}

	s := testAgent(&stubRetriever{}, &stubDataset{}, gen).
		Run(context.Background(), "q6", "What is the warranty policy?", FormatString)

	if len(s.Citations) != 0 {
		t.Errorf("Citations = %v, want empty", s.Citations)
	}
	if s.Citations == nil {
		t.Error("Citations = nil, want empty slice")
	}
	if !approx(s.Confidence, 0.5) {
		t.Errorf("Confidence = %v, want base 0.5", s.Confidence)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &stubGenerator{
		route:        RouteSQL,
		sqls:         []string{"SELECT 1"},
		synthesisErr: context.Canceled,
	}

	s := testAgent(&stubRetriever{}, &stubDataset{}, gen).
		Run(ctx, "q7", "How many orders?", FormatInt)

	// A cancelled run still terminates with a normally-shaped record.
	if s.Citations == nil {
		t.Error("Citations = nil on cancelled run")
	}
	if _, isInt := s.FinalAnswer.(int); !isInt {
		t.Errorf("FinalAnswer = %T, want int", s.FinalAnswer)
	}
}

func TestRenderResult(t *testing.T) {
	t.Run("nil result", func(t *testing.T) {
		if got := renderResult(nil); got != "" {
			t.Errorf("renderResult(nil) = %q", got)
		}
	})

	t.Run("empty rows marked", func(t *testing.T) {
		got := renderResult(&sqltool.QueryResult{Columns: []string{"n"}})
		if !strings.Contains(got, "(no rows)") {
			t.Errorf("renderResult() = %q, want no-rows marker", got)
		}
	})

	t.Run("rows in column order", func(t *testing.T) {
		got := renderResult(&sqltool.QueryResult{
			Columns: []string{"category", "revenue"},
			Rows:    []map[string]any{{"category": "Beverages", "revenue": 102074.31}},
		})
		want := "category | revenue\nBeverages | 102074.31\n"
		if got != want {
			t.Errorf("renderResult() = %q, want %q", got, want)
		}
	})
}

func TestClipSentences(t *testing.T) {
	tests := []struct {
		text string
		n    int
		want string
	}{
		{"One. Two. Three.", 2, "One. Two."},
		{"Only one sentence.", 2, "Only one sentence."},
		{"No terminator at all", 2, "No terminator at all"},
		{"", 2, ""},
		{"First! Second? Third.", 2, "First! Second?"},
	}
	for _, tt := range tests {
		if got := clipSentences(tt.text, tt.n); got != tt.want {
			t.Errorf("clipSentences(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.want)
		}
	}
}

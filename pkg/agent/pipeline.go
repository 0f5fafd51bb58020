package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"retail-analytics-copilot/pkg/sqltool"
	"retail-analytics-copilot/pkg/store"
)

// maxNodeVisits is a hard cap on state-machine steps per request. The worst
// legal path (full repair loop) visits 13 nodes; anything beyond that is a
// transition bug, and the guard forces termination instead of spinning.
const maxNodeVisits = 16

// Retriever is the lexical index seam.
type Retriever interface {
	Search(query string, topK int) []store.Chunk
}

// DatasetTool is the SQL execution seam. Execute returns the result set or
// an error; a *sqltool.QueryError carries the structured kind the repair
// loop feeds back.
type DatasetTool interface {
	Execute(ctx context.Context, query string) (*sqltool.QueryResult, error)
	Schema(ctx context.Context) (string, error)
}

// Agent owns the question-answering pipeline: one Run call drives one
// PipelineState through the node graph to a terminal result. The agent
// itself is stateless across requests and safe for concurrent Run calls;
// the index and dataset handle are read-only shared resources.
type Agent struct {
	retriever Retriever
	dataset   DatasetTool
	gen       Generator
	weights   ConfidenceWeights
	topK      int
	logger    *log.Logger
}

func New(retriever Retriever, dataset DatasetTool, gen Generator, topK int, logger *log.Logger) *Agent {
	if topK <= 0 {
		topK = 3
	}
	return &Agent{
		retriever: retriever,
		dataset:   dataset,
		gen:       gen,
		weights:   DefaultWeights(),
		topK:      topK,
		logger:    logger,
	}
}

// Run answers one question. It always terminates within maxNodeVisits node
// executions and always returns a fully populated state — failures along
// the way degrade confidence, they never surface as an error.
func (a *Agent) Run(ctx context.Context, questionID, question string, hint FormatHint) *State {
	s := &State{
		QuestionID:  questionID,
		Question:    question,
		FormatHint:  hint,
		Constraints: map[string]string{},
	}

	node := NodeRouter
	for visits := 0; node != NodeOutput; visits++ {
		if visits >= maxNodeVisits {
			a.logger.Printf("[PIPELINE] Visit cap reached at node %s, forcing synthesis", node)
			node = NodeSynthesizer
		}
		// Cancellation is checked between node transitions, not mid-node.
		// A cancelled request still terminates at the synthesizer so the
		// caller gets a normally-shaped record.
		if err := ctx.Err(); err != nil && node != NodeSynthesizer {
			a.logger.Printf("[PIPELINE] Context cancelled before node %s: %v", node, err)
			node = NodeSynthesizer
		}

		switch node {
		case NodeRouter:
			a.runRouter(ctx, s)
		case NodeRetriever:
			a.runRetriever(s)
		case NodePlanner:
			a.runPlanner(s)
		case NodeGenerator:
			a.runGenerator(ctx, s)
		case NodeExecutor:
			a.runExecutor(ctx, s)
		case NodeRepair:
			runRepair(s)
		case NodeSynthesizer:
			a.runSynthesizer(ctx, s)
		}

		node = nextNode(node, s)
	}

	return s
}

func (a *Agent) runRouter(ctx context.Context, s *State) {
	route, err := a.gen.Classify(ctx, s.Question)
	if err != nil {
		route = FallbackRoute(s.Question)
		s.RouterFellBack = true
		a.logger.Printf("[ROUTER] Classification failed (%v), fallback route: %s", err, route)
	} else {
		a.logger.Printf("[ROUTER] Route: %s", route)
	}
	s.Route = route
}

func (a *Agent) runRetriever(s *State) {
	s.RetrievedChunks = a.retriever.Search(s.Question, a.topK)
	a.logger.Printf("[RETRIEVER] %d chunks (best score %.2f)", len(s.RetrievedChunks), s.BestRetrievalScore())
}

func (a *Agent) runPlanner(s *State) {
	s.Constraints = PlanConstraints(s.Question, s.RetrievedChunks)
	a.logger.Printf("[PLANNER] %d constraints", len(s.Constraints))
}

func (a *Agent) runGenerator(ctx context.Context, s *State) {
	schema, err := a.dataset.Schema(ctx)
	if err != nil {
		a.logger.Printf("[GENERATOR] Schema introspection failed: %v", err)
	}

	sql, err := a.gen.GenerateSQL(ctx, SQLRequest{
		Question:    s.Question,
		Schema:      schema,
		Constraints: s.Constraints,
		PriorErrors: s.RepairLog,
	})
	if err != nil {
		// An unparseable candidate flows to the executor as an empty
		// statement and is treated as an execution failure, not skipped.
		a.logger.Printf("[GENERATOR] %v", err)
		sql = ""
	}
	s.SQLCandidate = sql
}

func (a *Agent) runExecutor(ctx context.Context, s *State) {
	result, err := a.dataset.Execute(ctx, s.SQLCandidate)
	if err != nil {
		var qerr *sqltool.QueryError
		if !errors.As(err, &qerr) {
			qerr = &sqltool.QueryError{Kind: sqltool.ErrUnknown, Message: err.Error()}
		}
		s.SQLResult = nil
		s.SQLError = qerr
		a.logger.Printf("[EXECUTOR] %s (repairs used: %d)", qerr, s.RepairCount)
		return
	}
	s.SQLResult = result
	s.SQLError = nil
}

// runRepair is a pure state transformation: it books the failed attempt into
// the generation context and clears the error so the transition function
// schedules a retry. Once the bound is exhausted it leaves the last error in
// place, which routes the state to the synthesizer.
func runRepair(s *State) {
	if s.RepairCount >= MaxRepairs {
		return
	}
	s.RepairCount++
	s.RepairLog = append(s.RepairLog, RepairNote{
		SQL:     s.SQLCandidate,
		Message: s.SQLError.Message,
	})
	s.SQLError = nil
	s.SQLResult = nil
}

func (a *Agent) runSynthesizer(ctx context.Context, s *State) {
	chunks := s.RetrievedChunks
	if s.Route == RouteSQL {
		chunks = nil
	}

	result, err := a.gen.Synthesize(ctx, SynthesisRequest{
		Question:   s.Question,
		FormatHint: s.FormatHint,
		SQLResult:  renderResult(s.SQLResult),
		Chunks:     chunks,
	})
	if err != nil {
		a.logger.Printf("[SYNTHESIZER] %v, degrading to extracted answer", err)
		result = &SynthesisResult{Answer: fallbackAnswer(s)}
	}

	answer, coerced := CoerceAnswer(result.Answer, s.FormatHint)
	s.FinalAnswer = answer

	s.Confidence = ScoreConfidence(ConfidenceInputs{
		BestRetrievalScore: s.BestRetrievalScore(),
		SQLOK:              sqlExecuted(s),
		SQLNonEmpty:        s.SQLResult != nil && len(s.SQLResult.Rows) > 0,
		RepairCount:        s.RepairCount,
		CoercionFailed:     !coerced,
	}, a.weights)

	s.Citations = BuildCitations(s.SQLCandidate, chunks)

	s.Explanation = clipSentences(result.Explanation, 2)
	if s.Explanation == "" {
		s.Explanation = templatedExplanation(s)
	}
}

// sqlExecuted reports whether a SQL candidate ran without error on the
// route actually taken.
func sqlExecuted(s *State) bool {
	return s.Route != RouteRAG && s.SQLError == nil && s.SQLResult != nil
}

// fallbackAnswer derives a raw answer when synthesis itself failed: the
// first cell of the result set if SQL succeeded, otherwise empty (which
// coerces to the conservative default for the hint).
func fallbackAnswer(s *State) string {
	if s.SQLResult == nil || len(s.SQLResult.Rows) == 0 || len(s.SQLResult.Columns) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", s.SQLResult.Rows[0][s.SQLResult.Columns[0]])
}

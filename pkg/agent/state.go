package agent

import (
	"retail-analytics-copilot/pkg/sqltool"
	"retail-analytics-copilot/pkg/store"
)

// Route is the classification of a question into processing paths.
type Route string

const (
	RouteRAG    Route = "rag"
	RouteSQL    Route = "sql"
	RouteHybrid Route = "hybrid"
)

// FormatHint is the caller-supplied expected type of the final answer.
type FormatHint string

const (
	FormatInt    FormatHint = "int"
	FormatFloat  FormatHint = "float"
	FormatString FormatHint = "string"
	FormatObject FormatHint = "object"
	FormatList   FormatHint = "list"
)

// ParseFormatHint validates a raw hint, defaulting to string for anything
// unrecognized.
func ParseFormatHint(raw string) (FormatHint, bool) {
	switch FormatHint(raw) {
	case FormatInt, FormatFloat, FormatString, FormatObject, FormatList:
		return FormatHint(raw), true
	default:
		return FormatString, false
	}
}

// MaxRepairs bounds the SQL repair loop: at most MaxRepairs+1 total
// generation attempts per question. Correctness is traded for bounded
// latency.
const MaxRepairs = 2

// Node identifies one stage of the pipeline state machine.
type Node int

const (
	NodeRouter Node = iota
	NodeRetriever
	NodePlanner
	NodeGenerator
	NodeExecutor
	NodeRepair
	NodeSynthesizer
	NodeOutput
)

func (n Node) String() string {
	switch n {
	case NodeRouter:
		return "router"
	case NodeRetriever:
		return "retriever"
	case NodePlanner:
		return "planner"
	case NodeGenerator:
		return "generator"
	case NodeExecutor:
		return "executor"
	case NodeRepair:
		return "repair"
	case NodeSynthesizer:
		return "synthesizer"
	case NodeOutput:
		return "output"
	default:
		return "unknown"
	}
}

// RepairNote records one failed generation attempt fed back into the next
// one.
type RepairNote struct {
	SQL     string
	Message string
}

// State is the single mutable record threaded through the pipeline. It is
// created per incoming question, owned exclusively by one Agent.Run call,
// and discarded once the result is emitted.
type State struct {
	QuestionID string
	Question   string
	FormatHint FormatHint

	Route Route

	RetrievedChunks []store.Chunk
	Constraints     map[string]string

	SQLCandidate string
	SQLResult    *sqltool.QueryResult
	SQLError     *sqltool.QueryError
	RepairCount  int
	RepairLog    []RepairNote

	FinalAnswer any
	Confidence  float64
	Citations   []string
	Explanation string

	// RouterFellBack marks that LLM classification failed and the
	// deterministic keyword rule decided the route.
	RouterFellBack bool
}

// BestRetrievalScore returns the highest chunk score, 0 when nothing was
// retrieved. Results arrive ranked, so the first chunk holds the best score.
func (s *State) BestRetrievalScore() float64 {
	if len(s.RetrievedChunks) == 0 {
		return 0
	}
	return s.RetrievedChunks[0].Score
}

// nextNode is the pure transition function of the state machine. Node
// execution mutates state; nextNode only reads it. The repair node clears
// SQLError when it schedules a retry, so a surviving SQLError after repair
// means the bound is exhausted.
func nextNode(current Node, s *State) Node {
	switch current {
	case NodeRouter:
		if s.Route == RouteSQL {
			return NodeGenerator
		}
		return NodeRetriever
	case NodeRetriever:
		return NodePlanner
	case NodePlanner:
		if s.Route == RouteRAG {
			return NodeSynthesizer
		}
		return NodeGenerator
	case NodeGenerator:
		return NodeExecutor
	case NodeExecutor:
		if s.SQLError == nil {
			return NodeSynthesizer
		}
		return NodeRepair
	case NodeRepair:
		if s.SQLError == nil {
			return NodeGenerator
		}
		return NodeSynthesizer
	case NodeSynthesizer:
		return NodeOutput
	default:
		return NodeOutput
	}
}

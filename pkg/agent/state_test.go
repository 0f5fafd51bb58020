package agent

import (
	"testing"

	"retail-analytics-copilot/pkg/sqltool"
)

func TestNextNode(t *testing.T) {
	failed := &sqltool.QueryError{Kind: sqltool.ErrMissingTable, Message: "no such table: order"}

	tests := []struct {
		name    string
		current Node
		state   *State
		want    Node
	}{
		{
			name:    "router sends rag to retriever",
			current: NodeRouter,
			state:   &State{Route: RouteRAG},
			want:    NodeRetriever,
		},
		{
			name:    "router sends hybrid to retriever",
			current: NodeRouter,
			state:   &State{Route: RouteHybrid},
			want:    NodeRetriever,
		},
		{
			name:    "router sends sql straight to generator",
			current: NodeRouter,
			state:   &State{Route: RouteSQL},
			want:    NodeGenerator,
		},
		{
			name:    "retriever always plans next",
			current: NodeRetriever,
			state:   &State{Route: RouteRAG},
			want:    NodePlanner,
		},
		{
			name:    "planner sends rag to synthesis",
			current: NodePlanner,
			state:   &State{Route: RouteRAG},
			want:    NodeSynthesizer,
		},
		{
			name:    "planner sends hybrid to generator",
			current: NodePlanner,
			state:   &State{Route: RouteHybrid},
			want:    NodeGenerator,
		},
		{
			name:    "executor success goes to synthesis",
			current: NodeExecutor,
			state:   &State{Route: RouteSQL},
			want:    NodeSynthesizer,
		},
		{
			name:    "executor failure goes to repair",
			current: NodeExecutor,
			state:   &State{Route: RouteSQL, SQLError: failed},
			want:    NodeRepair,
		},
		{
			name:    "repair with cleared error retries generation",
			current: NodeRepair,
			state:   &State{Route: RouteSQL, RepairCount: 1},
			want:    NodeGenerator,
		},
		{
			name:    "repair with surviving error gives up to synthesis",
			current: NodeRepair,
			state:   &State{Route: RouteSQL, RepairCount: MaxRepairs, SQLError: failed},
			want:    NodeSynthesizer,
		},
		{
			name:    "synthesizer terminates",
			current: NodeSynthesizer,
			state:   &State{},
			want:    NodeOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextNode(tt.current, tt.state); got != tt.want {
				t.Errorf("nextNode(%s) = %s, want %s", tt.current, got, tt.want)
			}
		})
	}
}

func TestRunRepairBound(t *testing.T) {
	s := &State{
		Route:        RouteSQL,
		SQLCandidate: "SELECT * FROM order",
		SQLError:     &sqltool.QueryError{Kind: sqltool.ErrMissingTable, Message: "no such table: order"},
	}

	// First two failures are booked and cleared for retry.
	for i := 1; i <= MaxRepairs; i++ {
		runRepair(s)
		if s.RepairCount != i {
			t.Fatalf("RepairCount = %d, want %d", s.RepairCount, i)
		}
		if s.SQLError != nil {
			t.Fatalf("SQLError not cleared on repair %d", i)
		}
		if len(s.RepairLog) != i {
			t.Fatalf("RepairLog length = %d, want %d", len(s.RepairLog), i)
		}
		s.SQLError = &sqltool.QueryError{Kind: sqltool.ErrMissingTable, Message: "no such table: order"}
	}

	// The third failure exhausts the bound: state untouched, error kept.
	runRepair(s)
	if s.RepairCount != MaxRepairs {
		t.Errorf("RepairCount = %d, want %d after exhaustion", s.RepairCount, MaxRepairs)
	}
	if s.SQLError == nil {
		t.Error("SQLError cleared after exhaustion, want it kept for synthesis")
	}
	if got := nextNode(NodeRepair, s); got != NodeSynthesizer {
		t.Errorf("nextNode(repair) after exhaustion = %s, want synthesizer", got)
	}
}

func TestParseFormatHint(t *testing.T) {
	tests := []struct {
		raw    string
		want   FormatHint
		wantOK bool
	}{
		{"int", FormatInt, true},
		{"float", FormatFloat, true},
		{"string", FormatString, true},
		{"object", FormatObject, true},
		{"list", FormatList, true},
		{"integer", FormatString, false},
		{"", FormatString, false},
	}

	for _, tt := range tests {
		got, ok := ParseFormatHint(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseFormatHint(%q) = (%s, %v), want (%s, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

package agent

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"retail-analytics-copilot/pkg/llm"
)

// scriptedProvider returns canned responses in order, or a fixed error.
type scriptedProvider struct {
	responses []string
	err       error
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return p.Generate(ctx, "", options...)
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if p.calls >= len(p.responses) {
		return "", errors.New("no scripted response left")
	}
	r := p.responses[p.calls]
	p.calls++
	return r, nil
}

func testAdapter(responses ...string) *GenerationAdapter {
	return NewGenerationAdapter(&scriptedProvider{responses: responses}, log.New(io.Discard, "", 0))
}

func TestAdapterClassify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Route
		wantErr  bool
	}{
		{
			name:     "labeled response",
			response: "route: hybrid",
			want:     RouteHybrid,
		},
		{
			name:     "labeled with chatter",
			response: "Looking at the question.\nroute: sql\nThat is my answer.",
			want:     RouteSQL,
		},
		{
			name:     "bare label anywhere",
			response: "This is clearly a rag question.",
			want:     RouteRAG,
		},
		{
			name:     "no label at all",
			response: "I cannot classify this.",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testAdapter(tt.response).Classify(context.Background(), "q")
			if tt.wantErr {
				var failure *GenerationFailure
				if !errors.As(err, &failure) {
					t.Fatalf("err = %v, want *GenerationFailure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAdapterGenerateSQL(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "labeled single line",
			response: "sql: SELECT COUNT(*) FROM orders",
			want:     "SELECT COUNT(*) FROM orders",
		},
		{
			name:     "labeled multi-line survives",
			response: "sql: SELECT CategoryName, SUM(Quantity)\nFROM order_items\nGROUP BY CategoryName",
			want:     "SELECT CategoryName, SUM(Quantity)\nFROM order_items\nGROUP BY CategoryName",
		},
		{
			name:     "code fence stripped",
			response: "```sql\nsql: SELECT 1\n```",
			want:     "SELECT 1",
		},
		{
			name:     "bare statement extracted",
			response: "Here is the query you need:\nSELECT OrderID FROM orders WHERE OrderDate >= '1997-01-01';",
			want:     "SELECT OrderID FROM orders WHERE OrderDate >= '1997-01-01';",
		},
		{
			name:     "with-clause accepted",
			response: "WITH r AS (SELECT 1) SELECT * FROM r",
			want:     "WITH r AS (SELECT 1) SELECT * FROM r",
		},
		{
			name:     "nothing usable",
			response: "I am unable to write that query.",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testAdapter(tt.response).GenerateSQL(context.Background(), SQLRequest{Question: "q"})
			if tt.wantErr {
				var failure *GenerationFailure
				if !errors.As(err, &failure) {
					t.Fatalf("err = %v, want *GenerationFailure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GenerateSQL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GenerateSQL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAdapterSynthesize(t *testing.T) {
	t.Run("labeled response", func(t *testing.T) {
		got, err := testAdapter("answer: 16282\nexplanation: Counted distinct orders in 1997.").
			Synthesize(context.Background(), SynthesisRequest{Question: "q", FormatHint: FormatInt})
		if err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
		if got.Answer != "16282" {
			t.Errorf("Answer = %q, want %q", got.Answer, "16282")
		}
		if got.Explanation != "Counted distinct orders in 1997." {
			t.Errorf("Explanation = %q", got.Explanation)
		}
	})

	t.Run("unlabeled response becomes raw answer", func(t *testing.T) {
		got, err := testAdapter("The return window is 14 days.").
			Synthesize(context.Background(), SynthesisRequest{Question: "q", FormatHint: FormatString})
		if err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
		if got.Answer != "The return window is 14 days." {
			t.Errorf("Answer = %q", got.Answer)
		}
	})

	t.Run("empty response fails", func(t *testing.T) {
		_, err := testAdapter("").Synthesize(context.Background(), SynthesisRequest{Question: "q"})
		var failure *GenerationFailure
		if !errors.As(err, &failure) {
			t.Fatalf("err = %v, want *GenerationFailure", err)
		}
	})
}

func TestSQLPromptCarriesRepairContext(t *testing.T) {
	prompt := buildSQLPrompt(SQLRequest{
		Question: "How many orders?",
		Schema:   "Table: orders",
		PriorErrors: []RepairNote{
			{SQL: "SELECT * FROM order", Message: "no such table: order"},
		},
	})

	for _, want := range []string{"no such table: order", "SELECT * FROM order", "previous_attempts"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("SQL prompt missing %q", want)
		}
	}
}

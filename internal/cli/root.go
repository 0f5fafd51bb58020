package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Retail Analytics Copilot - question answering over retail docs and sales data",
	Long: `Retail Analytics Copilot answers natural-language questions about a
retail business by combining document retrieval with SQL over the sales
database. A router picks the path per question: policy and marketing
questions are answered from the document corpus, quantitative questions
by generated SQL, and mixed questions by both.

Commands:
  setup       Create the lowercase convenience views on the database
  run         Answer a JSONL batch of questions
  ask         Answer a single question
  version     Show version info

Quick Start:
  1. copilot setup
  2. copilot run --batch sample_questions.jsonl --out outputs.jsonl`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
